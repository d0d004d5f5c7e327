package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"icpquery/internal/record"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

const (
	timeLayout    = "2006-01-02 15:04"
	maxUnitWidth  = 32
	maxLabelWidth = 24
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// renderRecordTable lays out cached rows one per line. Unit names are
// truncated by display width so CJK names keep the table aligned.
func renderRecordTable(rows []record.Record) string {
	headers := []string{"ID", "Domain", "Unit", "Licence", "Nature", "Updated", "Cached"}
	body := make([][]string, 0, len(rows))
	for _, r := range rows {
		body = append(body, []string{
			strconv.FormatInt(r.ID, 10),
			r.Domain,
			text.Trim(r.UnitName, maxUnitWidth),
			r.ServiceLicence,
			r.NatureName,
			r.UpdateRecordTime.Format(timeLayout),
			r.CachedAt.Local().Format(timeLayout),
		})
	}
	aligns := []columnAlignment{alignRight}
	return renderTable(headers, body, aligns)
}

// renderRecordDetail prints one record as a two-column field/value table.
func renderRecordDetail(r *record.Record) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMax: maxLabelWidth},
	})

	optionalID := func(v *int64) string {
		if v == nil {
			return "-"
		}
		return strconv.FormatInt(*v, 10)
	}
	optional := func(v *string) string {
		if s := record.Deref(v); s != "" {
			return s
		}
		return "-"
	}

	tw.AppendRows([]table.Row{
		{"Domain", r.Domain},
		{"Unit", r.UnitName},
		{"Nature", r.NatureName},
		{"Main licence", r.MainLicence},
		{"Service licence", r.ServiceLicence},
		{"Content type", optional(r.ContentTypeName)},
		{"Leader", optional(r.LeaderName)},
		{"Access limited", yesNo(r.LimitAccess)},
		{"Main ID", optionalID(r.MainID)},
		{"Service ID", optionalID(r.ServiceID)},
		{"Updated", r.UpdateRecordTime.Format(timeLayout)},
		{"Cached", r.CachedAt.Local().Format(timeLayout)},
	})
	return tw.Render()
}
