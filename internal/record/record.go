// Package record defines the cached filing row persisted after a successful
// registry lookup.
package record

import (
	"fmt"
	"strings"
	"time"

	"icpquery/internal/miit"
)

// UpdateTimeLayout is the registry's format for updateRecordTime.
const UpdateTimeLayout = "2006-01-02 15:04:05"

// noLimitAccess is the registry's literal for "access not restricted".
const noLimitAccess = "否"

// Record is one filing row. Rows are written once per successful lookup and
// never updated.
type Record struct {
	ID               int64     `json:"id"`
	Domain           string    `json:"domain"`
	UnitName         string    `json:"unit_name"`
	MainLicence      string    `json:"main_licence"`
	ServiceLicence   string    `json:"service_licence"`
	ContentTypeName  *string   `json:"content_type_name"`
	NatureName       string    `json:"nature_name"`
	LeaderName       *string   `json:"leader_name"`
	LimitAccess      bool      `json:"limit_access"`
	MainID           *int64    `json:"main_id"`
	ServiceID        *int64    `json:"service_id"`
	UpdateRecordTime time.Time `json:"update_record_time"`
	CachedAt         time.Time `json:"cached_at"`
}

// FromQueryResult converts a registry row into a Record. The update time is
// interpreted in the registry's local zone (UTC+8).
func FromQueryResult(result miit.QueryResult) (*Record, error) {
	updated, err := time.ParseInLocation(UpdateTimeLayout, strings.TrimSpace(result.UpdateRecordTime), RegistryZone)
	if err != nil {
		return nil, fmt.Errorf("parse updateRecordTime %q: %w", result.UpdateRecordTime, err)
	}
	return &Record{
		Domain:           result.Domain,
		UnitName:         result.UnitName,
		MainLicence:      result.MainLicence,
		ServiceLicence:   result.ServiceLicence,
		ContentTypeName:  optionalString(result.ContentTypeName),
		NatureName:       result.NatureName,
		LeaderName:       optionalString(result.LeaderName),
		LimitAccess:      result.LimitAccess != noLimitAccess,
		MainID:           optionalID(result.MainID),
		ServiceID:        optionalID(result.ServiceID),
		UpdateRecordTime: updated,
	}, nil
}

// RegistryZone is the fixed UTC+8 zone the registry reports filing times in.
var RegistryZone = time.FixedZone("CST", 8*60*60)

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func optionalID(value int64) *int64 {
	if value == 0 {
		return nil
	}
	return &value
}

// Deref returns the pointed-to string or "".
func Deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
