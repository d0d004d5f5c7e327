package textutil

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

var ideographicStop = strings.NewReplacer("。", ".", "｡", ".")

var folder = cases.Fold()

// NormalizeLookup canonicalizes a lookup key. Domain-like keys are reduced to
// a lowercase host name; anything else (a unit name) only has its width folded
// and surrounding whitespace trimmed.
func NormalizeLookup(value string) string {
	value = strings.TrimSpace(width.Fold.String(value))
	value = ideographicStop.Replace(value)
	if value == "" {
		return ""
	}
	if !IsDomainLike(value) {
		return value
	}
	host := value
	if strings.Contains(host, "://") {
		if parsed, err := url.Parse(host); err == nil && parsed.Host != "" {
			host = parsed.Hostname()
		}
	} else if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	host = folder.String(strings.TrimSuffix(host, "."))
	return strings.TrimPrefix(host, "www.")
}

// IsDomainLike reports whether value looks like a host name or URL rather than
// an organisation name.
func IsDomainLike(value string) bool {
	if value == "" || !strings.Contains(value, ".") {
		return false
	}
	for _, r := range value {
		if r > 0x7f || r == ' ' {
			return false
		}
	}
	return true
}
