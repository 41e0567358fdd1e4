package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Portal and card API consumers read amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// ParseAmount decodes a raw JSON amount leniently. Missing, null,
// non-numeric and negative values all yield zero so one malformed record
// cannot fail a whole page.
func ParseAmount(raw json.RawMessage) decimal.Decimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero
	}

	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero
		}
		text = strings.TrimSpace(s)
	}

	d, err := decimal.NewFromString(text)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC3339 and the zone-less LocalDateTime forms the
// card API emits. Unparseable input yields the zero time.
func ParseTimestamp(raw json.RawMessage) time.Time {
	var s string
	if err := json.Unmarshal(bytes.TrimSpace(raw), &s); err != nil {
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
