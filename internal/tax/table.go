package tax

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Table maps a jurisdiction key (COUNTRY-STATE) to a single effective rate.
type Table map[string]decimal.Decimal

// Key builds the jurisdiction key for a country and state or province.
func Key(country, state string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	state = strings.ToUpper(strings.TrimSpace(state))
	if country == "" || state == "" {
		return ""
	}
	return country + "-" + state
}

var defaultRates = map[string]string{
	"US-AL": "0.04", "US-AK": "0", "US-AZ": "0.056", "US-AR": "0.065",
	"US-CA": "0.0725", "US-CO": "0.029", "US-CT": "0.0635", "US-DE": "0",
	"US-DC": "0.06", "US-FL": "0.06", "US-GA": "0.04", "US-HI": "0.04",
	"US-ID": "0.06", "US-IL": "0.0625", "US-IN": "0.07", "US-IA": "0.06",
	"US-KS": "0.065", "US-KY": "0.06", "US-LA": "0.0445", "US-ME": "0.055",
	"US-MD": "0.06", "US-MA": "0.0625", "US-MI": "0.06", "US-MN": "0.06875",
	"US-MS": "0.07", "US-MO": "0.04225", "US-MT": "0", "US-NE": "0.055",
	"US-NV": "0.0685", "US-NH": "0", "US-NJ": "0.06625", "US-NM": "0.05125",
	"US-NY": "0.04", "US-NC": "0.0475", "US-ND": "0.05", "US-OH": "0.0575",
	"US-OK": "0.045", "US-OR": "0", "US-PA": "0.06", "US-RI": "0.07",
	"US-SC": "0.06", "US-SD": "0.045", "US-TN": "0.07", "US-TX": "0.0625",
	"US-UT": "0.061", "US-VT": "0.06", "US-VA": "0.053", "US-WA": "0.065",
	"US-WV": "0.06", "US-WI": "0.05", "US-WY": "0.04",
	"CA-AB": "0.05", "CA-BC": "0.12", "CA-MB": "0.12", "CA-NB": "0.15",
	"CA-NL": "0.15", "CA-NS": "0.14", "CA-NT": "0.05", "CA-NU": "0.05",
	"CA-ON": "0.13", "CA-PE": "0.15", "CA-QC": "0.14975", "CA-SK": "0.11",
	"CA-YT": "0.05",
}

// DefaultTable returns a fresh copy of the built-in rate table.
func DefaultTable() Table {
	t := make(Table, len(defaultRates))
	for k, v := range defaultRates {
		t[k] = decimal.RequireFromString(v)
	}
	return t
}

// ParseTable reads overrides in the form "US-TX=0.0625,CA-ON=0.13".
func ParseTable(raw string) (Table, error) {
	out := Table{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("tax: malformed rate entry %q", part)
		}
		country, state, ok := strings.Cut(strings.TrimSpace(key), "-")
		if !ok || Key(country, state) == "" {
			return nil, fmt.Errorf("tax: malformed jurisdiction %q", key)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("tax: rate for %s: %w", key, err)
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("tax: rate for %s out of range: %s", key, rate)
		}
		out[Key(country, state)] = rate
	}
	return out, nil
}

// Merge returns a copy of t with every entry of overrides applied.
func (t Table) Merge(overrides Table) Table {
	out := make(Table, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
