package pricing

import "strings"

// Address is a shipping or billing destination.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

var countryAliases = map[string]string{
	"USA":                      "US",
	"UNITED STATES":            "US",
	"UNITED STATES OF AMERICA": "US",
	"CAN":                      "CA",
	"CANADA":                   "CA",
}

// Normalize trims every field and upper-cases the country and state codes.
func (a Address) Normalize() Address {
	out := Address{
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		State:      strings.ToUpper(strings.TrimSpace(a.State)),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
	}
	if alias, ok := countryAliases[out.Country]; ok {
		out.Country = alias
	}
	return out
}

// IsZero reports whether the address carries no destination information.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Country) == "" && strings.TrimSpace(a.State) == "" &&
		strings.TrimSpace(a.City) == "" && strings.TrimSpace(a.Line1) == ""
}
