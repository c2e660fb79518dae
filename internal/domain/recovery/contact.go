package recovery

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultDialCode is used when a country code cannot be resolved
const DefaultDialCode = "+91"

// Digits strips every non-digit rune from s
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Last10 returns the last ten digits of s (all digits when there are fewer)
func Last10(s string) string {
	d := Digits(s)
	if len(d) > 10 {
		return d[len(d)-10:]
	}
	return d
}

// DialCode returns the international dialing prefix ("+91") for an ISO
// country code, or DefaultDialCode when the country is unknown.
func DialCode(countryCode string) string {
	code := phonenumbers.GetCountryCodeForRegion(strings.ToUpper(strings.TrimSpace(countryCode)))
	if code == 0 {
		return DefaultDialCode
	}
	return "+" + strconv.Itoa(code)
}

// FormatPhone renders a raw phone in international form. A bare ten-digit
// national number gets the country's dial code; anything else is treated as
// already carrying its country prefix.
func FormatPhone(raw, countryCode string) string {
	d := Digits(raw)
	if d == "" {
		return ""
	}
	if len(d) == 10 {
		return DialCode(countryCode) + d
	}
	return "+" + d
}

// Destination builds a messaging destination from the country dial code and
// the last ten digits of raw. Returns "" when raw has no digits.
func Destination(raw, countryCode string) string {
	d := Last10(raw)
	if d == "" {
		return ""
	}
	return DialCode(countryCode) + d
}
