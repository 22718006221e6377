// Package email holds address helpers shared by validation and notification.
package email

import (
	"strings"
	"unicode"
)

// Normalize trims and lowercases an address. Reservation keys and
// uniqueness probes always use the normalized form.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// LocalPart returns the part before '@', or the whole input if there is none.
func LocalPart(address string) string {
	if at := strings.LastIndexByte(address, '@'); at > 0 {
		return address[:at]
	}
	return address
}

// DeriveNameFromEmail guesses a first and last name from the local part,
// splitting on '.', '_', '-' and '+'. Missing parts fall back to "Member".
func DeriveNameFromEmail(address string) (string, string) {
	parts := strings.FieldsFunc(LocalPart(address), func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "Member", "Member"
	}

	first := capitalize(parts[0])
	last := "Member"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

// GreetingName prefers the given first name and falls back to one derived from the address.
func GreetingName(firstName, address string) string {
	if n := strings.TrimSpace(firstName); n != "" {
		return capitalize(n)
	}
	first, _ := DeriveNameFromEmail(address)
	return first
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
