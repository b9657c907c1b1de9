package domain

import "strings"

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalPhone returns the 10-digit national form of a US number.
// Numbers that are not US-shaped come back as their digits.
func CanonicalPhone(s string) string {
	digits := DigitsOnly(s)
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// FormatPhoneUS renders a US number as 602-555-1234. Anything that is not
// ten digits after canonicalization is returned unchanged.
func FormatPhoneUS(s string) string {
	ten := CanonicalPhone(s)
	if len(ten) != 10 {
		return s
	}
	return ten[:3] + "-" + ten[3:6] + "-" + ten[6:]
}
