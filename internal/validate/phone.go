package validate

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidPhone is an exported constant or variable used by the authentication engine.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrUnknownCountry is an exported constant or variable used by the authentication engine.
	ErrUnknownCountry = errors.New("unknown country dial code")
)

// countryRule pins the national-number length range for dial codes the
// platform launched in. Numbers from other countries pass the generic E.164
// bounds (8..15 total digits) instead.
type countryRule struct {
	minNational int
	maxNational int
}

var countryRules = map[string]countryRule{
	"1":   {10, 10}, // US / Canada
	"44":  {9, 10},  // United Kingdom
	"91":  {10, 10}, // India
	"61":  {9, 9},   // Australia
	"64":  {8, 10},  // New Zealand
	"65":  {8, 8},   // Singapore
	"81":  {9, 10},  // Japan
	"82":  {9, 10},  // South Korea
	"49":  {10, 11}, // Germany
	"33":  {9, 9},   // France
	"34":  {9, 9},   // Spain
	"39":  {9, 10},  // Italy
	"55":  {10, 11}, // Brazil
	"52":  {10, 10}, // Mexico
	"63":  {10, 10}, // Philippines
	"971": {9, 9},   // UAE
}

const (
	e164MinDigits = 8
	e164MaxDigits = 15
)

// Phone normalizes a raw phone number against a caller-declared dial code
// and returns the canonical E.164 form ("+" followed by digits only).
//
// raw may already be in international form ("+15551230000"), in which case
// countryCode is only used as a cross-check when both are present. Otherwise
// the dial code is prepended to the national number. Separators (spaces,
// dashes, dots, parentheses) are stripped; any other non-digit fails.
func Phone(raw, countryCode string) (string, error) {
	digits, hadPlus, err := stripPhone(raw)
	if err != nil {
		return "", err
	}
	if digits == "" {
		return "", ErrInvalidPhone
	}

	cc := normalizeDialCode(countryCode)

	var full string
	switch {
	case hadPlus:
		full = digits
	case cc != "":
		// National numbers commonly carry a trunk "0" prefix; E.164 drops it.
		full = cc + strings.TrimPrefix(digits, "0")
	default:
		return "", ErrUnknownCountry
	}

	if len(full) < e164MinDigits || len(full) > e164MaxDigits {
		return "", ErrInvalidPhone
	}
	if full[0] == '0' {
		return "", ErrInvalidPhone
	}

	if rule, code, ok := matchCountry(full); ok {
		national := len(full) - len(code)
		if national < rule.minNational || national > rule.maxNational {
			return "", ErrInvalidPhone
		}
	}

	return "+" + full, nil
}

// Mask hides the middle of an E.164 number for display to a counterparty,
// keeping the dial code and the last four digits.
func Mask(e164 string) string {
	digits := strings.TrimPrefix(e164, "+")
	if len(digits) <= 4 {
		return e164
	}

	keepTail := 4
	keepHead := 0
	if _, code, ok := matchCountry(digits); ok {
		keepHead = len(code)
	}
	if keepHead+keepTail >= len(digits) {
		keepHead = 0
	}

	var b strings.Builder
	b.WriteByte('+')
	b.WriteString(digits[:keepHead])
	b.WriteString(strings.Repeat("*", len(digits)-keepHead-keepTail))
	b.WriteString(digits[len(digits)-keepTail:])
	return b.String()
}

// Display renders an E.164 number with the dial code split off for human
// readability, e.g. "+1 5551230000".
func Display(e164 string) string {
	digits := strings.TrimPrefix(e164, "+")
	if _, code, ok := matchCountry(digits); ok {
		return "+" + code + " " + digits[len(code):]
	}
	return e164
}

func stripPhone(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	hadPlus := strings.HasPrefix(raw, "+")
	if hadPlus {
		raw = raw[1:]
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separator, dropped
		default:
			return "", false, ErrInvalidPhone
		}
	}
	return b.String(), hadPlus, nil
}

func normalizeDialCode(countryCode string) string {
	cc := strings.TrimSpace(countryCode)
	cc = strings.TrimPrefix(cc, "+")
	for _, r := range cc {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return strings.TrimLeft(cc, "0")
}

// matchCountry finds the longest known dial code prefixing the digit string.
func matchCountry(digits string) (countryRule, string, bool) {
	for l := 3; l >= 1; l-- {
		if len(digits) <= l {
			continue
		}
		if rule, ok := countryRules[digits[:l]]; ok {
			return rule, digits[:l], true
		}
	}
	return countryRule{}, "", false
}
