package validate

import "errors"

// ErrWeakPassword is an exported constant or variable used by the authentication engine.
var ErrWeakPassword = errors.New("password too weak")

// Password enforces the platform policy: at least minLength characters with
// at least one uppercase letter, one lowercase letter, and one digit.
func Password(pw string, minLength int) error {
	if len(pw) < minLength || len(pw) > 128 {
		return ErrWeakPassword
	}

	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return ErrWeakPassword
	}
	return nil
}
