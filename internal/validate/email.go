package validate

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidEmail is an exported constant or variable used by the authentication engine.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrDisposableDomain is an exported constant or variable used by the authentication engine.
	ErrDisposableDomain = errors.New("disposable email domain")
)

var emailRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._%+\-]*@[a-z0-9][a-z0-9.\-]*\.[a-z]{2,}$`)

// Domains that exist to receive throwaway mail. Family accounts anchor an
// elder's recovery path, so these are refused at registration.
var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.com":      {},
	"temp-mail.org":     {},
	"trashmail.com":     {},
	"yopmail.com":       {},
	"sharklasers.com":   {},
	"getnada.com":       {},
	"dispostable.com":   {},
	"maildrop.cc":       {},
	"throwawaymail.com": {},
}

// Email lowercases and validates an address, returning the canonical form.
func Email(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	if !emailRe.MatchString(email) {
		return "", ErrInvalidEmail
	}

	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	if _, bad := disposableDomains[domain]; bad {
		return "", ErrDisposableDomain
	}

	return email, nil
}
