// Package validate normalizes and validates the three kinds of caller input
// the authentication flows accept: phone numbers (country-aware, canonical
// E.164 output), email addresses (lowercase canonical form, disposable-domain
// rejection), and passwords (strength policy).
//
// Validation failures are reported through the package sentinel errors so
// callers can map them to their own taxonomy with errors.Is.
package validate
