// Package googleid verifies Google ID tokens for federated login.
//
// A [Verifier] checks the RS256 signature against Google's published JWKS,
// enforces audience and issuer, and returns the subject/email claims the
// engine needs. Signing keys are cached and refreshed when an unknown key id
// appears, so routine verification costs no network round trip.
package googleid
