// Package jwt manages access-token, refresh-token, and signup step-token
// issuance and verification using distinct symmetric secrets and strict
// validation semantics suitable for low-latency authentication paths.
package jwt
