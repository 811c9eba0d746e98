// Package internal contains helper utilities that are intentionally private to elderauth,
// including secure random generation and token hashing helpers.
//
// # Sub-packages
//
//   - postgres — sqlx-backed durable stores (users, refresh tokens)
//   - rate — core Redis-backed rate limit primitives
//   - stores — Redis-backed volatile stores (OTP records, pending connections, step tokens)
//   - validate — phone/email/password validation and normalization
//
// # What this package must NOT do
//
//   - Export types that appear in the public elderauth API.
//   - Be imported by any package outside the elderauth module.
package internal
