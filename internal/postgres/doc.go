// Package postgres implements the engine's durable stores (user accounts and
// refresh-token records) on PostgreSQL via sqlx.
//
// # Architecture boundaries
//
// This package speaks the storage interfaces declared by the elderauth root
// package and returns that package's sentinel errors for domain outcomes
// (missing rows, uniqueness conflicts, revoked tokens). Lockout counter
// mutations are single-statement updates so concurrent logins cannot lose
// increments.
//
// # What this package must NOT do
//
//   - Make authentication decisions; it stores and mutates state only.
//   - Be imported by the elderauth root package (cmd and tests wire it in).
//   - Store plaintext refresh tokens; only their digests are persisted.
package postgres
