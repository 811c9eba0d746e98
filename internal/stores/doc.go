// Package stores provides Redis-backed, short-lived record stores for
// security-sensitive authentication flows: OTP verification codes, pending
// elder/family connections, and single-use signup step tokens.
//
// # Design
//
// Each store persists a versioned, binary- or JSON-encoded record in Redis
// with a TTL slightly past the record's logical expiry, so reads can answer
// "expired" distinctly from "not found" until a sweep or the TTL removes the
// record. Mutation operations (Consume, status transitions) run as Lua
// scripts so concurrent attempts serialize inside Redis. Secret comparisons
// use constant-time compare.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// verification state. It does NOT generate codes, send SMS, enforce issuance
// rate limits, or make authentication decisions — those responsibilities
// belong to the engine flows.
//
// # What this package must NOT do
//
//   - Import elderauth or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for secret matching.
package stores
