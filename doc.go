// Package elderauth implements phone-first authentication for the ElderNest
// elderly-care platform: one-time-code issuance and verification over SMS,
// the four-step assisted elder signup that pairs an elder with a verifying
// family member, password and federated login for family accounts, and
// refresh-token rotation with reuse detection.
//
// Architecture boundaries:
//
//   - elderauth (this package) owns the flows: OTP issuance, signup,
//     login, lockout, token lifecycle, auditing, and metrics.
//   - internal/stores owns all Redis state: OTP records, pending
//     connections, signup step tokens. Single-use and attempt-cap
//     guarantees live in Lua scripts there, not here.
//   - internal/rate owns fixed-window request throttling in Redis.
//   - jwt owns token signing and strict verification.
//   - password owns Argon2id hashing for family credentials.
//   - Durable user and refresh-token state is reached only through the
//     UserStore and RefreshStore interfaces declared in this package;
//     internal/postgres provides the production implementation and is
//     wired by the caller, never imported from here.
//
// What this package must NOT do:
//
//   - It must not send SMS itself. Delivery goes through the SMSSender
//     interface so carriers can be swapped and tests stay offline.
//   - It must not store plaintext verification codes, passwords, or
//     refresh tokens. Only SHA-256 or Argon2id digests are persisted.
//   - It must not reveal, in errors or audit payloads, whether a code
//     failed because it was wrong versus which digit was wrong, or any
//     other oracle beyond the documented sentinel errors.
//
// Performance contract:
//
//   - Token verification (Engine.Me, middleware paths) performs no I/O
//     beyond parsing and a single optional store lookup.
//   - OTP verification is one Lua round trip to Redis.
//   - Metrics are lock-free counters; auditing is asynchronous and
//     drops under backpressure rather than blocking callers.
package elderauth
