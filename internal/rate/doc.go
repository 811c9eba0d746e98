// Package rate provides the Redis-backed fixed-window counter that throttles
// verification-code issuance per phone number.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. The window
// is never extended by later hits; retry-after is the remaining TTL of the
// window key. Key layout: <prefix>:<e164-phone>.
//
// # What this package must NOT do
//
//   - Implement account lockout (that is user-record state, not phone state).
//   - Be imported outside the elderauth module.
package rate
