// Package httpapi exposes the authentication engine over HTTP with JSON
// request/response bodies.
//
// # Surface
//
//   - [Server] — owns the route table and the middleware chain.
//   - [Server.Handler] — returns the fully wired http.Handler.
//   - [RequireAuth] — bearer-token guard for authenticated routes.
//
// Routes follow the platform's /auth/* layout: the four elder signup steps,
// family signup, phone/email/google login, refresh, logout, me, password
// reset, plus /healthz and /metrics for operations.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to the
// engine; the error mapper only translates the engine's error taxonomy into
// status codes and user-safe bodies.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis or Postgres (Engine handles I/O).
//   - Leak internal error text to clients in production mode.
package httpapi
