package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	elderauth "github.com/eldernest/elderauth"
	"github.com/eldernest/elderauth/jwt"
)

type authContextKey struct{}

// AuthContext carries the verified access claims and the raw bearer token
// for a request that passed [RequireAuth].
type AuthContext struct {
	Claims *jwt.AccessClaims
	Token  string
}

// AuthFromContext describes the authfromcontext operation and its observable behavior.
//
// AuthFromContext may return an error when input validation, dependency calls, or security checks fail.
// AuthFromContext does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey{}).(*AuthContext)
	return ac, ok
}

// RequireAuth describes the requireauth operation and its observable behavior.
//
// RequireAuth may return an error when input validation, dependency calls, or security checks fail.
// RequireAuth does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func RequireAuth(engine *elderauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeErrorStatus(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeErrorStatus(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := engine.AccessTokenClaims(token)
			if err != nil {
				writeErrorStatus(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), authContextKey{}, &AuthContext{
				Claims: claims,
				Token:  token,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// clientMetaMiddleware copies the caller's IP and user agent into the
// request context so engine flows can attach them to refresh records and
// audit events.
func clientMetaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ip := clientIP(r); ip != "" {
			ctx = elderauth.WithClientIP(ctx, ip)
		}
		if ua := r.UserAgent(); ua != "" {
			ctx = elderauth.WithUserAgent(ctx, ua)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP trusts X-Forwarded-For only for its first hop, falls back to
// X-Real-Ip, then to the connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

// WriteHeader describes the writeheader operation and its observable behavior.
//
// WriteHeader may return an error when input validation, dependency calls, or security checks fail.
// WriteHeader does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func requestLogMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", clientIP(r)),
		)
	})
}

func recoverMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("http handler panic",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"),
				)
				writeErrorStatus(w, http.StatusInternalServerError, "internal", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
