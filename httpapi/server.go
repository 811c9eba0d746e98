package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	elderauth "github.com/eldernest/elderauth"
)

// Config carries the dependencies and switches for an HTTP server instance.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// Engine is the authentication engine every handler delegates to.
	Engine *elderauth.Engine

	// Logger receives request logs and handler-side failures. Nil means
	// logging is disabled (a no-op logger is substituted).
	Logger *zap.Logger

	// ExposeErrorDetail includes dependency-failure detail in 5xx bodies.
	// Leave false in production; the detail is always logged server-side.
	ExposeErrorDetail bool

	// MaxBodyBytes caps request body size. Zero means the default (64 KiB).
	MaxBodyBytes int64
}

const defaultMaxBodyBytes = 64 << 10

// Server defines a public type used by elderauth APIs.
//
// Server instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Server struct {
	engine       *elderauth.Engine
	log          *zap.Logger
	exposeDetail bool
	maxBody      int64
}

// NewServer describes the newserver operation and its observable behavior.
//
// NewServer may return an error when input validation, dependency calls, or security checks fail.
// NewServer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, elderauth.ErrNotConfigured
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Server{
		engine:       cfg.Engine,
		log:          log,
		exposeDetail: cfg.ExposeErrorDetail,
		maxBody:      maxBody,
	}, nil
}

// Handler builds the route table and wraps it in the middleware chain:
// panic recovery outermost, then request logging, then client metadata
// capture. Authenticated routes additionally pass through [RequireAuth].
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/elder/signup/step1", s.handleElderSignupStep1)
	mux.HandleFunc("POST /auth/elder/signup/step2", s.handleElderSignupStep2)
	mux.HandleFunc("POST /auth/elder/signup/step3", s.handleElderSignupStep3)
	mux.HandleFunc("POST /auth/elder/signup/step4", s.handleElderSignupStep4)

	mux.HandleFunc("POST /auth/family/signup", s.handleFamilySignup)

	mux.HandleFunc("POST /auth/login/phone", s.handlePhoneLoginStart)
	mux.HandleFunc("POST /auth/login/phone/verify", s.handlePhoneLoginVerify)
	mux.HandleFunc("POST /auth/login/email", s.handleEmailLogin)
	mux.HandleFunc("POST /auth/login/google", s.handleGoogleLogin)

	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.Handle("POST /auth/logout", RequireAuth(s.engine)(http.HandlerFunc(s.handleLogout)))
	mux.Handle("GET /auth/me", RequireAuth(s.engine)(http.HandlerFunc(s.handleMe)))

	mux.HandleFunc("POST /auth/password-reset/request", s.handlePasswordResetRequest)
	mux.HandleFunc("POST /auth/password-reset/confirm", s.handlePasswordResetConfirm)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	var h http.Handler = mux
	h = clientMetaMiddleware(h)
	h = requestLogMiddleware(s.log, h)
	h = recoverMiddleware(s.log, h)
	return h
}
