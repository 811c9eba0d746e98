package elderauth

import "context"

type clientIPContextKey struct{}

type userAgentContextKey struct{}

// WithClientIP describes the withclientip operation and its observable behavior.
//
// WithClientIP may return an error when input validation, dependency calls, or security checks fail.
// WithClientIP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent describes the withuseragent operation and its observable behavior.
//
// WithUserAgent may return an error when input validation, dependency calls, or security checks fail.
// WithUserAgent does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, ua)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(clientIPContextKey{}).(string); ok {
		return v
	}
	return ""
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(userAgentContextKey{}).(string); ok {
		return v
	}
	return ""
}
