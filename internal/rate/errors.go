package rate

import "errors"

var (
	// ErrRateLimited is returned when a phone has exhausted its issuance
	// window; callers surface the retry-after alongside it.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures talking to Redis.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
