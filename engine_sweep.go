package elderauth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepExpiredOTPs describes the sweepexpiredotps operation and its observable behavior.
//
// SweepExpiredOTPs may return an error when input validation, dependency calls, or security checks fail.
// SweepExpiredOTPs does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Each call removes at most one batch so a large backlog cannot stall the
// caller; run it from a ticker and let successive ticks drain the rest.
func (e *Engine) SweepExpiredOTPs(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = e.config.OTP.SweepBatchSize
	}

	swept, err := e.otpStore.SweepExpired(ctx, batch)
	if err != nil {
		return swept, mapOTPErr(err)
	}
	if swept > 0 {
		if e.metrics != nil {
			e.metrics.Add(MetricOTPSwept, uint64(swept))
		}
		e.log().Debug("otp sweep", zap.Int("removed", swept))
	}
	return swept, nil
}

// PurgeExpiredRefreshTokens describes the purgeexpiredrefreshtokens operation and its observable behavior.
//
// PurgeExpiredRefreshTokens may return an error when input validation, dependency calls, or security checks fail.
// PurgeExpiredRefreshTokens does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Only records past expiry are touched; revoked-but-unexpired rows stay, as
// they are what reuse detection keys on.
func (e *Engine) PurgeExpiredRefreshTokens(ctx context.Context, batch int) (int, error) {
	removed, err := e.refresh.DeleteExpired(ctx, time.Now().UTC(), batch)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		e.log().Debug("refresh token purge", zap.Int("removed", removed))
	}
	return removed, nil
}
