// Command elderauthd serves the ElderNest authentication API.
//
// It wires the engine against PostgreSQL (users, refresh tokens) and Redis
// (codes, pending connections, rate windows), mounts the HTTP surface, and
// runs the periodic sweeps until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	elderauth "github.com/eldernest/elderauth"
	"github.com/eldernest/elderauth/googleid"
	"github.com/eldernest/elderauth/httpapi"
	"github.com/eldernest/elderauth/internal/postgres"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	lg, err := initLogger(logConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	lg.Info("starting elderauthd")

	env, err := envFromOS()
	if err != nil {
		lg.Fatal("config", zap.Error(err))
	}

	db, err := postgres.Open(postgres.Config{DSN: env.DatabaseURL})
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	err = postgres.EnsureSchema(schemaCtx, db)
	cancelSchema()
	if err != nil {
		lg.Fatal("ensure schema", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     env.RedisAddr,
		Password: env.RedisPassword,
		DB:       env.RedisDB,
	})
	defer rdb.Close()

	builder := elderauth.New().
		WithConfig(env.Engine).
		WithRedis(rdb).
		WithUserStore(postgres.NewUserStore(db)).
		WithRefreshStore(postgres.NewRefreshStore(db)).
		WithSMSSender(elderauth.NewLogSMSSender(lg)).
		WithLogger(lg)

	if env.AuditEnabled {
		builder = builder.WithAuditSink(elderauth.NewJSONWriterSink(os.Stdout))
	}
	if env.GoogleClientID != "" {
		verifier, err := googleid.New(googleid.Config{ClientID: env.GoogleClientID})
		if err != nil {
			lg.Fatal("google verifier", zap.Error(err))
		}
		builder = builder.WithIdentityVerifier(verifier)
	}

	engine, err := builder.Build()
	if err != nil {
		lg.Fatal("engine build", zap.Error(err))
	}
	defer engine.Close()

	api, err := httpapi.NewServer(httpapi.Config{
		Engine:            engine,
		Logger:            lg,
		ExposeErrorDetail: env.ExposeErrorDetail,
	})
	if err != nil {
		lg.Fatal("http server", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              env.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runSweeps(ctx, lg, engine, env)

	go func() {
		lg.Info("listening", zap.String("addr", env.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	lg.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), env.ShutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	if err := db.PingContext(doneCtx); err != nil {
		lg.Warn("db ping on shutdown failed", zap.Error(err))
	}

	lg.Info("goodbye")
}

// runSweeps drives the two background janitors: expired OTP records in Redis
// and expired refresh rows in Postgres. Each tick removes one bounded batch;
// a backlog drains across ticks instead of stalling a single one.
func runSweeps(ctx context.Context, lg *zap.Logger, engine *elderauth.Engine, env serverEnv) {
	otpTicker := time.NewTicker(env.OTPSweepInterval)
	defer otpTicker.Stop()
	purgeTicker := time.NewTicker(env.RefreshPurgeEvery)
	defer purgeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-otpTicker.C:
			if _, err := engine.SweepExpiredOTPs(ctx, 0); err != nil && ctx.Err() == nil {
				lg.Warn("otp sweep failed", zap.Error(err))
			}
		case <-purgeTicker.C:
			if _, err := engine.PurgeExpiredRefreshTokens(ctx, env.RefreshPurgeBatch); err != nil && ctx.Err() == nil {
				lg.Warn("refresh purge failed", zap.Error(err))
			}
		}
	}
}
