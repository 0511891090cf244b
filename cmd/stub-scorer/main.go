// Command stub-scorer serves a local stand-in for the remote evaluation
// service so cadenza can run end to end without it.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/cadenza/internal/stubscorer"
	"github.com/okian/cadenza/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get().Named("stub-scorer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := stubscorer.LoadConfig()
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel))
	}

	stub := stubscorer.New(cfg.Options()...)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info(ctx, "starting stub scorer",
			logger.String("addr", cfg.Addr),
			logger.Int("minLatencyMS", cfg.MinLatencyMS),
			logger.Int("maxLatencyMS", cfg.MaxLatencyMS),
			logger.Float64("failureRate", cfg.FailureRate),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "stub scorer failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "stub scorer stopped")
}
