package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	shutdownTimeout = time.Second * 5
)

func Logger(level string) *zap.Logger {

	cfg := zap.NewProductionConfig()

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		panic(err)
	}
	cfg.Level.SetLevel(lvl)

	lg, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	return lg
}

// ServeMetrics exposes prometheus metrics on the port until ctx is done.
// A zero port disables the server.
func ServeMetrics(ctx context.Context, port int, log *zap.Logger) {
	if port == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%v", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown", zap.Error(err))
		}
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics listen and serve", zap.Error(err))
		}
	}()
}
