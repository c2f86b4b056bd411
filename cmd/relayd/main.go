// Command relayd runs the page sync relay: a WebSocket endpoint that fans
// element operations, presence, and page snapshots out to every editor of a
// page.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pagesync/application/pages"
	"pagesync/infrastructure/config"
	"pagesync/interfaces/websocket"
	"pagesync/pkg/ratelimit"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	limits := config.DefaultLimits()
	var limitsWatcher *config.LimitsWatcher
	if cfg.LimitsPath != "" {
		limitsWatcher, err = config.NewLimitsWatcher(cfg.LimitsPath, logger)
		if err != nil {
			logger.Fatal("Failed to load limits file", zap.Error(err))
		}
		limits = limitsWatcher.GetCurrent()
	}

	store := pages.NewStore(logger)
	limiter := ratelimit.NewKeyedLimiter(limits.OpBurst, limits.OpRefillPerSecond)
	metrics := websocket.NewMetrics(prometheus.DefaultRegisterer)

	hub := websocket.NewHub(store, limiter, metrics, logger)
	hub.SetPresenceTTL(limits.PresenceTTL())
	go hub.Run()

	if limitsWatcher != nil {
		limitsWatcher.OnChange(func(next *config.Limits) {
			limiter.SetRates(next.OpBurst, next.OpRefillPerSecond)
			hub.SetPresenceTTL(next.PresenceTTL())
		})
		limitsWatcher.Start()
		defer limitsWatcher.Stop()
	}

	server := websocket.NewServer(hub, tokenValidator(cfg, logger), &websocket.ServerConfig{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	if cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/ws", server.HandleWebSocket)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"relay"}`))
	})
	if cfg.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Relay listening",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("Server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	hub.Stop()
	logger.Info("Relay stopped gracefully")
}

// tokenValidator returns the credential check for incoming connections. In
// development the token itself names the user, which keeps local multi-client
// testing frictionless. Production deployments sit the relay behind an
// authenticating proxy that rewrites the token into a user id.
func tokenValidator(cfg *config.Config, logger *zap.Logger) websocket.TokenValidator {
	if cfg.IsProduction() {
		logger.Warn("Running with passthrough token validation; front with an authenticating proxy")
	}
	return func(token string) (string, error) {
		if token == "" {
			return "", errors.New("empty token")
		}
		return token, nil
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
