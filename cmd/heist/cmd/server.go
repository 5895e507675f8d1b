package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jmcleod/heist/api"
	"github.com/jmcleod/heist/game"
	"github.com/jmcleod/heist/internal/config"
	"github.com/jmcleod/heist/internal/util"
	"github.com/jmcleod/heist/puzzle"
	"github.com/jmcleod/heist/session"
	"github.com/jmcleod/heist/storage"
	bboltstorage "github.com/jmcleod/heist/storage/bbolt"
	"github.com/jmcleod/heist/storage/memory"
	redisstorage "github.com/jmcleod/heist/storage/redis"
	"github.com/jmcleod/heist/web"
)

const (
	shutdownTimeout = 10 * time.Second
	secretLength    = 32
)

var serverFlags struct {
	addr      string
	store     string
	dataDir   string
	catalog   string
	tlsCert   string
	tlsKey    string
	logLevel  string
	logFormat string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the heist game server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyServerFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		catalog, err := loadCatalog(cfg.CatalogPath)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		repo, closeRepo, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeRepo()

		sessions, err := newSessionManager(cfg, logger)
		if err != nil {
			return err
		}

		alertFn, closeAlerts := newAlertFunc(cfg, logger)
		defer closeAlerts()

		a := api.New(
			game.NewPuzzleService(catalog),
			game.NewVaultService(catalog, repo, game.WithFinalFlag(cfg.FinalFlag)),
			sessions,
			api.WithLogger(logger),
			api.WithAlertFunc(alertFn),
		)

		webHandler, err := web.Handler()
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              cfg.Addr,
			Handler:           newRouter(a, webHandler),
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		useTLS := cfg.TLSCert != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.OutOrStdout())
		logger.Info("server started",
			"addr", cfg.Addr,
			"tls", useTLS,
			"store", cfg.Store,
			"puzzles", catalog.Len(),
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	f := serverCmd.Flags()
	f.StringVarP(&serverFlags.addr, "addr", "a", ":8080", "Address to listen on (HEIST_ADDR)")
	f.StringVar(&serverFlags.store, "store", config.StoreMemory, "Flag store: memory, bbolt or redis (HEIST_STORE)")
	f.StringVar(&serverFlags.dataDir, "data-dir", "./data", "Directory for the bbolt store (HEIST_DATA_DIR)")
	f.StringVar(&serverFlags.catalog, "catalog", "", "Puzzle catalog YAML file; the built-in catalog when empty (HEIST_CATALOG)")
	f.StringVar(&serverFlags.tlsCert, "tls-cert", "", "Path to TLS certificate file (HEIST_TLS_CERT)")
	f.StringVar(&serverFlags.tlsKey, "tls-key", "", "Path to TLS key file (HEIST_TLS_KEY)")
	f.StringVar(&serverFlags.logLevel, "log-level", "info", "Log level: debug, info, warn or error (HEIST_LOG_LEVEL)")
	f.StringVar(&serverFlags.logFormat, "log-format", "json", "Log format: json or text (HEIST_LOG_FORMAT)")
}

// applyServerFlags overlays explicitly set command-line flags on cfg.
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	overrides := []struct {
		name string
		dst  *string
		val  string
	}{
		{"addr", &cfg.Addr, serverFlags.addr},
		{"store", &cfg.Store, serverFlags.store},
		{"data-dir", &cfg.DataDir, serverFlags.dataDir},
		{"catalog", &cfg.CatalogPath, serverFlags.catalog},
		{"tls-cert", &cfg.TLSCert, serverFlags.tlsCert},
		{"tls-key", &cfg.TLSKey, serverFlags.tlsKey},
		{"log-level", &cfg.LogLevel, serverFlags.logLevel},
		{"log-format", &cfg.LogFormat, serverFlags.logFormat},
	}
	for _, o := range overrides {
		if f.Changed(o.name) {
			*o.dst = o.val
		}
	}
}

func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func loadCatalog(path string) (*puzzle.Catalog, error) {
	if path == "" {
		c, err := puzzle.Default()
		if err != nil {
			return nil, fmt.Errorf("loading built-in catalog: %w", err)
		}
		return c, nil
	}
	c, err := puzzle.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	return c, nil
}

// openStore opens the configured flag store. Backends without native expiry
// get a janitor bound to ctx.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Repository, func(), error) {
	switch cfg.Store {
	case config.StoreBbolt:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, "heist.db"), nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open flag storage: %w", err)
		}
		storage.StartJanitor(ctx, repo, cfg.JanitorInterval, cfg.SessionTTL, logger)
		return repo, func() { repo.Close() }, nil

	case config.StoreRedis:
		repo, err := redisstorage.NewRepository(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.RedisPrefix, cfg.SessionTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to configure redis storage: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := repo.Ping(pingCtx); err != nil {
			repo.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return repo, func() { repo.Close() }, nil

	default:
		repo := memory.NewRepository()
		storage.StartJanitor(ctx, repo, cfg.JanitorInterval, cfg.SessionTTL, logger)
		return repo, func() {}, nil
	}
}

// newSessionManager builds the session token manager. Without a configured
// secret a random one is generated, so tokens do not survive a restart.
func newSessionManager(cfg config.Config, logger *slog.Logger) (*session.Manager, error) {
	var secret []byte
	if cfg.SessionSecret != "" {
		secret = []byte(cfg.SessionSecret)
	} else {
		logger.Warn("HEIST_SESSION_SECRET is not set; using a random secret, sessions will not survive a restart")
		b, err := util.RandomBytes(secretLength)
		if err != nil {
			return nil, err
		}
		secret = b
	}
	defer util.WipeBytes(secret)

	m, err := session.NewManager(secret, session.WithTTL(cfg.SessionTTL))
	if err != nil {
		return nil, fmt.Errorf("configuring sessions: %w", err)
	}
	return m, nil
}

// newAlertFunc logs every anomaly and, when a webhook is configured, also
// forwards it there. The returned func drains the webhook queue.
func newAlertFunc(cfg config.Config, logger *slog.Logger) (api.AlertFunc, func()) {
	logAlert := func(e api.AlertEvent) {
		logger.Warn("anomaly detected",
			"type", e.Type,
			"message", e.Message,
			"count", e.Count,
			"threshold", e.Threshold,
		)
	}
	if cfg.AlertWebhookURL == "" {
		return logAlert, func() {}
	}
	wh := api.NewAlertWebhook(cfg.AlertWebhookURL, cfg.AlertWebhookAuth, logger)
	return func(e api.AlertEvent) {
		logAlert(e)
		wh.Notify(e)
	}, wh.Close
}

func newRouter(a *api.API, webHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Mount("/api", a.Router())
	r.Handle("/*", webHandler)
	return r
}
