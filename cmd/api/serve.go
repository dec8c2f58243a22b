package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"brucewnd/api/internal/app"
	"brucewnd/api/internal/auth"
	"brucewnd/api/internal/authpw"
	"brucewnd/api/internal/catalog"
	"brucewnd/api/internal/metrics"
	"brucewnd/api/internal/objectstore"
	"brucewnd/api/internal/search"
	"brucewnd/api/internal/session"
	"brucewnd/api/internal/store"
	"brucewnd/api/internal/validation"
)

func newServeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cc)
		},
	}
}

func runServe(ctx context.Context, cc *commandContext) error {
	cfg, logger := cc.cfg, cc.logger
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions())
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	instruments := metrics.New(registry)

	pgSearch := search.NewPostgres(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	searchService := search.NewService(meiliClient, pgSearch, logger)
	defer searchService.Close()
	searchService.Reindex(ctx, pgSearch)

	issuer, err := auth.NewIssuer([]byte(cfg.JWTKey), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	service := catalog.NewService(
		catalog.NewPostgresStore(store.NewPostgresStore(db)),
		authpw.NewHasher(cfg.BcryptCost),
		catalog.Options{
			MaxAttempts: cfg.TxMaxAttempts,
			Index:       searchService,
			Metrics:     instruments,
			Logger:      logger,
		},
	)

	deps := app.Deps{
		Catalog:     service,
		Tokens:      issuer,
		RefreshTTL:  cfg.RefreshTTL,
		Validator:   validation.New(),
		Metrics:     instruments,
		Gatherer:    registry,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		sessions, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer sessions.Close()
		deps.Sessions = sessions
		logger.Info("refresh sessions enabled")
	} else {
		logger.Warn("REDIS_URL not set; refresh tokens disabled")
	}

	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		presigner, err := objectstore.New(objectstore.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicURL,
			Expiry:    cfg.UploadURLTTL,
		})
		if err != nil {
			return fmt.Errorf("object storage: %w", err)
		}
		deps.Uploads = presigner
	} else {
		logger.Warn("S3_ENDPOINT not set; cover uploads disabled")
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
