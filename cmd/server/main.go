// Command fleet-collector is a development backend that accepts agent
// payloads and keeps the latest one per installation.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Schera-ole/fleetagent/internal/audit"
	"github.com/Schera-ole/fleetagent/internal/config"
	"github.com/Schera-ole/fleetagent/internal/handler"
	"github.com/Schera-ole/fleetagent/internal/logger"
	"github.com/Schera-ole/fleetagent/internal/migration"
	"github.com/Schera-ole/fleetagent/internal/repository"
	"github.com/Schera-ole/fleetagent/internal/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "fleet-collector:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	serverConfig, err := config.NewServerConfig(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}
	log, err := logger.New(serverConfig.LogLevel, "json")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := openStorage(ctx, serverConfig, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	auditor, stopAudit := audit.Start(*serverConfig, log)
	defer stopAudit()

	payloadService := service.NewPayloadService(storage, auditor)
	srv := &http.Server{
		Addr:              serverConfig.Address,
		Handler:           handler.Router(payloadService, log, serverConfig),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("collector listening", "address", serverConfig.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStorage returns postgres storage when a DSN is configured and
// in-memory storage otherwise.
func openStorage(ctx context.Context, cfg *config.ServerConfig, log *zap.SugaredLogger) (repository.Repository, func(), error) {
	if cfg.DatabaseDSN == "" {
		log.Info("no database configured, using in-memory storage")
		return repository.NewMemStorage(), func() {}, nil
	}
	if err := migration.RunMigrations(ctx, cfg.DatabaseDSN, log); err != nil {
		return nil, nil, err
	}
	storage, err := repository.NewDBStorage(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return storage, func() {
		if err := storage.Close(); err != nil {
			log.Warnw("closing database failed", "error", err)
		}
	}, nil
}
