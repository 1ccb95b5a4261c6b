// Package agent wires metric sources, payload assembly, delivery, the
// scheduler, the log sensor and the control API into one process.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Schera-ole/fleetagent/internal/config"
	"github.com/Schera-ole/fleetagent/internal/control"
	"github.com/Schera-ole/fleetagent/internal/delivery"
	"github.com/Schera-ole/fleetagent/internal/hostenv"
	"github.com/Schera-ole/fleetagent/internal/logs"
	models "github.com/Schera-ole/fleetagent/internal/model"
	"github.com/Schera-ole/fleetagent/internal/payload"
	"github.com/Schera-ole/fleetagent/internal/scheduler"
	"github.com/Schera-ole/fleetagent/internal/source"
)

const cpuSampleWindow = time.Second

type Agent struct {
	cfg       config.AgentConfig
	logger    *zap.SugaredLogger
	identity  models.Identity
	sources   []source.Source
	client    *delivery.Client
	scheduler *scheduler.Scheduler
	logs      *logs.Service
	sensor    *logs.Sensor
	registry  *prometheus.Registry
	metrics   *scheduler.Metrics
	now       func() time.Time
}

// New builds an agent from a validated config.
func New(cfg config.AgentConfig, logger *zap.SugaredLogger) (*Agent, error) {
	identity, err := payload.LoadOrCreateIdentity(cfg.StateDir, cfg.InstanceName, config.Version)
	if err != nil {
		return nil, fmt.Errorf("instance identity: %w", err)
	}
	codec, err := payload.CodecFor(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	metrics, err := scheduler.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	var env hostenv.Environment
	if cfg.HomeAssistantURL != "" {
		env = hostenv.NewClient(cfg.HomeAssistantURL, cfg.HomeAssistantToken, cfg.SourceTimeout)
	}
	var backups hostenv.BackupLister
	if cfg.SupervisorToken != "" {
		backups = hostenv.NewSupervisorClient(cfg.SupervisorURL, cfg.SupervisorToken, cfg.SourceTimeout)
	}

	a := &Agent{
		cfg:      cfg,
		logger:   logger,
		identity: identity,
		sources:  BuildSources(cfg, env, backups),
		client: delivery.NewClient(delivery.Config{
			BackendURL:  cfg.BackendURL,
			Token:       cfg.APIToken,
			SigningKey:  cfg.SigningKey,
			Timeout:     cfg.RequestTimeout,
			MaxRetries:  cfg.MaxRetries,
			BackoffBase: cfg.BackoffBase,
			BackoffMax:  cfg.BackoffMax,
			Compress:    cfg.Compress,
			Codec:       codec,
			UserAgent:   "fleet-agent/" + config.Version,
		}, logger),
		logs:     logs.NewService(cfg.LogPath(), cfg.LogMaxLines, cfg.LogDefaultLines),
		registry: registry,
		metrics:  metrics,
		now:      time.Now,
	}
	a.sensor = logs.NewSensor(a.logs, cfg.LogSensorInterval, logger)
	a.scheduler = scheduler.New(cfg.Interval(), a.RunCycle, logger, metrics)
	return a, nil
}

// BuildSources returns one source per category. env and backups may be
// nil; the sources depending on them then report unavailable.
func BuildSources(cfg config.AgentConfig, env hostenv.Environment, backups hostenv.BackupLister) []source.Source {
	diskPath := cfg.ConfigDir
	if diskPath == "" {
		diskPath = "/"
	}
	return []source.Source{
		source.NewSystemSource(env),
		source.NewPerformanceSource(diskPath, cpuSampleWindow),
		source.NewEntitySource(env),
		source.NewSecuritySource(env, cfg.CertFile),
		source.NewDatabaseSource(env, cfg.RecorderDBURL),
		source.NewBackupSource(backups),
	}
}

func (a *Agent) Identity() models.Identity {
	return a.identity
}

// RunCycle samples every source, assembles the payload and delivers it.
// It returns the delivery error, if any; source failures are carried in
// the payload.
func (a *Agent) RunCycle(ctx context.Context) error {
	collectedAt := a.now()
	sets := source.Collect(ctx, a.sources, a.cfg.SourceTimeout, a.logger)
	for _, set := range sets {
		if set.Err() != "" {
			a.metrics.SourceUnavailable.WithLabelValues(string(set.Category())).Inc()
		}
	}

	p := payload.Assemble(sets, a.identity, collectedAt)
	out := a.client.Deliver(ctx, p)
	if !out.Delivered {
		a.metrics.DeliveryFailures.WithLabelValues(string(out.Kind())).Inc()
		return out.Err
	}

	a.logger.Infow("payload delivered",
		"instance_id", a.identity.InstanceID,
		"sets", len(p.MetricSets),
		"retries", out.Retries(),
		"ack", out.Ack,
	)
	return nil
}

// Run blocks until ctx is done, then stops the scheduler within the
// configured grace period.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Infow("starting fleet agent",
		"instance_id", a.identity.InstanceID,
		"backend", a.cfg.BackendURL,
		"interval", a.cfg.Interval(),
		"version", config.Version,
	)
	if err := a.client.Ping(ctx); err != nil {
		a.logger.Warnw("collector health check failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.sensor.Run(gctx)
	})
	if a.cfg.ControlAddr != "" {
		srv := control.NewServer(a.cfg.ControlAddr, control.Router(control.Deps{
			Cycles:   a.scheduler,
			Logs:     a.logs,
			Sensor:   a.sensor,
			Gatherer: a.registry,
			Logger:   a.logger,
		}))
		g.Go(func() error {
			a.logger.Infow("control API listening", "addr", a.cfg.ControlAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		if err := a.scheduler.Stop(a.cfg.ShutdownGrace); err != nil {
			a.logger.Warnw("shutdown grace period exceeded", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("fleet agent stopped")
	return nil
}
