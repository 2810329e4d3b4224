/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package app wires the netpresence service together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/netpresence/pkg/api"
	"github.com/carverauto/netpresence/pkg/config"
	"github.com/carverauto/netpresence/pkg/db"
	"github.com/carverauto/netpresence/pkg/keenetic"
	"github.com/carverauto/netpresence/pkg/lifecycle"
	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
	"github.com/carverauto/netpresence/pkg/monitor"
	"github.com/carverauto/netpresence/pkg/natsutil"
	"github.com/carverauto/netpresence/pkg/notify"
	"github.com/carverauto/netpresence/pkg/presence"
	"github.com/carverauto/netpresence/pkg/version"
)

const serviceName = "netpresence"

var (
	errFailedToLoadConfig = errors.New("failed to load config")
	errNATSSessionNoConn  = errors.New("nats session backend requires a nats connection")
)

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath string
}

// Run boots the service and blocks until it is stopped.
func Run(ctx context.Context, opts Options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var cfg models.ServiceConfig

	if err := config.NewConfig(nil).LoadAndValidate(ctx, opts.ConfigPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	mainLogger, err := lifecycle.CreateComponentLogger(ctx, serviceName, cfg.Logging)
	if err != nil {
		return err
	}

	defer func() {
		if shutdownErr := lifecycle.ShutdownLogger(); shutdownErr != nil {
			mainLogger.Error().Err(shutdownErr).Msg("Error shutting down logger")
		}
	}()

	if err := initTelemetry(ctx, &cfg, mainLogger); err != nil {
		return err
	}

	if sanitized, err := config.Sanitized(&cfg); err == nil {
		mainLogger.Info().RawJSON("config", sanitized).Str("version", version.GetFullVersion()).
			Msg("Loaded configuration")
	}

	svc, err := newService(ctx, &cfg, mainLogger)
	if err != nil {
		return err
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ServiceName: serviceName,
		Service:     svc,
		Logger:      mainLogger,
	})
}

func initTelemetry(ctx context.Context, cfg *models.ServiceConfig, log logger.Logger) error {
	otelCfg := logger.DefaultOTelConfig()
	if cfg.Logging != nil {
		otelCfg = cfg.Logging.OTel
	}

	if cfg.Metrics.Tracing {
		if _, err := logger.InitializeTracing(ctx, logger.TracingConfig{
			ServiceName:    serviceName,
			ServiceVersion: version.GetVersion(),
			Logger:         log,
			OTel:           &otelCfg,
		}); err != nil {
			return err
		}
	}

	if cfg.Metrics.Enabled {
		_, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
			ServiceName:    serviceName,
			ServiceVersion: version.GetVersion(),
			OTel:           &otelCfg,
			ExportInterval: time.Duration(cfg.Metrics.ExportInterval),
		})

		switch {
		case errors.Is(err, logger.ErrOTelMetricsDisabled):
			log.Warn().Msg("Metrics enabled but no OTel endpoint configured, gauges stay in-process")
		case err != nil:
			return err
		}
	}

	return nil
}

// service runs the monitor and the API and owns the store and NATS connection.
type service struct {
	monitor *monitor.Monitor
	api     *api.APIServer
	store   db.Service
	nc      *nats.Conn
	logger  logger.Logger
}

func newService(ctx context.Context, cfg *models.ServiceConfig, log logger.Logger) (_ *service, err error) {
	svc := &service{logger: log}

	defer func() {
		if err != nil {
			if closeErr := svc.close(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("Failed to release resources after setup error")
			}
		}
	}()

	svc.store, err = db.Open(ctx, &cfg.Store, log)
	if err != nil {
		return nil, err
	}

	var (
		js        jetstream.JetStream
		publisher *natsutil.EventPublisher
	)

	if cfg.NATS.Enabled() {
		svc.nc, err = natsutil.Connect(cfg.NATS, log)
		if err != nil {
			return nil, err
		}

		js, err = natsutil.NewJetStream(svc.nc, cfg.NATS.Domain)
		if err != nil {
			return nil, err
		}

		publisher, err = natsutil.CreateEventPublisher(ctx, js, cfg.NATS, log)
		if err != nil {
			return nil, err
		}
	}

	sessions, err := newSessionStore(ctx, &cfg.Session, js)
	if err != nil {
		return nil, err
	}

	router, err := keenetic.NewClient(&cfg.Router, sessions, log)
	if err != nil {
		return nil, err
	}

	dispatcher, hub, err := newDispatcher(&cfg.Notify, publisher, log)
	if err != nil {
		return nil, err
	}

	engine := presence.NewEngine(svc.store, log)

	svc.monitor, err = monitor.New(&cfg.Schedule, router, engine, dispatcher, log,
		monitor.WithRetention(svc.store, time.Duration(cfg.Store.EventRetention)))
	if err != nil {
		return nil, err
	}

	if !cfg.API.Disabled {
		svc.api = api.NewAPIServer(&cfg.API, log,
			api.WithStore(svc.store),
			api.WithScanner(svc.monitor),
			api.WithHub(hub),
			api.WithDispatcher(dispatcher),
			api.WithServiceConfig(cfg))
	}

	return svc, nil
}

func newSessionStore(ctx context.Context, cfg *models.SessionConfig, js jetstream.JetStream) (keenetic.SessionStore, error) {
	if cfg.Backend == models.SessionBackendNATS {
		if js == nil {
			return nil, errNATSSessionNoConn
		}

		return natsutil.NewKVSessionStore(ctx, js, cfg.KVBucket, cfg.KVKey)
	}

	path := cfg.Path
	if path == "" {
		path = models.DefaultSessionPath
	}

	return keenetic.NewFileSessionStore(path), nil
}

// newDispatcher registers the webhooks, the websocket hub and the NATS
// publisher as notification recipients.
func newDispatcher(
	cfg *models.NotifyConfig,
	publisher *natsutil.EventPublisher,
	log logger.Logger,
) (*notify.Dispatcher, *api.Hub, error) {
	webhooks, err := notify.NewWebhookNotifiers(cfg, &http.Client{Timeout: notifyTimeout(cfg)})
	if err != nil {
		return nil, nil, err
	}

	hub := api.NewHub(log)

	dispatcher := notify.NewDispatcher(cfg, log, webhooks...)
	dispatcher.Register(hub)

	if publisher != nil {
		dispatcher.Register(publisher)
	}

	log.Info().Strs("recipients", dispatcher.Recipients()).Msg("Notification recipients registered")

	return dispatcher, hub, nil
}

func notifyTimeout(cfg *models.NotifyConfig) time.Duration {
	if cfg.Timeout > 0 {
		return time.Duration(cfg.Timeout)
	}

	return notify.DefaultTimeout
}

// Start implements lifecycle.Service.
func (s *service) Start(ctx context.Context) error {
	if s.api != nil {
		if err := s.api.Start(ctx); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	if err := s.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	return nil
}

// Stop implements lifecycle.Service. The monitor is stopped first so the last
// cycle can still persist and notify.
func (s *service) Stop(ctx context.Context) error {
	var errs []error

	if err := s.monitor.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("monitor: %w", err))
	}

	if s.api != nil {
		if err := s.api.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api: %w", err))
		}
	}

	if err := s.close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s *service) close() error {
	var errs []error

	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("nats: %w", err))
		}

		s.nc = nil
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}

		s.store = nil
	}

	return errors.Join(errs...)
}
