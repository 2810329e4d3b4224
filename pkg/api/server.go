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

// Package api provides the HTTP API server for netpresence.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	srHttp "github.com/carverauto/netpresence/pkg/http"
	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// APIServer serves device state, history and manual scans over HTTP.
type APIServer struct {
	router        *mux.Router
	cfg           models.APIConfig
	store         DeviceReader
	scanner       Scanner
	hub           *Hub
	dispatcher    EventDispatcher
	serviceConfig interface{}
	logger        logger.Logger
	now           func() time.Time

	srv *http.Server
}

// NewAPIServer creates a new API server instance with the given configuration.
func NewAPIServer(cfg *models.APIConfig, log logger.Logger, options ...func(server *APIServer)) *APIServer {
	if log == nil {
		log = logger.NewTestLogger()
	}

	s := &APIServer{
		router: mux.NewRouter(),
		logger: log,
		now:    time.Now,
	}

	if cfg != nil {
		s.cfg = *cfg
	}

	for _, o := range options {
		o(s)
	}

	if s.hub == nil {
		s.hub = NewHub(log)
	}

	s.setupRoutes()

	return s
}

// WithStore sets the device store the API reads from.
func WithStore(store DeviceReader) func(server *APIServer) {
	return func(server *APIServer) {
		server.store = store
	}
}

// WithScanner enables /api/scan and cycle status.
func WithScanner(scanner Scanner) func(server *APIServer) {
	return func(server *APIServer) {
		server.scanner = scanner
	}
}

// WithHub sets the websocket hub serving /api/stream.
func WithHub(hub *Hub) func(server *APIServer) {
	return func(server *APIServer) {
		server.hub = hub
	}
}

// WithDispatcher enables /api/notify/test.
func WithDispatcher(dispatcher EventDispatcher) func(server *APIServer) {
	return func(server *APIServer) {
		server.dispatcher = dispatcher
	}
}

// WithServiceConfig exposes a sanitized copy of cfg on /api/config.
func WithServiceConfig(cfg interface{}) func(server *APIServer) {
	return func(server *APIServer) {
		server.serviceConfig = cfg
	}
}

// WithClock overrides the time source used for dwell times.
func WithClock(now func() time.Time) func(server *APIServer) {
	return func(server *APIServer) {
		server.now = now
	}
}

// Hub returns the websocket hub, which is also a notification recipient.
func (s *APIServer) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler.
func (s *APIServer) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes for the API server.
func (s *APIServer) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return srHttp.CommonMiddleware(next, s.cfg.CORS, s.logger)
	})

	s.router.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)

	protected := s.router.PathPrefix("/api").Subrouter()
	protected.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	protected.Use(srHttp.APIKeyMiddlewareWithOptions(srHttp.APIKeyOptions{
		APIKey:          s.cfg.APIKey,
		APIKeyHash:      s.cfg.APIKeyHash,
		LogUnauthorized: true,
		Logger:          s.logger,
	}))

	protected.HandleFunc("/status", s.getStatus).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/devices", s.getOnlineDevices).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/devices/all", s.getAllDevices).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/devices/{mac}/events", s.getDeviceEvents).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/events", s.getEvents).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/scan", s.postScan).Methods(http.MethodPost, http.MethodOptions)
	protected.HandleFunc("/notify/test", s.postTestNotify).Methods(http.MethodPost, http.MethodOptions)
	protected.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/config", s.getConfig).Methods(http.MethodGet, http.MethodOptions)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, "method not allowed", http.StatusMethodNotAllowed)
}

// Start listens on the configured address in the background.
func (s *APIServer) Start(_ context.Context) error {
	addr := s.cfg.ListenAddr
	if addr == "" {
		addr = models.DefaultListenAddr
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server stopped unexpectedly")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("API server listening")

	return nil
}

// Stop closes websocket clients and shuts the server down.
func (s *APIServer) Stop(ctx context.Context) error {
	s.hub.Close()

	if s.srv == nil {
		return nil
	}

	return s.srv.Shutdown(ctx)
}

// encodeJSONResponse encodes a response as JSON
func (s *APIServer) encodeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(statusCode)

	errResponse := models.ErrorResponse{
		Message: message,
		Status:  statusCode,
	}

	if err := json.NewEncoder(w).Encode(errResponse); err != nil {
		// Fallback in case encoding fails
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
