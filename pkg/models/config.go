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

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/netpresence/pkg/logger"
)

// Duration is a time.Duration that accepts "5s" style strings or numeric
// nanoseconds in JSON.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		if value == "" {
			*d = 0
			return nil
		}

		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

const (
	DefaultRouterTimeout = 5 * time.Second
	DefaultCronSchedule  = "*/2 * * * *"
	DefaultSessionPath   = "data/auth_cookies.json"
	DefaultSQLitePath    = "data/netpresence.db"
	DefaultHistoryLimit  = 10
	DefaultListenAddr    = ":8090"
	DefaultStreamName    = "presence"
	DefaultSessionBucket = "netpresence-sessions"

	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	SessionBackendFile = "file"
	SessionBackendNATS = "nats"
)

var (
	errInvalidDuration         = fmt.Errorf("invalid duration")
	errRouterAddressRequired   = fmt.Errorf("router.address is required")
	errRouterLoginRequired     = fmt.Errorf("router.login is required")
	errInvalidRouterScheme     = fmt.Errorf("router.scheme must be http or https")
	errInvalidStoreDriver      = fmt.Errorf("store.driver must be sqlite, postgres or memory")
	errCNPGConfigRequired      = fmt.Errorf("store.cnpg is required for the postgres driver")
	errInvalidSessionBackend   = fmt.Errorf("session.backend must be file or nats")
	errNATSRequiredForSessions = fmt.Errorf("nats.url is required for the nats session backend")
	errScheduleConflict        = fmt.Errorf("schedule.cron and schedule.interval are mutually exclusive")
	errNegativeDuration        = fmt.Errorf("durations must not be negative")
)

// RouterConfig describes how to reach the router.
type RouterConfig struct {
	Address  string   `json:"address"`
	Scheme   string   `json:"scheme,omitempty"`
	Login    string   `json:"login"`
	Password string   `json:"password" sensitive:"true"`
	Timeout  Duration `json:"timeout,omitempty"`
}

// BaseURL returns the router root URL.
func (c *RouterConfig) BaseURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "http"
	}

	return scheme + "://" + strings.TrimSuffix(c.Address, "/")
}

// RequestTimeout returns the per-request timeout, applying the default.
func (c *RouterConfig) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultRouterTimeout
	}

	return time.Duration(c.Timeout)
}

// SessionConfig selects where the router session token is persisted.
type SessionConfig struct {
	Backend  string `json:"backend,omitempty"`
	Path     string `json:"path,omitempty"`
	KVBucket string `json:"kv_bucket,omitempty"`
	KVKey    string `json:"kv_key,omitempty"`
}

// ScheduleConfig controls when poll cycles run.
type ScheduleConfig struct {
	Cron       string   `json:"cron,omitempty"`
	Interval   Duration `json:"interval,omitempty"`
	RunOnStart bool     `json:"run_on_start"`
}

// TLSConfig holds client TLS material paths.
type TLSConfig struct {
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
	CAFile   string `json:"ca_file"`
}

// CNPGDatabase describes a Postgres (CloudNativePG) connection.
type CNPGDatabase struct {
	Host               string            `json:"host"`
	Port               int               `json:"port"`
	Database           string            `json:"database"`
	Username           string            `json:"username"`
	Password           string            `json:"password" sensitive:"true"`
	SSLMode            string            `json:"ssl_mode,omitempty"`
	ApplicationName    string            `json:"application_name,omitempty"`
	CertDir            string            `json:"cert_dir,omitempty"`
	TLS                *TLSConfig        `json:"tls,omitempty"`
	MaxConnections     int32             `json:"max_connections,omitempty"`
	MinConnections     int32             `json:"min_connections,omitempty"`
	MaxConnLifetime    Duration          `json:"max_conn_lifetime,omitempty"`
	HealthCheckPeriod  Duration          `json:"health_check_period,omitempty"`
	StatementTimeout   Duration          `json:"statement_timeout,omitempty"`
	ExtraRuntimeParams map[string]string `json:"extra_runtime_params,omitempty"`
}

// StoreConfig selects the Device Store / Event Log backend.
type StoreConfig struct {
	Driver         string        `json:"driver,omitempty"`
	SQLitePath     string        `json:"sqlite_path,omitempty"`
	CNPG           *CNPGDatabase `json:"cnpg,omitempty"`
	EventRetention Duration      `json:"event_retention,omitempty"`
}

// NATSConfig configures the JetStream connection used for event publishing.
type NATSConfig struct {
	URL        string     `json:"url"`
	Domain     string     `json:"domain,omitempty"`
	Stream     string     `json:"stream,omitempty"`
	Subjects   []string   `json:"subjects,omitempty"`
	CredsFile  string     `json:"creds_file,omitempty"`
	CertDir    string     `json:"cert_dir,omitempty"`
	ServerName string     `json:"server_name,omitempty"`
	TLS        *TLSConfig `json:"tls,omitempty"`
}

// Enabled reports whether a NATS server is configured.
func (c *NATSConfig) Enabled() bool {
	return c != nil && c.URL != ""
}

// NotifyConfig controls notification fan-out.
type NotifyConfig struct {
	IncludeUpdates bool     `json:"include_updates"`
	Webhooks       []string `json:"webhooks,omitempty"`
	Timeout        Duration `json:"timeout,omitempty"`
}

// CORSConfig configures cross-origin access to the HTTP API.
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins,omitempty"`
	AllowCredentials bool     `json:"allow_credentials,omitempty"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	ListenAddr string     `json:"listen_addr,omitempty"`
	APIKey     string     `json:"api_key,omitempty" sensitive:"true"`
	APIKeyHash string     `json:"api_key_hash,omitempty"`
	CORS       CORSConfig `json:"cors,omitempty"`
	Disabled   bool       `json:"disabled,omitempty"`
}

// MetricsConfig toggles the OTel metrics and tracing pipelines.
type MetricsConfig struct {
	Enabled        bool     `json:"enabled"`
	ExportInterval Duration `json:"export_interval,omitempty"`
	Tracing        bool     `json:"tracing"`
}

// ServiceConfig is the top level configuration of the netpresence service.
type ServiceConfig struct {
	Router   RouterConfig   `json:"router"`
	Session  SessionConfig  `json:"session"`
	Schedule ScheduleConfig `json:"schedule"`
	Store    StoreConfig    `json:"store"`
	NATS     *NATSConfig    `json:"nats,omitempty"`
	Notify   NotifyConfig   `json:"notify"`
	API      APIConfig      `json:"api"`
	Logging  *logger.Config `json:"logging,omitempty"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// ApplyDefaults fills unset optional fields.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Router.Scheme == "" {
		c.Router.Scheme = "http"
	}

	if c.Router.Timeout <= 0 {
		c.Router.Timeout = Duration(DefaultRouterTimeout)
	}

	if c.Session.Backend == "" {
		c.Session.Backend = SessionBackendFile
	}

	if c.Session.Path == "" {
		c.Session.Path = DefaultSessionPath
	}

	if c.Session.KVBucket == "" {
		c.Session.KVBucket = DefaultSessionBucket
	}

	if c.Schedule.Cron == "" && c.Schedule.Interval <= 0 {
		c.Schedule.Cron = DefaultCronSchedule
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreDriverSQLite
	}

	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = DefaultSQLitePath
	}

	if c.NATS != nil && c.NATS.Stream == "" {
		c.NATS.Stream = DefaultStreamName
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = DefaultListenAddr
	}
}

// Validate implements config.Validator.
func (c *ServiceConfig) Validate() error {
	c.ApplyDefaults()

	if c.Router.Address == "" {
		return errRouterAddressRequired
	}

	if c.Router.Login == "" {
		return errRouterLoginRequired
	}

	if c.Router.Scheme != "http" && c.Router.Scheme != "https" {
		return fmt.Errorf("%w: %q", errInvalidRouterScheme, c.Router.Scheme)
	}

	switch c.Store.Driver {
	case StoreDriverSQLite, StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Store.CNPG == nil {
			return errCNPGConfigRequired
		}
	default:
		return fmt.Errorf("%w: %q", errInvalidStoreDriver, c.Store.Driver)
	}

	switch c.Session.Backend {
	case SessionBackendFile:
	case SessionBackendNATS:
		if !c.NATS.Enabled() {
			return errNATSRequiredForSessions
		}
	default:
		return fmt.Errorf("%w: %q", errInvalidSessionBackend, c.Session.Backend)
	}

	if c.Schedule.Cron != "" && c.Schedule.Interval > 0 {
		return errScheduleConflict
	}

	if c.Schedule.Interval < 0 || c.Store.EventRetention < 0 || c.Notify.Timeout < 0 {
		return errNegativeDuration
	}

	return nil
}
