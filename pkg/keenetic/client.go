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

// Package keenetic talks to a Keenetic router: the NDM challenge/response
// login, the persisted cookie session and the RCI client list.
package keenetic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

const (
	authPath    = "/auth"
	systemPath  = "/rci/show/system"
	hotspotPath = "/rci/show/ip/hotspot"

	headerChallenge = "X-NDM-Challenge"
	headerRealm     = "X-NDM-Realm"
	headerProduct   = "X-NDM-Product"

	maxBodySize = 8 << 20
)

// SystemInfo is the subset of /rci/show/system the service reports.
type SystemInfo struct {
	Model    string      `json:"model"`
	Release  string      `json:"release"`
	Uptime   json.Number `json:"uptime"`
	Hostname string      `json:"hostname"`
}

// Client holds one authenticated router session.
type Client struct {
	baseURL  string
	login    string
	password string
	timeout  time.Duration

	httpClient HTTPClient
	sessions   SessionStore
	logger     logger.Logger

	// authMu serializes Authenticate; mu guards the jar and product.
	authMu  sync.Mutex
	mu      sync.RWMutex
	jar     Session
	product string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default net/http client.
func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient builds a router client. sessions may be nil, in which case the
// session only lives in memory.
func NewClient(cfg *models.RouterConfig, sessions SessionStore, log logger.Logger, opts ...Option) (*Client, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, errRouterConfigRequired
	}

	c := &Client{
		baseURL:    cfg.BaseURL(),
		login:      cfg.Login,
		password:   cfg.Password,
		timeout:    cfg.RequestTimeout(),
		httpClient: &http.Client{},
		sessions:   sessions,
		logger:     log,
		jar:        make(Session),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Product returns the X-NDM-Product value from the last handshake.
func (c *Client) Product() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.product
}

// Authenticate ensures the client holds a valid session: it reuses the
// persisted cookies when a probe succeeds and otherwise performs one
// challenge/response handshake. It never retries.
func (c *Client) Authenticate(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	if c.restoreSession(ctx) {
		resp, err := c.do(ctx, http.MethodGet, systemPath, nil)

		switch {
		case err != nil:
			c.logger.Debug().Err(err).Msg("Session probe failed, re-authenticating")
		case resp.status == http.StatusOK:
			c.logger.Debug().Msg("Persisted router session is valid")
			return nil
		default:
			c.logger.Info().Int("status", resp.status).Msg("Router session expired, re-authenticating")
		}
	}

	return c.handshake(ctx)
}

// restoreSession loads the persisted jar and reports whether there is any
// session worth probing.
func (c *Client) restoreSession(ctx context.Context) bool {
	if c.sessions != nil {
		session, err := c.sessions.Load(ctx)

		switch {
		case err == nil:
			c.mu.Lock()
			c.jar = session.Clone()
			c.mu.Unlock()
		case errors.Is(err, ErrNoSession):
			c.logger.Debug().Msg("No persisted router session")
		default:
			c.logger.Warn().Err(err).Msg("Failed to load persisted router session")
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.jar) > 0
}

func (c *Client) handshake(ctx context.Context) error {
	challengeResp, err := c.do(ctx, http.MethodGet, authPath, nil)
	if err != nil {
		return err
	}

	challenge := challengeResp.header.Get(headerChallenge)
	realm := challengeResp.header.Get(headerRealm)
	product := challengeResp.header.Get(headerProduct)

	c.mu.Lock()
	c.product = product
	c.mu.Unlock()

	if challenge == "" || realm == "" {
		return fmt.Errorf("%w: missing %s or %s header (status %d)",
			ErrAuthProtocol, headerChallenge, headerRealm, challengeResp.status)
	}

	c.logger.Debug().
		Str("realm", realm).
		Str("product", product).
		Msg("Received router auth challenge")

	payload := map[string]string{
		"login":    c.login,
		"password": ComputeDigest(c.login, realm, c.password, challenge),
	}

	authResp, err := c.do(ctx, http.MethodPost, authPath, payload)
	if err != nil {
		return err
	}

	if authResp.status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAuthFailed, authResp.status)
	}

	c.persistSession(ctx)

	c.logger.Info().Str("product", product).Msg("Authenticated with router")

	return nil
}

// persistSession saves the jar. A failed save keeps the in-memory session
// usable and is only logged.
func (c *Client) persistSession(ctx context.Context) {
	if c.sessions == nil {
		return
	}

	c.mu.RLock()
	session := c.jar.Clone()
	c.mu.RUnlock()

	if err := c.sessions.Save(ctx, session); err != nil {
		c.logger.Error().Err(err).Msg("Failed to persist router session")
	}
}

// SystemInfo reads /rci/show/system.
func (c *Client) SystemInfo(ctx context.Context) (*SystemInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, systemPath, nil)
	if err != nil {
		return nil, err
	}

	if resp.status != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, systemPath, resp.status)
	}

	var info SystemInfo
	if err := json.Unmarshal(resp.body, &info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	return &info, nil
}

// FetchSnapshot reads /rci/show/ip/hotspot and returns the active clients.
func (c *Client) FetchSnapshot(ctx context.Context) ([]models.ClientRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, hotspotPath, nil)
	if err != nil {
		return nil, err
	}

	if resp.status != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, hotspotPath, resp.status)
	}

	records, stats, err := normalizeHosts(resp.body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("hosts", stats.total).
		Int("active", len(records)).
		Int("malformed", stats.malformed).
		Msg("Fetched router client list")

	return records, nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends one request bounded by the client timeout, replaying the jar and
// capturing any Set-Cookie headers from the answer.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	cookie := c.jar.Header()
	c.mu.RUnlock()

	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.captureCookies(resp.Header.Values("Set-Cookie"))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s %s: %w", ErrTransport, method, path, err)
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) captureCookies(values []string) {
	if len(values) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, raw := range values {
		pair, _, _ := strings.Cut(raw, ";")

		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		if !ok || name == "" || value == "" {
			continue
		}

		c.jar[name] = value
	}
}
