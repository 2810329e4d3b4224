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

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/netpresence/pkg/models"
)

// APIClient talks to the netpresence HTTP API.
type APIClient struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

// NewAPIClient creates a client for the API at rawURL.
func NewAPIClient(rawURL, apiKey string, timeout time.Duration) (*APIClient, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errAPIURLRequired
	}

	u, err := url.Parse(strings.TrimSuffix(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &APIClient{
		baseURL:    u,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Devices returns online devices, or every known device when all is set.
func (c *APIClient) Devices(ctx context.Context, all bool) ([]models.DeviceView, error) {
	path := "/api/devices"
	if all {
		path = "/api/devices/all"
	}

	var devices []models.DeviceView

	if err := c.do(ctx, http.MethodGet, path, nil, &devices); err != nil {
		return nil, err
	}

	return devices, nil
}

// History returns the newest events, optionally for one MAC.
func (c *APIClient) History(ctx context.Context, mac string, limit int) ([]*models.PresenceEvent, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	if mac != "" {
		query.Set("mac", mac)
	}

	var events []*models.PresenceEvent

	if err := c.do(ctx, http.MethodGet, "/api/events", query, &events); err != nil {
		return nil, err
	}

	return events, nil
}

// Scan triggers a poll cycle. A failed cycle returns its status along with the error.
func (c *APIClient) Scan(ctx context.Context) (*models.ScanResponse, error) {
	var resp models.ScanResponse

	err := c.do(ctx, http.MethodPost, "/api/scan", nil, &resp)
	if resp.Status.CycleID == "" {
		if err != nil {
			return nil, err
		}

		return &resp, nil
	}

	return &resp, err
}

// TestNotify sends a sample CONNECTED and DISCONNECTED pair to every recipient.
func (c *APIClient) TestNotify(ctx context.Context) (*models.TestNotifyResponse, error) {
	var resp models.TestNotifyResponse

	if err := c.do(ctx, http.MethodPost, "/api/notify/test", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), http.NoBody)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")

	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errAPIRequest, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", errAPIRequest, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: decoding response: %w", errAPIRequest, err)
		}

		return nil
	}

	// a failed scan still carries the cycle status
	_ = json.Unmarshal(body, out)

	var apiErr models.ErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		return fmt.Errorf("%w: %d %s", errAPIRequest, resp.StatusCode, apiErr.Message)
	}

	return fmt.Errorf("%w: %s", errAPIRequest, resp.Status)
}
