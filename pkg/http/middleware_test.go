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

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

func okHandler(t *testing.T) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			t.Errorf("Error writing response: %v", err)
		}
	})
}

func TestCommonMiddleware_CORS(t *testing.T) {
	log := logger.NewTestLogger()

	corsConfig := models.CORSConfig{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
	}

	handler := CommonMiddleware(okHandler(t), corsConfig, log)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Origin", "http://localhost:3000")

	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("CORS origin not set correctly: got %v", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Errorf("CORS credentials header missing")
	}

	// Test unallowed origin
	req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)

	req.Header.Set("Origin", "http://evil.com")

	rr = httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") == "http://evil.com" {
		t.Errorf("CORS allowed an unpermitted origin")
	}
}

func TestCommonMiddleware_Preflight(t *testing.T) {
	called := false

	handler := CommonMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}), models.CORSConfig{AllowedOrigins: []string{"*"}}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/devices", http.NoBody)
	req.Header.Set("Origin", "http://localhost:5173")

	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("preflight returned %d", rr.Code)
	}

	if called {
		t.Errorf("preflight reached the wrapped handler")
	}

	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("wildcard origin not echoed: %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestAPIKeyMiddleware_Unauthorized(t *testing.T) {
	log := logger.NewTestLogger()

	opts := APIKeyOptions{
		APIKey:          "test-key",
		ExcludePaths:    []string{"/health"},
		LogUnauthorized: true,
		Logger:          log,
	}

	handler := APIKeyMiddlewareWithOptions(opts)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/test", http.NoBody)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusUnauthorized {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/test", http.NoBody)
	req.Header.Set("X-API-Key", "wrong")

	rr = httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusUnauthorized {
		t.Errorf("wrong key accepted: got %v", status)
	}
}

func TestAPIKeyMiddleware_Authorized(t *testing.T) {
	handler := APIKeyMiddleware("test-key", logger.NewTestLogger())(okHandler(t))

	tests := []struct {
		name   string
		target string
		header string
	}{
		{name: "header", target: "/api/test", header: "test-key"},
		{name: "query parameter", target: "/api/test?api_key=test-key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}

			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
			}
		})
	}
}

func TestAPIKeyMiddleware_ExcludedPath(t *testing.T) {
	handler := APIKeyMiddlewareWithOptions(APIKeyOptions{
		APIKey:       "test-key",
		ExcludePaths: []string{"/health"},
	})(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("excluded path returned %d", rr.Code)
	}
}

func TestAPIKeyMiddleware_Hash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash key: %v", err)
	}

	opts := APIKeyOptions{APIKeyHash: string(hash)}

	if !opts.Verify("s3cret") {
		t.Errorf("matching key rejected")
	}

	if opts.Verify("other") {
		t.Errorf("wrong key accepted")
	}

	if opts.Verify("") {
		t.Errorf("empty key accepted")
	}
}

func TestAPIKeyMiddleware_Disabled(t *testing.T) {
	opts := APIKeyOptions{}

	if opts.Enabled() {
		t.Fatalf("empty options should be disabled")
	}

	handler := APIKeyMiddlewareWithOptions(opts)(okHandler(t))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/devices", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Errorf("request rejected without a configured key: %d", rr.Code)
	}
}

func TestHashAPIKey(t *testing.T) {
	if _, err := HashAPIKey(""); err == nil {
		t.Fatalf("expected error for empty key")
	}

	hash, err := HashAPIKey("rotate-me")
	if err != nil {
		t.Fatalf("HashAPIKey returned error: %v", err)
	}

	opts := APIKeyOptions{APIKeyHash: hash}
	if !opts.Verify("rotate-me") {
		t.Errorf("hash does not verify its own key")
	}
}
