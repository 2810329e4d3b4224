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

// Package http holds the middleware shared by the netpresence HTTP API.
package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

const (
	apiKeyHeader     = "X-API-Key"
	apiKeyQueryParam = "api_key"
)

var errEmptyAPIKey = errors.New("api key must not be empty")

// CommonMiddleware logs requests and applies the CORS policy.
func CommonMiddleware(next http.Handler, corsConfig models.CORSConfig, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug().
			Str("remote_addr", r.RemoteAddr).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("HTTP request")

		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, corsConfig.AllowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if corsConfig.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// OriginAllowed reports whether origin may access the API. An empty request
// origin is always allowed.
func OriginAllowed(origin string, corsConfig models.CORSConfig) bool {
	return origin == "" || originAllowed(origin, corsConfig.AllowedOrigins)
}

func originAllowed(origin string, allowed []string) bool {
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}

	return false
}

// APIKeyOptions configures APIKeyMiddlewareWithOptions. When both APIKey and
// APIKeyHash are empty every request is let through.
type APIKeyOptions struct {
	APIKey string
	// APIKeyHash is a bcrypt hash of the key, as produced by HashAPIKey.
	APIKeyHash      string
	ExcludePaths    []string
	LogUnauthorized bool
	Logger          logger.Logger
}

// Enabled reports whether a key is configured.
func (o *APIKeyOptions) Enabled() bool {
	return o.APIKey != "" || o.APIKeyHash != ""
}

// Verify checks a presented key against the configured key or hash.
func (o *APIKeyOptions) Verify(presented string) bool {
	if !o.Enabled() {
		return true
	}

	if presented == "" {
		return false
	}

	if o.APIKeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(o.APIKeyHash), []byte(presented)) == nil
	}

	return subtle.ConstantTimeCompare([]byte(o.APIKey), []byte(presented)) == 1
}

// RequestAPIKey extracts the key from the X-API-Key header or the api_key query parameter.
func RequestAPIKey(r *http.Request) string {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		return key
	}

	return r.URL.Query().Get(apiKeyQueryParam)
}

// APIKeyMiddleware protects every path with a plain API key.
func APIKeyMiddleware(apiKey string, log logger.Logger) func(next http.Handler) http.Handler {
	return APIKeyMiddlewareWithOptions(APIKeyOptions{APIKey: apiKey, LogUnauthorized: true, Logger: log})
}

// APIKeyMiddlewareWithOptions returns middleware rejecting requests without a valid key.
func APIKeyMiddlewareWithOptions(opts APIKeyOptions) func(next http.Handler) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || excluded(r.URL.Path, opts.ExcludePaths) {
				next.ServeHTTP(w, r)
				return
			}

			if !opts.Verify(RequestAPIKey(r)) {
				if opts.LogUnauthorized {
					log.Warn().
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Str("remote_addr", r.RemoteAddr).
						Msg("Unauthorized API access attempt")
				}

				http.Error(w, "Unauthorized", http.StatusUnauthorized)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func excluded(path string, paths []string) bool {
	for _, p := range paths {
		if p == path || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}

	return false
}

// HashAPIKey returns the bcrypt hash to store in api.api_key_hash.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", errEmptyAPIKey
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}
