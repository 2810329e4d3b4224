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

package db

import "errors"

var (
	// Connection and schema errors.

	ErrFailedOpenDB = errors.New("failed to open database")
	ErrFailedToInit = errors.New("failed to initialize schema")

	// Operation errors.

	ErrFailedToQuery  = errors.New("failed to query")
	ErrFailedToInsert = errors.New("failed to insert")
	ErrFailedToScan   = errors.New("failed to scan")

	// Validation errors.

	ErrDeviceNil         = errors.New("device is nil")
	ErrDeviceMACRequired = errors.New("device mac is required")
	ErrEventNil          = errors.New("presence event is nil")
	ErrEventTypeInvalid  = errors.New("presence event type is invalid")

	// CNPG configuration errors.

	ErrCNPGConfigRequired  = errors.New("cnpg configuration is required")
	ErrCNPGTLSDisabled     = errors.New("cnpg tls configured but sslmode is disable")
	ErrCNPGLackingTLSFiles = errors.New("cnpg tls requires cert_file, key_file, and ca_file")
	ErrCNPGInvalidSSLMode  = errors.New("cnpg sslmode is invalid")

	errUnsupportedDriver = errors.New("unsupported store driver")
)
