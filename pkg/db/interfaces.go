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

// Package db provides the SQLite and CNPG (Postgres) backed Device Store and
// Event Log.
package db

import (
	"github.com/carverauto/netpresence/pkg/presence"
)

// Service is a Device Store / Event Log that enforces retention and owns a
// connection that must be closed.
type Service interface {
	presence.Store
	presence.Pruner

	Close() error
}
