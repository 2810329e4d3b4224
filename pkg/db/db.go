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

import (
	"context"
	"fmt"

	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
	"github.com/carverauto/netpresence/pkg/presence"
)

// Open returns the Service selected by cfg.Driver, with its schema migrated.
func Open(ctx context.Context, cfg *models.StoreConfig, log logger.Logger) (Service, error) {
	switch cfg.Driver {
	case models.StoreDriverSQLite, "":
		path := cfg.SQLitePath
		if path == "" {
			path = models.DefaultSQLitePath
		}

		store, err := OpenSQLite(path, log)
		if err != nil {
			return nil, err
		}

		return store, nil
	case models.StoreDriverPostgres:
		if cfg.CNPG == nil {
			return nil, ErrCNPGConfigRequired
		}

		pool, err := NewCNPGPool(ctx, cfg.CNPG, log)
		if err != nil {
			return nil, err
		}

		if err := RunCNPGMigrations(ctx, pool, log); err != nil {
			pool.Close()
			return nil, err
		}

		return NewCNPGStore(pool), nil
	case models.StoreDriverMemory:
		log.Warn().Msg("using in-memory store; device state is lost on restart")

		return &memoryService{MemoryStore: presence.NewMemoryStore()}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedDriver, cfg.Driver)
	}
}

type memoryService struct {
	*presence.MemoryStore
}

func (*memoryService) Close() error {
	return nil
}
