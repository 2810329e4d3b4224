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

package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/netpresence/pkg/keenetic"
)

const defaultSessionKey = "router-session"

// KVSessionStore keeps the router session in a JetStream KV bucket so that
// several replicas share one login.
type KVSessionStore struct {
	kv  jetstream.KeyValue
	key string
}

var _ keenetic.SessionStore = (*KVSessionStore)(nil)

// NewKVSessionStore binds to bucket, creating it if needed. An empty key
// falls back to "router-session".
func NewKVSessionStore(ctx context.Context, js jetstream.JetStream, bucket, key string) (*KVSessionStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "netpresence router session cookies",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session bucket %s: %w", bucket, err)
	}

	if key == "" {
		key = defaultSessionKey
	}

	return &KVSessionStore{kv: kv, key: key}, nil
}

// Load implements keenetic.SessionStore.
func (s *KVSessionStore) Load(ctx context.Context) (keenetic.Session, error) {
	entry, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, keenetic.ErrNoSession
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session keenetic.Session
	if err := json.Unmarshal(entry.Value(), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	if len(session) == 0 {
		return nil, keenetic.ErrNoSession
	}

	return session, nil
}

// Save implements keenetic.SessionStore.
func (s *KVSessionStore) Save(ctx context.Context, session keenetic.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if _, err := s.kv.Put(ctx, s.key, payload); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	return nil
}
