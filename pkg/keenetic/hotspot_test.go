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

package keenetic

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netpresence/pkg/models"
)

func TestNormalizeHosts(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []models.ClientRecord
		wantErr error
	}{
		{
			name: "bare array",
			body: `[{"mac":"AA:BB","ip":"10.0.0.2","active":true}]`,
			want: []models.ClientRecord{{MAC: "aa:bb", IP: "10.0.0.2", Active: true}},
		},
		{
			name: "object without host",
			body: `{"other":[]}`,
			want: []models.ClientRecord{},
		},
		{
			name: "interface object falls back to id",
			body: `{"host":[{"mac":"aa:bb","interface":{"id":"WifiMaster0/AccessPoint0"},"active":"yes"}]}`,
			want: []models.ClientRecord{{MAC: "aa:bb", Interface: "WifiMaster0/AccessPoint0", Active: true}},
		},
		{
			name: "name falls back to hostname",
			body: `[{"mac":"aa:bb","hostname":"laptop","active":1}]`,
			want: []models.ClientRecord{{MAC: "aa:bb", Name: "laptop", Hostname: "laptop", Active: true}},
		},
		{
			name: "inactive and unidentifiable records are dropped",
			body: `[{"mac":"aa:bb","active":false},{"mac":"  ","active":true},{"mac":42,"active":true},{"mac":"cc:dd"}]`,
			want: []models.ClientRecord{},
		},
		{
			name: "null body",
			body: `null`,
		},
		{
			name:    "invalid json",
			body:    `[{"mac":`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "html error page",
			body:    `<html>busy</html>`,
			wantErr: ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeHosts([]byte(tt.body))

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, len(tt.want), len(got))

			if len(tt.want) > 0 {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSessionHeader(t *testing.T) {
	assert.Empty(t, Session{}.Header())
	assert.Equal(t, "a=1; b=2; sid=xyz", Session{"sid": "xyz", "b": "2", "a": "1"}.Header())
}

func TestFileSessionStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "auth_cookies.json")
	store := NewFileSessionStore(path)

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Save(ctx, Session{"sid": "one"}))
	require.NoError(t, store.Save(ctx, Session{"sid": "two"}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Session{"sid": "two"}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileSessionStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth_cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileSessionStore(path).Load(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}
