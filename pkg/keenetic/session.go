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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Session is the router cookie jar, cookie name to value.
type Session map[string]string

// Header renders the jar as a single Cookie header value with names sorted.
func (s Session) Header() string {
	if len(s) == 0 {
		return ""
	}

	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}

	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+s[name])
	}

	return strings.Join(parts, "; ")
}

// Clone returns an independent copy.
func (s Session) Clone() Session {
	out := make(Session, len(s))
	for k, v := range s {
		out[k] = v
	}

	return out
}

// FileSessionStore keeps the session as an indented JSON object on disk.
type FileSessionStore struct {
	path string
}

// NewFileSessionStore returns a store backed by path. Parent directories are
// created on the first Save.
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// Path returns the backing file.
func (f *FileSessionStore) Path() string {
	return f.path
}

// Load implements SessionStore.
func (f *FileSessionStore) Load(_ context.Context) (Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSession
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read session file %s: %w", f.path, err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", f.path, err)
	}

	if len(session) == 0 {
		return nil, ErrNoSession
	}

	return session, nil
}

// Save implements SessionStore. The file is replaced atomically with mode 0600.
func (f *FileSessionStore) Save(_ context.Context, session Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}

	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod session file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace session file %s: %w", f.path, err)
	}

	return nil
}
