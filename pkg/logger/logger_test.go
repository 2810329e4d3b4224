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

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	config := &Config{
		Level:  "debug",
		Debug:  true,
		Output: "stdout",
	}

	require.NoError(t, Init(context.Background(), config))

	l := GetLogger()
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(context.Background(), &Config{Level: "loud"})
	assert.Error(t, err)
}

func TestSetDebug(t *testing.T) {
	SetDebug(true)
	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())

	SetDebug(false)
	assert.Equal(t, zerolog.InfoLevel, GetLogger().GetLevel())
}

func TestNewIsIndependentOfGlobal(t *testing.T) {
	SetLevel(zerolog.ErrorLevel)
	defer SetLevel(zerolog.InfoLevel)

	l, err := New(context.Background(), &Config{Level: "debug"})
	require.NoError(t, err)

	assert.NotNil(t, l.Debug(), "debug events should be enabled on the instance logger")
	assert.Equal(t, zerolog.ErrorLevel, GetLogger().GetLevel())
}

func TestWriterLoggerComponentField(t *testing.T) {
	var buf bytes.Buffer

	l := NewWriterLogger(&buf, zerolog.InfoLevel)
	c := l.WithComponent("monitor")
	c.Info().Str("mac", "aa:bb").Msg("device online")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "monitor", entry["component"])
	assert.Equal(t, "aa:bb", entry["mac"])
	assert.Equal(t, "device online", entry["message"])
}

func TestWriterLoggerSetDebug(t *testing.T) {
	var buf bytes.Buffer

	l := NewWriterLogger(&buf, zerolog.InfoLevel)
	l.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.SetDebug(true)
	l.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewTestLoggerDiscards(t *testing.T) {
	l := NewTestLogger()

	assert.NotPanics(t, func() {
		l.Info().Msg("discarded")
		fl := l.WithFields(map[string]interface{}{"k": "v"})
		fl.Warn().Msg("discarded")
	})
}
