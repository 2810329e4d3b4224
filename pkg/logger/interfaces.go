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
	"io"

	"github.com/rs/zerolog"
)

// Logger is the structured logger injected into every component.
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
	Panic() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
	WithFields(fields map[string]interface{}) zerolog.Logger
	SetLevel(level zerolog.Level)
	SetDebug(debug bool)
}

// zerologAdapter lets a plain zerolog.Logger satisfy Logger.
type zerologAdapter struct {
	zl zerolog.Logger
}

// Wrap adapts an existing zerolog logger.
func Wrap(zl zerolog.Logger) Logger {
	return &zerologAdapter{zl: zl}
}

// NewWriterLogger builds a Logger writing JSON lines to w. Tests use it to
// assert on log output.
func NewWriterLogger(w io.Writer, level zerolog.Level) Logger {
	return Wrap(zerolog.New(w).Level(level).With().Timestamp().Logger())
}

func (a *zerologAdapter) Trace() *zerolog.Event { return a.zl.Trace() }
func (a *zerologAdapter) Debug() *zerolog.Event { return a.zl.Debug() }
func (a *zerologAdapter) Info() *zerolog.Event  { return a.zl.Info() }
func (a *zerologAdapter) Warn() *zerolog.Event  { return a.zl.Warn() }
func (a *zerologAdapter) Error() *zerolog.Event { return a.zl.Error() }
func (a *zerologAdapter) Fatal() *zerolog.Event { return a.zl.Fatal() }
func (a *zerologAdapter) Panic() *zerolog.Event { return a.zl.Panic() }
func (a *zerologAdapter) With() zerolog.Context { return a.zl.With() }

func (a *zerologAdapter) WithComponent(component string) zerolog.Logger {
	return a.zl.With().Str("component", component).Logger()
}

func (a *zerologAdapter) WithFields(fields map[string]interface{}) zerolog.Logger {
	return a.zl.With().Fields(fields).Logger()
}

func (a *zerologAdapter) SetLevel(level zerolog.Level) { a.zl = a.zl.Level(level) }

func (a *zerologAdapter) SetDebug(debug bool) {
	if debug {
		a.SetLevel(zerolog.DebugLevel)
		return
	}

	a.SetLevel(zerolog.InfoLevel)
}

// NewTestLogger creates a no-op logger for testing that discards all output
func NewTestLogger() Logger {
	return Wrap(zerolog.New(io.Discard).Level(zerolog.Disabled))
}
