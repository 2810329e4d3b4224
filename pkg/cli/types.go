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

package cli

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
)

// CmdConfig holds parsed command-line configuration.
type CmdConfig struct {
	Help           bool
	SubCmd         string
	APIURL         string
	APIKey         string
	Timeout        time.Duration
	NonInteractive bool

	// digest
	Login     string
	Realm     string
	Password  string
	Challenge string

	// devices / history
	All   bool
	MAC   string
	Limit int

	// hash-key
	Cost int

	Args []string
}

type styles struct {
	focused, focused2, help, hint, success, error, hash, app lipgloss.Style
}

type digestModel struct {
	inputs      []textinput.Model
	focused     int
	digest      string
	err         error
	copyMessage string
	canCopy     bool
	copy        func(string) error
	styles      styles
}
