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

package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{name: "zero", ms: 0, want: "0с"},
		{name: "sub second", ms: 999, want: "0с"},
		{name: "seconds only", ms: 45_000, want: "45с"},
		{name: "minutes and seconds", ms: 65_000, want: "1м 5с"},
		{name: "exact minute", ms: 60_000, want: "1м 0с"},
		{name: "hours and minutes", ms: 3_725_000, want: "1ч 2м"},
		{name: "seconds dropped with hours", ms: 7_259_000, want: "2ч 0м"},
		{name: "more than a day", ms: 90_000_000, want: "25ч 0м"},
		{name: "negative", ms: -5_000, want: "0с"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.ms))
		})
	}
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "1м 5с", FormatElapsed(65*time.Second))
	assert.Equal(t, "1ч 2м", FormatElapsed(time.Hour+2*time.Minute+5*time.Second))
}
