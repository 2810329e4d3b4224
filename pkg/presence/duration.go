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
	"fmt"
	"time"
)

// FormatDuration renders elapsed milliseconds the way every presence message
// shows dwell time: "1ч 2м", "1м 5с" or "45с". Negative input renders as "0с".
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dч %dм", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds%60)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// FormatElapsed is FormatDuration for a time.Duration.
func FormatElapsed(d time.Duration) string {
	return FormatDuration(d.Milliseconds())
}
