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

package models

import "time"

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// DeviceView is a device as returned by the HTTP API, with derived dwell time.
type DeviceView struct {
	Device
	DwellSeconds int64  `json:"dwell_seconds"`
	Dwell        string `json:"dwell"`
}

// CycleStatus summarises the latest poll cycle.
type CycleStatus struct {
	CycleID    string    `json:"cycle_id,omitempty"`
	Trigger    string    `json:"trigger,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Events     int       `json:"events"`
	Unresolved int       `json:"unresolved"`
	Error      string    `json:"error,omitempty"`
	Running    bool      `json:"running"`
	Cycles     int64     `json:"cycles"`
	Skipped    int64     `json:"skipped"`
}

// TestNotifyResponse reports a sample notification sent to every recipient.
type TestNotifyResponse struct {
	Events    []*PresenceEvent `json:"events"`
	Delivered int              `json:"delivered"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
}

// ScanResponse is returned by a manual scan.
type ScanResponse struct {
	Status CycleStatus      `json:"status"`
	Events []*PresenceEvent `json:"events"`
}
