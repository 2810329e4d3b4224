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

import (
	"strings"
	"time"
)

// EventType classifies a presence transition.
type EventType string

const (
	EventConnected    EventType = "CONNECTED"
	EventDisconnected EventType = "DISCONNECTED"
	EventUpdated      EventType = "UPDATED"
)

// Valid reports whether t is one of the known transition types.
func (t EventType) Valid() bool {
	switch t {
	case EventConnected, EventDisconnected, EventUpdated:
		return true
	default:
		return false
	}
}

// Slug returns the lowercase form used in NATS subjects and CloudEvent types.
func (t EventType) Slug() string {
	return strings.ToLower(string(t))
}

// PresenceEvent is an immutable record of one transition.
type PresenceEvent struct {
	ID        int64     `json:"id"`
	ClientMAC string    `json:"client_mac"`
	Type      EventType `json:"type"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`

	// Device is the device state right after the transition. It is attached for
	// notification consumers and is not part of the stored event row.
	Device *Device `json:"device,omitempty"`
}

// UnresolvedTransition describes a device whose transition could not be persisted.
type UnresolvedTransition struct {
	MAC   string `json:"mac"`
	Op    string `json:"op"`
	Error string `json:"error"`
}

// ReconcileResult is the outcome of one reconciliation pass.
type ReconcileResult struct {
	Events     []*PresenceEvent       `json:"events"`
	Unresolved []UnresolvedTransition `json:"unresolved,omitempty"`
	Observed   int                    `json:"observed"`
	Discarded  int                    `json:"discarded"`
}

// CloudEvent represents a CloudEvents v1.0 envelope.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// PresenceEventData is the CloudEvent payload for a presence transition.
type PresenceEventData struct {
	EventID   int64     `json:"event_id"`
	MAC       string    `json:"mac"`
	Type      EventType `json:"type"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip,omitempty"`
	Name      string    `json:"name,omitempty"`
	Hostname  string    `json:"hostname,omitempty"`
	Interface string    `json:"interface,omitempty"`
	SSID      string    `json:"ssid,omitempty"`
	IsOnline  bool      `json:"is_online"`
}

// NewPresenceEventData flattens an event and its attached device.
func NewPresenceEventData(event *PresenceEvent) PresenceEventData {
	data := PresenceEventData{
		EventID:   event.ID,
		MAC:       event.ClientMAC,
		Type:      event.Type,
		Details:   event.Details,
		Timestamp: event.Timestamp,
	}

	if d := event.Device; d != nil {
		data.IP = d.IP
		data.Name = d.Name
		data.Hostname = d.Hostname
		data.Interface = d.Interface
		data.SSID = d.SSID
		data.IsOnline = d.IsOnline
	}

	return data
}
