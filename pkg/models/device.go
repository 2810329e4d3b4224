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

// Package models holds the shared data types for netpresence.
package models

import (
	"strings"
	"time"
)

// Device is the persisted presence state of one physical client, keyed by MAC.
type Device struct {
	MAC                string    `json:"mac"`
	IP                 string    `json:"ip,omitempty"`
	Name               string    `json:"name,omitempty"`
	Hostname           string    `json:"hostname,omitempty"`
	Interface          string    `json:"interface,omitempty"`
	SSID               string    `json:"ssid,omitempty"`
	IsOnline           bool      `json:"is_online"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
	LastStatusChange   time.Time `json:"last_status_change"`
	TotalOnlineSeconds int64     `json:"total_online_seconds"`
}

// DisplayName returns the most human friendly identifier available.
func (d *Device) DisplayName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Hostname != "":
		return d.Hostname
	default:
		return d.MAC
	}
}

// Clone returns a copy that can be mutated independently.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	c := *d

	return &c
}

// ClientRecord is one normalized entry of a router client snapshot.
type ClientRecord struct {
	MAC       string `json:"mac"`
	IP        string `json:"ip,omitempty"`
	Name      string `json:"name,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	Interface string `json:"interface,omitempty"`
	SSID      string `json:"ssid,omitempty"`
	Active    bool   `json:"active"`
}

// ResolvedName returns the name the router reported, falling back to the hostname.
func (r *ClientRecord) ResolvedName() string {
	if r.Name != "" {
		return r.Name
	}

	return r.Hostname
}

// CanonicalMAC normalizes a MAC address to lowercase colon separated form.
// Values that are not MAC shaped are still trimmed and lowercased so that a
// given client always maps to the same key.
func CanonicalMAC(mac string) string {
	mac = strings.TrimSpace(mac)
	mac = strings.ReplaceAll(mac, "-", ":")

	return strings.ToLower(mac)
}
