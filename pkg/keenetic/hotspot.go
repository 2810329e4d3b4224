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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carverauto/netpresence/pkg/models"
)

type rawHost struct {
	MAC       string          `json:"mac"`
	IP        string          `json:"ip"`
	Name      string          `json:"name"`
	Hostname  string          `json:"hostname"`
	Interface json.RawMessage `json:"interface"`
	SSID      string          `json:"ssid"`
	Active    json.RawMessage `json:"active"`
}

type hostStats struct {
	total     int
	malformed int
}

// NormalizeHosts turns an /rci/show/ip/hotspot body into active client
// records. The body may be a bare array or an object with a "host" array.
// Inactive hosts, entries without a MAC and entries that fail to decode are
// dropped.
func NormalizeHosts(raw []byte) ([]models.ClientRecord, error) {
	records, _, err := normalizeHosts(raw)

	return records, err
}

func normalizeHosts(raw []byte) ([]models.ClientRecord, hostStats, error) {
	var stats hostStats

	entries, err := hostEntries(raw)
	if err != nil {
		return nil, stats, err
	}

	stats.total = len(entries)
	records := make([]models.ClientRecord, 0, len(entries))

	for _, entry := range entries {
		var host rawHost
		if err := json.Unmarshal(entry, &host); err != nil {
			stats.malformed++
			continue
		}

		if !truthy(host.Active) {
			continue
		}

		mac := models.CanonicalMAC(host.MAC)
		if mac == "" {
			stats.malformed++
			continue
		}

		name := host.Name
		if name == "" {
			name = host.Hostname
		}

		records = append(records, models.ClientRecord{
			MAC:       mac,
			IP:        host.IP,
			Name:      name,
			Hostname:  host.Hostname,
			Interface: interfaceName(host.Interface),
			SSID:      host.SSID,
			Active:    true,
		})
	}

	return records, stats, nil
}

func hostEntries(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}

		return list, nil
	case '{':
		var wrapped struct {
			Host json.RawMessage `json:"host"`
		}

		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}

		var list []json.RawMessage
		if json.Unmarshal(wrapped.Host, &list) != nil {
			return nil, nil
		}

		return list, nil
	default:
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("%w: unexpected body", ErrInvalidPayload)
		}

		return nil, nil
	}
}

// interfaceName resolves the interface field, which is either a plain string
// or an object carrying a "name" and an "id".
func interfaceName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var obj struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}

	if json.Unmarshal(raw, &obj) != nil {
		return ""
	}

	if obj.Name != "" {
		return obj.Name
	}

	return obj.ID
}

func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var v interface{}
	if json.Unmarshal(raw, &v) != nil {
		return false
	}

	switch value := v.(type) {
	case bool:
		return value
	case float64:
		return value != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "yes", "1", "on":
			return true
		}
	}

	return false
}
