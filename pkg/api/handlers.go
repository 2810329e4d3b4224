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

package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/netpresence/pkg/config"
	"github.com/carverauto/netpresence/pkg/models"
	"github.com/carverauto/netpresence/pkg/presence"
)

const (
	maxHistoryLimit = 500
	allDevices      = "all"

	sampleOfflineFor = time.Hour + 5*time.Minute
	sampleOnlineFor  = 5*time.Hour + 30*time.Minute
)

func (s *APIServer) getHealth(w http.ResponseWriter, _ *http.Request) {
	s.encodeJSONResponse(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// getStatus reports the latest poll cycle and the number of online devices.
func (s *APIServer) getStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		StreamClients: s.hub.Clients(),
		Time:          s.now().UTC(),
	}

	if s.scanner != nil {
		resp.Cycle = s.scanner.Status()
	}

	if s.store != nil {
		online, err := s.store.ListOnlineDevices(r.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to list online devices")
			writeError(w, "failed to list online devices", http.StatusInternalServerError)

			return
		}

		resp.OnlineDevices = len(online)
	}

	s.encodeJSONResponse(w, http.StatusOK, resp)
}

// getOnlineDevices returns online devices, most recent status change first.
func (s *APIServer) getOnlineDevices(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, "device store not configured", http.StatusServiceUnavailable)
		return
	}

	devices, err := s.store.ListOnlineDevices(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list online devices")
		writeError(w, "failed to list online devices", http.StatusInternalServerError)

		return
	}

	s.encodeJSONResponse(w, http.StatusOK, s.deviceViews(devices))
}

// getAllDevices returns every known device, most recently seen first.
func (s *APIServer) getAllDevices(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, "device store not configured", http.StatusServiceUnavailable)
		return
	}

	devices, err := s.store.ListDevices(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list devices")
		writeError(w, "failed to list devices", http.StatusInternalServerError)

		return
	}

	s.encodeJSONResponse(w, http.StatusOK, s.deviceViews(devices))
}

func (s *APIServer) getDeviceEvents(w http.ResponseWriter, r *http.Request) {
	mac := normalizeMAC(mux.Vars(r)["mac"])
	if mac == "" {
		writeError(w, "mac is required", http.StatusBadRequest)
		return
	}

	s.writeEvents(w, r, mac)
}

// getEvents returns recent events. mac=all or no mac means every device.
func (s *APIServer) getEvents(w http.ResponseWriter, r *http.Request) {
	s.writeEvents(w, r, normalizeMAC(r.URL.Query().Get("mac")))
}

func (s *APIServer) writeEvents(w http.ResponseWriter, r *http.Request, mac string) {
	if s.store == nil {
		writeError(w, "device store not configured", http.StatusServiceUnavailable)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := s.store.RecentEvents(r.Context(), limit, mac)
	if err != nil {
		s.logger.Error().Err(err).Str("mac", mac).Msg("Failed to read event history")
		writeError(w, "failed to read event history", http.StatusInternalServerError)

		return
	}

	if events == nil {
		events = []*models.PresenceEvent{}
	}

	s.encodeJSONResponse(w, http.StatusOK, events)
}

// postScan runs a poll cycle immediately. A failed cycle answers 502 with the
// cycle status in the body.
func (s *APIServer) postScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, "scanner not configured", http.StatusServiceUnavailable)
		return
	}

	resp, err := s.scanner.RunOnce(r.Context())
	if resp == nil {
		msg := "scan did not run"
		if err != nil {
			msg = fmt.Sprintf("scan did not run: %v", err)
		}

		writeError(w, msg, http.StatusServiceUnavailable)

		return
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}

	s.encodeJSONResponse(w, status, resp)
}

// postTestNotify sends a sample CONNECTED and DISCONNECTED pair to every
// recipient. The events are not persisted and carry no ID.
func (s *APIServer) postTestNotify(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeError(w, "notifications not configured", http.StatusServiceUnavailable)
		return
	}

	events := sampleEvents(s.sampleDevice(r.Context()), s.now())
	report := s.dispatcher.Dispatch(r.Context(), events)

	s.logger.Info().
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Msg("Test notification sent")

	s.encodeJSONResponse(w, http.StatusOK, models.TestNotifyResponse{
		Events:    events,
		Delivered: report.Delivered,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
	})
}

// sampleDevice prefers a known device so recipients see a realistic payload.
func (s *APIServer) sampleDevice(ctx context.Context) *models.Device {
	if s.store != nil {
		devices, err := s.store.ListDevices(ctx)
		if err == nil && len(devices) > 0 {
			return devices[0].Clone()
		}
	}

	return &models.Device{
		MAC:      "00:11:22:33:44:55",
		IP:       "192.168.1.100",
		Name:     "TestDevice",
		Hostname: "TestHost",
	}
}

func sampleEvents(device *models.Device, now time.Time) []*models.PresenceEvent {
	online := device.Clone()
	online.IsOnline = true
	online.LastSeen = now
	online.LastStatusChange = now

	offline := device.Clone()
	offline.IsOnline = false
	offline.LastStatusChange = now

	return []*models.PresenceEvent{
		{
			ClientMAC: device.MAC,
			Type:      models.EventConnected,
			Details:   "Back online. Offline for " + presence.FormatElapsed(sampleOfflineFor),
			Timestamp: now,
			Device:    online,
		},
		{
			ClientMAC: device.MAC,
			Type:      models.EventDisconnected,
			Details:   "Online for " + presence.FormatElapsed(sampleOnlineFor),
			Timestamp: now,
			Device:    offline,
		},
	}
}

func (s *APIServer) getConfig(w http.ResponseWriter, _ *http.Request) {
	if s.serviceConfig == nil {
		writeError(w, "configuration not available", http.StatusNotFound)
		return
	}

	data, err := config.Sanitized(s.serviceConfig)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sanitize configuration")
		writeError(w, "failed to render configuration", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *APIServer) deviceViews(devices []*models.Device) []models.DeviceView {
	now := s.now()
	views := make([]models.DeviceView, 0, len(devices))

	for _, d := range devices {
		view := models.DeviceView{Device: *d}

		if d.IsOnline {
			dwell := now.Sub(d.LastStatusChange)
			if dwell < 0 {
				dwell = 0
			}

			view.DwellSeconds = int64(dwell.Seconds())
			view.Dwell = presence.FormatElapsed(dwell)
		}

		views = append(views, view)
	}

	return views
}

// normalizeMAC accepts "_" in place of ":" for URL friendly deep links.
func normalizeMAC(raw string) string {
	if strings.EqualFold(raw, allDevices) {
		return ""
	}

	return models.CanonicalMAC(strings.ReplaceAll(raw, "_", ":"))
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return models.DefaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidLimit, raw)
	}

	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	return limit, nil
}
