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
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/carverauto/netpresence/pkg/models"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaPurple)).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaForeground)).Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaComment))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaComment))

	eventStyles = map[string]lipgloss.Style{
		string(models.EventConnected):    cellStyle.Foreground(lipgloss.Color(draculaGreen)),
		string(models.EventDisconnected): cellStyle.Foreground(lipgloss.Color(draculaRed)),
		string(models.EventUpdated):      cellStyle.Foreground(lipgloss.Color(draculaYellow)),
		"online":                         cellStyle.Foreground(lipgloss.Color(draculaGreen)),
		"offline":                        cellStyle.Foreground(lipgloss.Color(draculaRed)),
	}
)

func newTable(headers []string, rows [][]string, styledColumn int) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			if col == styledColumn && row >= 0 && row < len(rows) {
				if s, ok := eventStyles[rows[row][col]]; ok {
					return s
				}
			}

			return cellStyle
		})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format(timeLayout)
}

func renderDevices(devices []models.DeviceView) string {
	if len(devices) == 0 {
		return mutedStyle.Render("No devices.")
	}

	rows := make([][]string, 0, len(devices))

	for i := range devices {
		d := &devices[i]

		status := "offline"
		if d.IsOnline {
			status = "online"
		}

		rows = append(rows, []string{
			d.DisplayName(),
			d.MAC,
			orDash(d.IP),
			orDash(d.Interface),
			orDash(d.SSID),
			status,
			orDash(d.Dwell),
			formatTime(d.LastSeen),
		})
	}

	headers := []string{"Name", "MAC", "IP", "Interface", "SSID", "Status", "Online for", "Last seen"}

	return newTable(headers, rows, 5).String()
}

func renderEvents(events []*models.PresenceEvent) string {
	if len(events) == 0 {
		return mutedStyle.Render("No events.")
	}

	rows := make([][]string, 0, len(events))

	for _, e := range events {
		name := e.ClientMAC
		if e.Device != nil {
			name = e.Device.DisplayName()
		}

		rows = append(rows, []string{
			formatTime(e.Timestamp),
			name,
			e.ClientMAC,
			string(e.Type),
			e.Details,
		})
	}

	return newTable([]string{"Time", "Device", "MAC", "Event", "Details"}, rows, 3).String()
}

func renderScan(resp *models.ScanResponse) string {
	var b strings.Builder

	status := resp.Status

	summary := fmt.Sprintf("Cycle %s: %d event(s)", status.CycleID, status.Events)
	if status.Unresolved > 0 {
		summary += fmt.Sprintf(", %d unresolved", status.Unresolved)
	}

	if !status.StartedAt.IsZero() && !status.FinishedAt.IsZero() {
		summary += fmt.Sprintf(" in %s", status.FinishedAt.Sub(status.StartedAt).Round(time.Millisecond))
	}

	b.WriteString(headerStyle.UnsetPadding().Render(summary))

	if status.Error != "" {
		b.WriteString("\n")
		b.WriteString(eventStyles[string(models.EventDisconnected)].UnsetPadding().Render("Error: " + status.Error))
	}

	if len(resp.Events) > 0 {
		b.WriteString("\n")
		b.WriteString(renderEvents(resp.Events))
	}

	return b.String()
}

func renderTestNotify(resp *models.TestNotifyResponse) string {
	summary := fmt.Sprintf("Sample notification: %d delivered, %d failed, %d skipped",
		resp.Delivered, resp.Failed, resp.Skipped)

	return headerStyle.UnsetPadding().Render(summary) + "\n" + renderEvents(resp.Events)
}
