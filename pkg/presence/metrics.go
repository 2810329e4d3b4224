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
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/carverauto/netpresence/pkg/models"
)

const (
	presenceMeterName = "github.com/carverauto/netpresence/presence"

	metricOnlineDevicesName   = "presence_online_devices"
	metricEventsLastPassName  = "presence_events_last_pass"
	metricUnresolvedLastName  = "presence_unresolved_last_pass"
	metricObservedLastName    = "presence_observed_last_pass"
	metricPassTimestampMsName = "presence_pass_timestamp_ms"
)

// engineMetrics holds the latest reconciliation measurements.
type engineMetrics struct {
	onlineDevices  atomic.Int64
	eventsLastPass atomic.Int64
	unresolvedLast atomic.Int64
	observedLast   atomic.Int64
	passTimestamp  atomic.Int64
}

var (
	//nolint:gochecknoglobals // metric observers are shared singletons
	presenceMetricsOnce sync.Once
	//nolint:gochecknoglobals // metric observers are shared singletons
	presenceMetricsData = &engineMetrics{}
	//nolint:gochecknoglobals // metric observers are shared singletons
	presenceMetricsGauges struct {
		onlineDevices  metric.Int64ObservableGauge
		eventsLastPass metric.Int64ObservableGauge
		unresolvedLast metric.Int64ObservableGauge
		observedLast   metric.Int64ObservableGauge
		passTimestamp  metric.Int64ObservableGauge
	}
	presenceMetricsRegistration metric.Registration //nolint:unused,gochecknoglobals // kept to retain callback
)

func sharedMetrics() *engineMetrics {
	presenceMetricsOnce.Do(initPresenceMetrics)

	return presenceMetricsData
}

func initPresenceMetrics() {
	meter := otel.Meter(presenceMeterName)

	gauges := []struct {
		target *metric.Int64ObservableGauge
		name   string
		desc   string
	}{
		{&presenceMetricsGauges.onlineDevices, metricOnlineDevicesName, "Devices flagged online after the latest reconciliation pass"},
		{&presenceMetricsGauges.eventsLastPass, metricEventsLastPassName, "Presence events persisted by the latest reconciliation pass"},
		{&presenceMetricsGauges.unresolvedLast, metricUnresolvedLastName, "Devices whose transition could not be persisted in the latest pass"},
		{&presenceMetricsGauges.observedLast, metricObservedLastName, "Distinct clients present in the latest snapshot"},
		{&presenceMetricsGauges.passTimestamp, metricPassTimestampMsName, "Unix epoch milliseconds of the latest reconciliation pass"},
	}

	for _, g := range gauges {
		gauge, err := meter.Int64ObservableGauge(g.name, metric.WithDescription(g.desc))
		if err != nil {
			otel.Handle(err)
			return
		}

		*g.target = gauge
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		observer.ObserveInt64(presenceMetricsGauges.onlineDevices, presenceMetricsData.onlineDevices.Load())
		observer.ObserveInt64(presenceMetricsGauges.eventsLastPass, presenceMetricsData.eventsLastPass.Load())
		observer.ObserveInt64(presenceMetricsGauges.unresolvedLast, presenceMetricsData.unresolvedLast.Load())
		observer.ObserveInt64(presenceMetricsGauges.observedLast, presenceMetricsData.observedLast.Load())
		observer.ObserveInt64(presenceMetricsGauges.passTimestamp, presenceMetricsData.passTimestamp.Load())

		return nil
	},
		presenceMetricsGauges.onlineDevices,
		presenceMetricsGauges.eventsLastPass,
		presenceMetricsGauges.unresolvedLast,
		presenceMetricsGauges.observedLast,
		presenceMetricsGauges.passTimestamp,
	)
	if err != nil {
		otel.Handle(err)
		return
	}

	presenceMetricsRegistration = registration
}

// observe records one pass. A negative online count leaves the previous value.
func (m *engineMetrics) observe(result *models.ReconcileResult, now time.Time, online int) {
	if online >= 0 {
		m.onlineDevices.Store(int64(online))
	}

	m.eventsLastPass.Store(int64(len(result.Events)))
	m.unresolvedLast.Store(int64(len(result.Unresolved)))
	m.observedLast.Store(int64(result.Observed))
	m.passTimestamp.Store(now.UnixMilli())
}
