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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/netpresence/pkg/logger"
	"github.com/carverauto/netpresence/pkg/models"
)

var errStoreDown = errors.New("store down")

func newTestEngine(t *testing.T, store Store) *Engine {
	t.Helper()

	return NewEngine(store, logger.NewTestLogger(), WithoutMetrics())
}

func baseTime() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestReconcile_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := newTestEngine(t, store)
	t0 := baseTime()

	res, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "AA:BB", IP: "10.0.0.2"}}, t0)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	assert.Equal(t, models.EventConnected, res.Events[0].Type)
	assert.Equal(t, "New device detected", res.Events[0].Details)
	assert.Equal(t, "aa:bb", res.Events[0].ClientMAC)
	assert.Positive(t, res.Events[0].ID)

	device, err := store.GetDevice(ctx, "aa:bb")
	require.NoError(t, err)
	assert.True(t, device.IsOnline)
	assert.Equal(t, "10.0.0.2", device.IP)
	assert.Equal(t, t0, device.FirstSeen)
	assert.Equal(t, t0, device.LastSeen)
	assert.Equal(t, t0, device.LastStatusChange)

	t1 := t0.Add(65 * time.Second)

	res, err = engine.Reconcile(ctx, nil, t1)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	assert.Equal(t, models.EventDisconnected, res.Events[0].Type)
	assert.Equal(t, "Online for 1м 5с", res.Events[0].Details)

	device, err = store.GetDevice(ctx, "aa:bb")
	require.NoError(t, err)
	assert.False(t, device.IsOnline)
	assert.Equal(t, int64(65), device.TotalOnlineSeconds)
	assert.Equal(t, t1, device.LastStatusChange)
	assert.Equal(t, t0, device.FirstSeen)
}

func TestReconcile_BackOnline(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := newTestEngine(t, store)
	t0 := baseTime()

	_, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "aa:bb:cc:dd:ee:01", IP: "10.0.0.2"}}, t0)
	require.NoError(t, err)

	_, err = engine.Reconcile(ctx, nil, t0.Add(10*time.Second))
	require.NoError(t, err)

	back := t0.Add(10*time.Second + 2*time.Hour + 3*time.Minute)

	res, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "aa:bb:cc:dd:ee:01", IP: "10.0.0.9", Name: "phone"}}, back)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	assert.Equal(t, models.EventConnected, res.Events[0].Type)
	assert.Equal(t, "Back online. Offline for 2ч 3м", res.Events[0].Details)

	device, err := store.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.True(t, device.IsOnline)
	assert.Equal(t, back, device.LastStatusChange)
	assert.Equal(t, "10.0.0.9", device.IP)
	assert.Equal(t, "phone", device.Name)
	assert.Equal(t, int64(10), device.TotalOnlineSeconds)
}

func TestReconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := newTestEngine(t, store)
	t0 := baseTime()

	snapshot := []models.ClientRecord{
		{MAC: "aa:bb:cc:dd:ee:01", IP: "10.0.0.2"},
		{MAC: "aa:bb:cc:dd:ee:02", IP: "10.0.0.3"},
	}

	res, err := engine.Reconcile(ctx, snapshot, t0)
	require.NoError(t, err)
	require.Len(t, res.Events, 2)

	res, err = engine.Reconcile(ctx, snapshot, t0)
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	// Same again with an empty snapshot: the second disconnect pass is a no-op.
	t1 := t0.Add(time.Minute)

	res, err = engine.Reconcile(ctx, nil, t1)
	require.NoError(t, err)
	assert.Len(t, res.Events, 2)

	res, err = engine.Reconcile(ctx, nil, t1)
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	device, err := store.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, int64(60), device.TotalOnlineSeconds)
}

func TestReconcile_AttributeChangeEmitsUpdated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := newTestEngine(t, store)
	t0 := baseTime()

	_, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "aa:bb:cc:dd:ee:01", IP: "10.0.0.2", Interface: "Home"}}, t0)
	require.NoError(t, err)

	t1 := t0.Add(30 * time.Second)

	res, err := engine.Reconcile(ctx, []models.ClientRecord{{
		MAC:       "aa:bb:cc:dd:ee:01",
		IP:        "10.0.0.7",
		Name:      "laptop",
		Interface: "Home",
		SSID:      "guest",
	}}, t1)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	assert.Equal(t, models.EventUpdated, res.Events[0].Type)
	assert.Equal(t, "IP: 10.0.0.2 -> 10.0.0.7, Name: none -> laptop, SSID: none -> guest", res.Events[0].Details)

	device, err := store.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.True(t, device.IsOnline)
	assert.Equal(t, t0, device.LastStatusChange)
	assert.Equal(t, t1, device.LastSeen)
	assert.Equal(t, int64(0), device.TotalOnlineSeconds)
}

func TestReconcile_EmptyValueIsNotAChange(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := newTestEngine(t, store)
	t0 := baseTime()

	_, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "aa:bb:cc:dd:ee:01", IP: "10.0.0.2", SSID: "home"}}, t0)
	require.NoError(t, err)

	t1 := t0.Add(time.Second)

	res, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "aa:bb:cc:dd:ee:01"}}, t1)
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	device, err := store.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Empty(t, device.IP)
	assert.Empty(t, device.SSID)
	assert.Equal(t, t1, device.LastSeen)
}

func TestReconcile_HostnameFillsName(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := newTestEngine(t, store)

	_, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "aa:bb:cc:dd:ee:01", Hostname: "android-1"}}, baseTime())
	require.NoError(t, err)

	device, err := store.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, "android-1", device.Name)
	assert.Equal(t, "android-1", device.Hostname)
}

func TestReconcile_DiscardsMalformedAndDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := newTestEngine(t, store)

	res, err := engine.Reconcile(ctx, []models.ClientRecord{
		{IP: "10.0.0.1"},
		{MAC: "  "},
		{MAC: "AA-BB-CC-DD-EE-01", IP: "10.0.0.2"},
		{MAC: "aa:bb:cc:dd:ee:01", IP: "10.0.0.3"},
	}, baseTime())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Discarded)
	assert.Equal(t, 1, res.Observed)
	require.Len(t, res.Events, 1)

	device, err := store.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", device.IP)
}

func TestReconcile_EventOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := newTestEngine(t, store)
	t0 := baseTime()

	_, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "aa:bb:cc:dd:ee:01"}}, t0)
	require.NoError(t, err)

	res, err := engine.Reconcile(ctx, []models.ClientRecord{
		{MAC: "aa:bb:cc:dd:ee:03"},
		{MAC: "aa:bb:cc:dd:ee:02"},
	}, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, res.Events, 3)

	assert.Equal(t, "aa:bb:cc:dd:ee:03", res.Events[0].ClientMAC)
	assert.Equal(t, "aa:bb:cc:dd:ee:02", res.Events[1].ClientMAC)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", res.Events[2].ClientMAC)
	assert.Equal(t, models.EventDisconnected, res.Events[2].Type)
}

func TestReconcile_ClockSkewClampsDwell(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	engine := newTestEngine(t, store)
	t0 := baseTime()

	_, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "aa:bb:cc:dd:ee:01"}}, t0)
	require.NoError(t, err)

	res, err := engine.Reconcile(ctx, nil, t0.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Online for 0с", res.Events[0].Details)

	device, err := store.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, int64(0), device.TotalOnlineSeconds)
}

func TestReconcile_PersistenceFailureIsIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	mem := NewMemoryStore()
	mockStore := NewMockStore(ctrl)
	failing := "aa:bb:cc:dd:ee:02"

	mockStore.EXPECT().WithTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(Tx) error) error {
			return mem.WithTx(ctx, func(tx Tx) error {
				return fn(&failingTx{Tx: tx, mac: failing})
			})
		}).Times(3)
	mockStore.EXPECT().ListOnlineDevices(gomock.Any()).DoAndReturn(mem.ListOnlineDevices)

	engine := newTestEngine(t, mockStore)

	res, err := engine.Reconcile(ctx, []models.ClientRecord{
		{MAC: "aa:bb:cc:dd:ee:01"},
		{MAC: failing},
		{MAC: "aa:bb:cc:dd:ee:03"},
	}, baseTime())
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", res.Events[0].ClientMAC)
	assert.Equal(t, "aa:bb:cc:dd:ee:03", res.Events[1].ClientMAC)

	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, failing, res.Unresolved[0].MAC)
	assert.Equal(t, "create", res.Unresolved[0].Op)
	assert.Contains(t, res.Unresolved[0].Error, errStoreDown.Error())

	_, err = mem.GetDevice(ctx, failing)
	require.ErrorIs(t, err, ErrDeviceNotFound)

	events, err := mem.RecentEvents(ctx, 10, "")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

// failingTx rejects writes for one MAC.
type failingTx struct {
	Tx
	mac string
}

func (f *failingTx) CreateDevice(ctx context.Context, device *models.Device) error {
	if device.MAC == f.mac {
		return errStoreDown
	}

	return f.Tx.CreateDevice(ctx, device)
}

func TestReconcile_AppendFailureRollsBackDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	mem := NewMemoryStore()
	mockStore := NewMockStore(ctrl)

	mockStore.EXPECT().WithTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(Tx) error) error {
			return mem.WithTx(ctx, func(tx Tx) error {
				mockTx := NewMockTx(ctrl)
				mockTx.EXPECT().GetDevice(gomock.Any(), gomock.Any()).DoAndReturn(tx.GetDevice)
				mockTx.EXPECT().CreateDevice(gomock.Any(), gomock.Any()).DoAndReturn(tx.CreateDevice)
				mockTx.EXPECT().AppendEvent(gomock.Any(), gomock.Any()).Return(errStoreDown)

				return fn(mockTx)
			})
		})
	mockStore.EXPECT().ListOnlineDevices(gomock.Any()).DoAndReturn(mem.ListOnlineDevices)

	engine := newTestEngine(t, mockStore)

	res, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "aa:bb:cc:dd:ee:01"}}, baseTime())
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, "create", res.Unresolved[0].Op)

	_, err = mem.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestReconcile_OnlineQueryFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	mockStore := NewMockStore(ctrl)

	mockStore.EXPECT().ListOnlineDevices(gomock.Any()).Return(nil, errStoreDown)

	engine := newTestEngine(t, mockStore)

	res, err := engine.Reconcile(ctx, nil, baseTime())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, errStoreDown)
	assert.NotNil(t, res)
	assert.Empty(t, res.Events)
}

func TestReconcile_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	engine := newTestEngine(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "aa:bb:cc:dd:ee:01"}}, baseTime())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Events)

	devices, err := store.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestReconcile_AttachesDeviceToEvents(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, NewMemoryStore())

	res, err := engine.Reconcile(ctx, []models.ClientRecord{{MAC: "aa:bb:cc:dd:ee:01", IP: "10.0.0.2", SSID: "home"}}, baseTime())
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	require.NotNil(t, res.Events[0].Device)

	assert.Equal(t, "10.0.0.2", res.Events[0].Device.IP)
	assert.Equal(t, "home", res.Events[0].Device.SSID)
	assert.True(t, res.Events[0].Device.IsOnline)
}

func TestPersistenceError(t *testing.T) {
	err := &PersistenceError{MAC: "aa:bb", Op: "update", Err: errStoreDown}

	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, errStoreDown)
	assert.Contains(t, err.Error(), "aa:bb")
	assert.Contains(t, err.Error(), "update")
}
