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

	"github.com/carverauto/netpresence/pkg/models"
)

func TestMemoryStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.CreateDevice(ctx, &models.Device{MAC: "aa:bb:cc:dd:ee:01"}))

		event := &models.PresenceEvent{ClientMAC: "aa:bb:cc:dd:ee:01", Type: models.EventConnected}
		require.NoError(t, tx.AppendEvent(ctx, event))

		return errStoreDown
	})
	require.ErrorIs(t, err, errStoreDown)

	_, err = store.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.ErrorIs(t, err, ErrDeviceNotFound)

	events, err := store.RecentEvents(ctx, 0, "")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.CreateDevice(ctx, &models.Device{MAC: "aa:bb:cc:dd:ee:01"}))
	require.Error(t, store.CreateDevice(ctx, &models.Device{MAC: "aa:bb:cc:dd:ee:01"}))
}

func TestMemoryStore_UpdateUnknown(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.UpdateDevice(ctx, &models.Device{MAC: "aa:bb:cc:dd:ee:01"})
	require.True(t, errors.Is(err, ErrDeviceNotFound))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.CreateDevice(ctx, &models.Device{MAC: "aa:bb:cc:dd:ee:01", IP: "10.0.0.2"}))

	device, err := store.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)

	device.IP = "10.0.0.99"

	again, err := store.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", again.IP)
}

func TestMemoryStore_ListOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	t0 := baseTime()

	require.NoError(t, store.CreateDevice(ctx, &models.Device{
		MAC: "aa:bb:cc:dd:ee:01", IsOnline: true, LastStatusChange: t0, LastSeen: t0.Add(time.Hour),
	}))
	require.NoError(t, store.CreateDevice(ctx, &models.Device{
		MAC: "aa:bb:cc:dd:ee:02", IsOnline: true, LastStatusChange: t0.Add(time.Minute), LastSeen: t0.Add(time.Minute),
	}))
	require.NoError(t, store.CreateDevice(ctx, &models.Device{
		MAC: "aa:bb:cc:dd:ee:03", LastStatusChange: t0, LastSeen: t0,
	}))

	online, err := store.ListOnlineDevices(ctx)
	require.NoError(t, err)
	require.Len(t, online, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:02", online[0].MAC)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", online[1].MAC)

	all, err := store.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", all[0].MAC)
	assert.Equal(t, "aa:bb:cc:dd:ee:03", all[2].MAC)
}

func TestMemoryStore_RecentEvents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	t0 := baseTime()

	require.NoError(t, store.CreateDevice(ctx, &models.Device{MAC: "aa:bb:cc:dd:ee:01", IP: "10.0.0.2"}))

	for i := 0; i < 12; i++ {
		mac := "aa:bb:cc:dd:ee:01"
		if i%2 == 1 {
			mac = "aa:bb:cc:dd:ee:02"
		}

		require.NoError(t, store.AppendEvent(ctx, &models.PresenceEvent{
			ClientMAC: mac,
			Type:      models.EventUpdated,
			Timestamp: t0.Add(time.Duration(i/2) * time.Second),
		}))
	}

	events, err := store.RecentEvents(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, events, DefaultHistoryLimit)
	assert.Equal(t, int64(12), events[0].ID)
	assert.Equal(t, int64(11), events[1].ID)

	filtered, err := store.RecentEvents(ctx, 3, "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)
	require.Len(t, filtered, 3)

	for _, e := range filtered {
		assert.Equal(t, "aa:bb:cc:dd:ee:01", e.ClientMAC)
		require.NotNil(t, e.Device)
		assert.Equal(t, "10.0.0.2", e.Device.IP)
	}

	assert.Nil(t, events[0].Device)
}

func TestMemoryStore_PruneEvents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	t0 := baseTime()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.AppendEvent(ctx, &models.PresenceEvent{
			ClientMAC: "aa:bb:cc:dd:ee:01",
			Type:      models.EventConnected,
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
		}))
	}

	pruned, err := store.PruneEvents(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	events, err := store.RecentEvents(ctx, 10, "")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
