package engine_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvconnected/camera-engine/internal/config"
	"github.com/jvconnected/camera-engine/internal/discovery"
	"github.com/jvconnected/camera-engine/internal/engine"
	"github.com/jvconnected/camera-engine/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.GetLogger("engine-test")
}

func newTestSupervisor(t *testing.T) (*engine.Supervisor, *config.ConfigManager, *discovery.Scanner) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	cm, err := config.NewConfigManager(path, testLogger())
	require.NoError(t, err)

	scanner := discovery.NewScanner("_jvc-cc._tcp", "local.", time.Second, testLogger())
	sup := engine.New(engine.Options{ConfigManager: cm, Scanner: scanner}, testLogger())
	return sup, cm, scanner
}

// TestDeviceSeen_CreatesRecordAndAssignsIndex exercises spec.md §8
// scenario 1: discovery reports two unknown devices; the engine creates
// ephemeral records and assigns distinct, compact indices.
func TestDeviceSeen_CreatesRecordAndAssignsIndex(t *testing.T) {
	sup, cm, _ := newTestSupervisor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = sup.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return true
	}, 10*time.Millisecond, time.Millisecond) // let Run's initial pass settle

	sup.HandleDeviceSeen(ctx, discovery.Sighting{DeviceId: "cam-a", Host: "10.0.0.1", Port: 80, Model: "GY-HC900", Serial: "0001"})
	sup.HandleDeviceSeen(ctx, discovery.Sighting{DeviceId: "cam-b", Host: "10.0.0.2", Port: 80, Model: "GY-HC900", Serial: "0002"})

	dcA, ok := cm.Get("cam-a")
	require.True(t, ok)
	dcB, ok := cm.Get("cam-b")
	require.True(t, ok)

	assert.True(t, dcA.IndexAssigned)
	assert.True(t, dcB.IndexAssigned)
	assert.NotEqual(t, dcA.DeviceIndex, dcB.DeviceIndex)
	assert.ElementsMatch(t, []int{0, 1}, []int{dcA.DeviceIndex, dcB.DeviceIndex})
}

func TestSetIndex_SwapsWithOccupant(t *testing.T) {
	sup, cm, _ := newTestSupervisor(t)
	ctx := context.Background()

	sup.HandleDeviceSeen(ctx, discovery.Sighting{DeviceId: "cam-a", Host: "10.0.0.1", Port: 80, Model: "GY-HC900", Serial: "0001"})
	sup.HandleDeviceSeen(ctx, discovery.Sighting{DeviceId: "cam-b", Host: "10.0.0.2", Port: 80, Model: "GY-HC900", Serial: "0002"})

	dcA, _ := cm.Get("cam-a")
	dcB, _ := cm.Get("cam-b")
	require.NotEqual(t, dcA.DeviceIndex, dcB.DeviceIndex)

	var events [][3]interface{}
	sup.ObserveIndexChange(func(id string, oldIdx, newIdx int) {
		events = append(events, [3]interface{}{id, oldIdx, newIdx})
	})

	require.NoError(t, sup.SetIndex("cam-a", dcB.DeviceIndex))

	newA, _ := cm.Get("cam-a")
	newB, _ := cm.Get("cam-b")
	assert.Equal(t, dcB.DeviceIndex, newA.DeviceIndex)
	assert.Equal(t, dcA.DeviceIndex, newB.DeviceIndex)
	assert.Len(t, events, 2)
}

func TestDeviceLost_MarksOfflineWithoutRemoving(t *testing.T) {
	sup, cm, _ := newTestSupervisor(t)
	ctx := context.Background()
	sup.HandleDeviceSeen(ctx, discovery.Sighting{DeviceId: "cam-a", Host: "10.0.0.1", Port: 80, Model: "GY-HC900", Serial: "0001"})

	dc, _ := cm.Get("cam-a")
	assert.True(t, dc.Online)

	sup.HandleDeviceLost("cam-a")
	dc, ok := cm.Get("cam-a")
	require.True(t, ok, "device record must survive loss")
	assert.False(t, dc.Online)
}
