package discovery

import (
	"testing"
	"time"

	"github.com/jvconnected/camera-engine/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceId_DerivedFromModelAndSerial(t *testing.T) {
	assert.Equal(t, "GY-HC900-0042", deviceId("GY-HC900", "0042"))
}

func TestShouldEmit_DedupsWithinWindow(t *testing.T) {
	s := NewScanner("_jvc-cc._tcp", "local.", 100*time.Millisecond, logging.GetLogger("discovery-test"))
	sighting := Sighting{DeviceId: "cam-1", Host: "10.0.0.5", Port: 80}

	assert.True(t, s.shouldEmit(sighting), "first sighting must emit")
	assert.False(t, s.shouldEmit(sighting), "repeat within window must not emit")

	time.Sleep(150 * time.Millisecond)
	assert.True(t, s.shouldEmit(sighting), "sighting after dedup window must emit again")
}

func TestSweepLost_EmitsAfterTimeout(t *testing.T) {
	s := NewScanner("_jvc-cc._tcp", "local.", time.Millisecond, logging.GetLogger("discovery-test"))
	sighting := Sighting{DeviceId: "cam-2", Host: "10.0.0.6", Port: 80}
	require.True(t, s.shouldEmit(sighting))

	time.Sleep(5 * time.Millisecond)

	var lostIds []string
	s.sweepLost(time.Millisecond, func(id string) { lostIds = append(lostIds, id) })

	require.Len(t, lostIds, 1)
	assert.Equal(t, "cam-2", lostIds[0])
	assert.Empty(t, s.Known())
}

func TestKnown_ReturnsSnapshot(t *testing.T) {
	s := NewScanner("_jvc-cc._tcp", "local.", time.Second, logging.GetLogger("discovery-test"))
	s.shouldEmit(Sighting{DeviceId: "cam-3", Host: "10.0.0.7", Port: 80, Model: "GY-HC900", Serial: "0099"})

	known := s.Known()
	require.Len(t, known, 1)
	assert.Equal(t, "cam-3", known[0].DeviceId)
}
