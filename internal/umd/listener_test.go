package umd

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvconnected/camera-engine/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.GetLogger("umd-test")
}

// freePort asks the OS for an ephemeral UDP port, then releases it
// immediately for the listener under test to rebind.
func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

func TestListener_EmitsOnlyOnChange(t *testing.T) {
	port := freePort(t)
	l := NewListener("127.0.0.1", port, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var updates []Fields
	go func() {
		_ = l.Start(ctx, func(screen, tallyIndex uint16, f Fields) {
			mu.Lock()
			updates = append(updates, f)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		c, err := net.Dial("udp", "127.0.0.1:"+strconv.Itoa(port))
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, time.Second, 10*time.Millisecond)

	send := func(f Frame) {
		conn, err := net.Dial("udp", "127.0.0.1:"+strconv.Itoa(port))
		require.NoError(t, err)
		defer conn.Close()
		_, err = conn.Write(f.Marshal())
		require.NoError(t, err)
	}

	frame := Frame{Screen: 1, Entries: []Entry{{TallyIndex: 0, RH: ColorRed, Text: "CAM1"}}}
	send(frame)
	send(frame) // identical, must not re-emit

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) >= 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Len(t, updates, 1)
	mu.Unlock()

	fields, ok := l.Lookup(Key{Screen: 1, TallyIndex: 0})
	assert.True(t, ok)
	assert.Equal(t, ColorRed, fields.RH)
	assert.Equal(t, "CAM1", fields.Text)
}

func TestListener_CountsMalformedFrames(t *testing.T) {
	port := freePort(t)
	l := NewListener("127.0.0.1", port, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Start(ctx, nil) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("udp", "127.0.0.1:"+strconv.Itoa(port))
		if err != nil {
			return false
		}
		defer conn.Close()
		_, err = conn.Write([]byte{0x00})
		return err == nil
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return l.Dropped() >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestOn_ReflectsColorOrText(t *testing.T) {
	assert.False(t, On(ColorOff, ""))
	assert.True(t, On(ColorRed, ""))
	assert.True(t, On(ColorOff, "CAM1"))
}
