package umd

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jvconnected/camera-engine/internal/health"
	"github.com/jvconnected/camera-engine/internal/logging"
)

// Fields is the last-known state of one (screen, tallyIndex) key
// (spec.md §4.G).
type Fields struct {
	LH   Color
	RH   Color
	Txt  Color
	Text string
}

// Key identifies one tally lamp within a screen (spec.md §3 TallyKey).
type Key struct {
	Screen     uint16
	TallyIndex uint16
}

// readDeadline bounds each ReadFromUDP call so Stop's cancellation is
// observed promptly even though the protocol itself has no read timeout
// (spec.md §5: "socket reads have no timeout but the listener is
// interruptible by cancellation").
const readDeadline = 2 * time.Second

// Listener binds a UDP socket and maintains the (screen, tallyIndex) →
// Fields table, emitting an update only when a field actually changes.
type Listener struct {
	host   string
	port   int
	logger *logging.Logger

	mu      sync.RWMutex
	table   map[Key]Fields
	dropped uint64

	conn *net.UDPConn
}

// NewListener builds a Listener bound to (host, port) once Start is
// called.
func NewListener(host string, port int, logger *logging.Logger) *Listener {
	return &Listener{
		host:   host,
		port:   port,
		logger: logger,
		table:  make(map[Key]Fields),
	}
}

// Start binds the socket and reads frames until ctx is cancelled. onUpdate
// is called, synchronously from the read loop, whenever a frame's entry
// changes an existing or new table row.
func (l *Listener) Start(ctx context.Context, onUpdate func(screen, tallyIndex uint16, f Fields)) error {
	addr := &net.UDPAddr{IP: net.ParseIP(l.host), Port: l.port}
	if addr.IP == nil {
		addr.IP = net.IPv4zero
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("umd: listen: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	l.logger.WithField("addr", conn.LocalAddr().String()).Info("umd listener bound")

	buf := make([]byte, 65535)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("umd: read: %w", err)
		}

		frame, err := Unmarshal(buf[:n])
		if err != nil {
			l.mu.Lock()
			l.dropped++
			l.mu.Unlock()
			health.TallyFramesMalformed.Inc()
			l.logger.WithError(err).Warn("dropped malformed umd frame")
			continue
		}

		health.TallyFramesProcessed.Inc()
		l.applyFrame(frame, onUpdate)
	}
}

func (l *Listener) applyFrame(frame Frame, onUpdate func(screen, tallyIndex uint16, f Fields)) {
	for _, e := range frame.Entries {
		key := Key{Screen: frame.Screen, TallyIndex: e.TallyIndex}
		fields := Fields{LH: e.LH, RH: e.RH, Txt: e.Txt, Text: e.Text}

		l.mu.Lock()
		existing, known := l.table[key]
		changed := !known || existing != fields
		if changed {
			l.table[key] = fields
		}
		l.mu.Unlock()

		if changed && onUpdate != nil {
			onUpdate(key.Screen, key.TallyIndex, fields)
		}
	}
}

// Lookup returns the last-known fields for a key, if any.
func (l *Listener) Lookup(key Key) (Fields, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.table[key]
	return f, ok
}

// Dropped returns the count of frames rejected by Unmarshal.
func (l *Listener) Dropped() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dropped
}

// On reports whether a color/text combination should be considered "on",
// per the tally type's semantics (spec.md §4.H: "color non-off or text
// non-empty").
func On(color Color, text string) bool {
	return color != ColorOff || text != ""
}
