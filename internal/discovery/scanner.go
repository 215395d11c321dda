package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/jvconnected/camera-engine/internal/logging"
)

// Sighting is one camera announcement translated from mDNS attributes
// (spec.md §4.A: "device-seen(id, endpoint, attributes)").
type Sighting struct {
	DeviceId string
	Host     string
	Port     int
	Model    string
	Serial   string
}

// deviceId derives the stable DeviceId from advertised model+serial
// (spec.md §3: "opaque string derived from the device's advertised
// model+serial; stable across restarts").
func deviceId(model, serial string) string {
	return fmt.Sprintf("%s-%s", model, serial)
}

// Scanner browses a single mDNS service type and reports seen/lost
// cameras on the channels returned by Start. It deduplicates repeated
// announcements within a short window and is safe for concurrent reads of
// its known-device snapshot.
type Scanner struct {
	serviceType string
	domain      string
	dedupWindow time.Duration
	logger      *logging.Logger

	mu      sync.RWMutex
	known   map[string]Sighting
	lastSeen map[string]time.Time
}

// NewScanner builds a Scanner for serviceType (e.g. "_jvc-cc._tcp") in
// domain (usually "local.").
func NewScanner(serviceType, domain string, dedupWindow time.Duration, logger *logging.Logger) *Scanner {
	if dedupWindow <= 0 {
		dedupWindow = 5 * time.Second
	}
	return &Scanner{
		serviceType: serviceType,
		domain:      domain,
		dedupWindow: dedupWindow,
		logger:      logger,
		known:       make(map[string]Sighting),
		lastSeen:    make(map[string]time.Time),
	}
}

// Start runs a continuous mDNS browse until ctx is cancelled, emitting
// onSeen for every new or re-announced camera (outside the dedup window)
// and onLost for a known camera that has not re-announced within 90
// seconds. Browse failures are logged and retried after 5 seconds; Start
// never returns them as errors, whether or not a seed config exists or
// any camera has been discovered.
func (s *Scanner) Start(ctx context.Context, onSeen func(Sighting), onLost func(deviceId string)) error {
	const lossTimeout = 90 * time.Second
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := s.browseOnce(ctx, onSeen); err != nil {
			s.logger.WithError(err).Warn("mDNS browse failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}
		s.sweepLost(lossTimeout, onLost)
	}
}

// sweepLost emits onLost for any known camera that has not re-announced
// within timeout, translating mDNS TTL expiry into the device-lost event
// named in spec.md §4.A.
func (s *Scanner) sweepLost(timeout time.Duration, onLost func(deviceId string)) {
	now := time.Now()
	s.mu.Lock()
	var lost []string
	for id, last := range s.lastSeen {
		if now.Sub(last) > timeout {
			lost = append(lost, id)
			delete(s.lastSeen, id)
			delete(s.known, id)
		}
	}
	s.mu.Unlock()

	for _, id := range lost {
		s.logger.WithField("device_id", id).Info("camera lost")
		onLost(id)
	}
}

func (s *Scanner) browseOnce(ctx context.Context, onSeen func(Sighting)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("discovery: creating resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			sighting, ok := s.parseEntry(entry)
			if !ok {
				continue
			}
			if s.shouldEmit(sighting) {
				s.logger.WithFields(logging.Fields{
					"device_id": sighting.DeviceId,
					"host":      sighting.Host,
					"port":      sighting.Port,
				}).Info("camera discovered")
				onSeen(sighting)
			}
		}
	}()

	browseCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := resolver.Browse(browseCtx, s.serviceType, s.domain, entries); err != nil {
		return fmt.Errorf("discovery: browse: %w", err)
	}

	<-browseCtx.Done()
	wg.Wait()
	return nil
}

func (s *Scanner) parseEntry(entry *zeroconf.ServiceEntry) (Sighting, bool) {
	if entry == nil || (len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0) {
		return Sighting{}, false
	}

	var addr net.IP
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0]
	} else {
		addr = entry.AddrIPv6[0]
	}

	txt := make(map[string]string, len(entry.Text))
	for _, rec := range entry.Text {
		parts := strings.SplitN(rec, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		}
	}

	model := txt["model"]
	serial := txt["serial"]
	if model == "" || serial == "" {
		return Sighting{}, false
	}

	return Sighting{
		DeviceId: deviceId(model, serial),
		Host:     addr.String(),
		Port:     entry.Port,
		Model:    model,
		Serial:   serial,
	}, true
}

// shouldEmit enforces the dedup window and records the sighting.
func (s *Scanner) shouldEmit(sighting Sighting) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := sighting.DeviceId
	last, ok := s.lastSeen[id]
	now := time.Now()
	s.known[id] = sighting
	if ok && now.Sub(last) < s.dedupWindow {
		s.lastSeen[id] = now
		return false
	}
	s.lastSeen[id] = now
	return true
}

// Known returns a snapshot of every camera seen at least once.
func (s *Scanner) Known() []Sighting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sighting, 0, len(s.known))
	for _, sighting := range s.known {
		out = append(out, sighting)
	}
	return out
}
