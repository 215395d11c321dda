package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jvconnected/camera-engine/internal/config"
	"github.com/jvconnected/camera-engine/internal/device"
	"github.com/jvconnected/camera-engine/internal/discovery"
	"github.com/jvconnected/camera-engine/internal/logging"
	"github.com/jvconnected/camera-engine/internal/model"
	"github.com/jvconnected/camera-engine/internal/paramspec"
)

// entry is the supervisor's private bookkeeping for one device: its
// session and parameter model, held nowhere else in the process.
type entry struct {
	session *device.Session
	model   *model.ParameterModel
}

// Supervisor owns the component registry (discovery, config store, every
// device session and parameter model) and bridges discovery events to
// config records to live sessions (spec.md §4.F).
type Supervisor struct {
	cfg      *config.ConfigManager
	scanner  *discovery.Scanner
	registry *paramspec.Registry
	logger   *logging.Logger

	mu      sync.RWMutex
	entries map[string]*entry // keyed by DeviceId

	indexObservers []func(deviceId string, oldIndex, newIndex int)

	shutdownGrace time.Duration
}

// Options configures a Supervisor.
type Options struct {
	ConfigManager *config.ConfigManager
	Scanner       *discovery.Scanner
	Registry      *paramspec.Registry
	ShutdownGrace time.Duration
}

// New builds a Supervisor. Call Run to start the discovery bridge.
func New(opts Options, logger *logging.Logger) *Supervisor {
	if opts.Registry == nil {
		opts.Registry = paramspec.DefaultRegistry()
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 2 * time.Second
	}
	return &Supervisor{
		cfg:           opts.ConfigManager,
		scanner:       opts.Scanner,
		registry:      opts.Registry,
		logger:        logger,
		entries:       make(map[string]*entry),
		shutdownGrace: opts.ShutdownGrace,
	}
}

// Run starts the discovery bridge and blocks until ctx is cancelled. It
// also instantiates sessions for every device already in the config store
// with AlwaysConnect set, so a restart reconnects without waiting for a
// fresh mDNS announcement.
func (s *Supervisor) Run(ctx context.Context) error {
	for id, dc := range s.cfg.List() {
		if dc.AlwaysConnect {
			s.ensureSession(ctx, id, dc)
		}
	}

	return s.scanner.Start(ctx, func(sighting discovery.Sighting) {
		s.HandleDeviceSeen(ctx, sighting)
	}, func(deviceId string) {
		s.HandleDeviceLost(deviceId)
	})
}

// HandleDeviceSeen implements spec.md §4.F: consult the config store; if
// unknown, create an ephemeral record; assign a DeviceIndex if the record
// lacks one; instantiate a session if AlwaysConnect is set.
func (s *Supervisor) HandleDeviceSeen(ctx context.Context, sighting discovery.Sighting) {
	dc, known := s.cfg.Get(sighting.DeviceId)
	if !known {
		var err error
		dc, _, err = s.cfg.Upsert(sighting.DeviceId, config.DeviceConfig{
			DisplayName: fmt.Sprintf("%s (%s)", sighting.Model, sighting.Serial),
			Host:        sighting.Host,
			Port:        sighting.Port,
		})
		if err != nil {
			s.logger.WithError(err).WithField("device_id", sighting.DeviceId).Error("failed to create ephemeral device record")
			return
		}
	}

	s.cfg.MarkOnline(sighting.DeviceId, true)

	if !dc.IndexAssigned {
		idx := s.nextFreeIndex()
		if err := s.cfg.AssignIndex(sighting.DeviceId, idx); err != nil {
			s.logger.WithError(err).Warn("failed to assign device index")
		}
	}

	dc, _ = s.cfg.Get(sighting.DeviceId)
	if dc.AlwaysConnect {
		s.ensureSession(ctx, sighting.DeviceId, dc)
	}
}

// nextFreeIndex returns the smallest non-negative integer not currently
// assigned to any known device (spec.md §4.F).
func (s *Supervisor) nextFreeIndex() int {
	used := make(map[int]bool)
	for _, dc := range s.cfg.List() {
		if dc.IndexAssigned {
			used[dc.DeviceIndex] = true
		}
	}
	for i := 0; ; i++ {
		if !used[i] {
			return i
		}
	}
}

// HandleDeviceLost marks a device offline without tearing down its session;
// the session's own backoff keeps retrying (spec.md §4.F).
func (s *Supervisor) HandleDeviceLost(deviceId string) {
	s.cfg.MarkOnline(deviceId, false)
}

// ensureSession instantiates a session and parameter model for id if one
// does not already exist, and starts it.
func (s *Supervisor) ensureSession(ctx context.Context, id string, dc config.DeviceConfig) {
	s.mu.Lock()
	if _, exists := s.entries[id]; exists {
		s.mu.Unlock()
		return
	}

	m := model.New(s.registry, s.logger)
	sess := device.New(device.Options{
		DeviceId: id,
		BaseURL:  fmt.Sprintf("http://%s:%d", dc.Host, dc.Port),
		Username: dc.AuthUser,
		Password: dc.AuthPass,
		Registry: s.registry,
	}, m, s.logger)

	s.entries[id] = &entry{session: sess, model: m}
	s.mu.Unlock()

	sess.ObserveState(func(st device.State) {
		s.cfg.MarkActive(id, st == device.StateConnected)
	})
	sess.Start(ctx)
}

// Connect instantiates (if needed) and starts a session for id on
// explicit user request (spec.md §4.F).
func (s *Supervisor) Connect(ctx context.Context, id string) error {
	dc, ok := s.cfg.Get(id)
	if !ok {
		return fmt.Errorf("engine: unknown device %q", id)
	}
	s.ensureSession(ctx, id, dc)
	return nil
}

// Disconnect stops a device's session, if any, within the supervisor's
// shutdown grace period.
func (s *Supervisor) Disconnect(id string) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	e.session.Stop(s.shutdownGrace)
}

// Session looks up a device's session by id, for components that need to
// drive shuttle commands directly (e.g. the control API).
func (s *Supervisor) Session(id string) (*device.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Model looks up a device's parameter model by id.
func (s *Supervisor) Model(id string) (*model.ParameterModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.model, true
}

// ModelByIndex looks up a device's parameter model by its DeviceIndex, for
// the tally router, which only knows indices (spec.md §4.H).
func (s *Supervisor) ModelByIndex(index int) (*model.ParameterModel, bool) {
	for id, dc := range s.cfg.List() {
		if dc.DeviceIndex == index {
			return s.Model(id)
		}
	}
	return nil, false
}

// ObserveIndexChange registers fn to be called whenever SetIndex
// reassigns a device's index.
func (s *Supervisor) ObserveIndexChange(fn func(deviceId string, oldIndex, newIndex int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexObservers = append(s.indexObservers, fn)
}

// SetIndex implements spec.md §4.F index reassignment: validates
// uniqueness, swaps indices with the occupant on collision, and notifies
// observers atomically.
func (s *Supervisor) SetIndex(id string, newIndex int) error {
	dc, ok := s.cfg.Get(id)
	if !ok {
		return fmt.Errorf("engine: unknown device %q", id)
	}
	oldIndex := dc.DeviceIndex

	var occupantId string
	var occupant config.DeviceConfig
	for otherId, other := range s.cfg.List() {
		if otherId != id && other.DeviceIndex == newIndex {
			occupantId, occupant = otherId, other
			break
		}
	}

	if err := s.cfg.AssignIndex(id, newIndex); err != nil {
		return err
	}
	if occupantId != "" {
		if err := s.cfg.AssignIndex(occupantId, oldIndex); err != nil {
			return err
		}
	}

	s.mu.RLock()
	observers := append([]func(string, int, int){}, s.indexObservers...)
	s.mu.RUnlock()
	for _, obs := range observers {
		obs(id, oldIndex, newIndex)
	}
	if occupantId != "" {
		for _, obs := range observers {
			obs(occupantId, occupant.DeviceIndex, oldIndex)
		}
	}
	return nil
}

// Shutdown closes every session in parallel, each bounded by the
// supervisor's shutdown grace period. It does not write the config store.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	sessions := make([]*device.Session, 0, len(s.entries))
	for _, e := range s.entries {
		sessions = append(sessions, e.session)
	}
	s.mu.RUnlock()

	g, _ := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		sess := sess
		g.Go(func() error {
			sess.Stop(s.shutdownGrace)
			return nil
		})
	}
	return g.Wait()
}
