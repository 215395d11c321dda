package device

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jvconnected/camera-engine/internal/health"
	"github.com/jvconnected/camera-engine/internal/logging"
	"github.com/jvconnected/camera-engine/internal/model"
	"github.com/jvconnected/camera-engine/internal/paramspec"
)

// State is one point in the device session's lifecycle (spec.md §4.D).
type State string

const (
	StateUnknown    State = "unknown"
	StateScheduling State = "scheduling"
	StateAttempting State = "attempting"
	StateConnected  State = "connected"
	StateSleeping   State = "sleeping"
	StateFailed     State = "failed"
	StateDisconnect State = "disconnect"
)

// BackoffConfig controls the session's reconnect backoff (spec.md §4.D).
type BackoffConfig struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// DefaultBackoffConfig matches the design point named in the spec: 1s
// base, doubling, capped at 60s, with jitter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Base: time.Second, Max: 60 * time.Second, Jitter: 0.2}
}

// Delay computes the backoff duration for the given zero-based retry
// attempt (doubling from Base, capped at Max, with jitter applied).
func (b BackoffConfig) Delay(attempt int) time.Duration {
	d := b.Base << attempt
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	if b.Jitter > 0 {
		j := 1 + (rand.Float64()*2-1)*b.Jitter
		d = time.Duration(float64(d) * j)
	}
	return d
}

// Options configures a Session.
type Options struct {
	DeviceId     string
	BaseURL      string
	Username     string
	Password     string
	PollInterval time.Duration
	RequestTimeout time.Duration
	MaxWriteRetries int
	Backoff      BackoffConfig
	Registry     *paramspec.Registry
}

// command is one entry in the session's FIFO write queue. Continuous-
// motion (shuttle) commands are ordinary entries re-enqueued at each poll
// heartbeat by refreshShuttles; nothing downstream needs to distinguish
// them from a single-shot write.
type command struct {
	name       string
	descriptor paramspec.Descriptor
	value      interface{}
	attempt    int
}

// Session owns one camera's HTTP lifecycle: state machine, poll loop, and
// command queue. It is created once per configured device and survives
// across reconnects; only one Session exists per device for the engine
// supervisor's lifetime (spec.md §9).
type Session struct {
	opts   Options
	client *Client
	model  *model.ParameterModel
	logger *logging.Logger

	mu         sync.RWMutex
	state      State
	failCount  int
	lastErr    error
	shuttles   map[string]shuttleState

	stateObservers []func(State)

	commands  chan command
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New builds a Session in StateUnknown. Call Start to enter scheduling and
// begin the connect/poll loop.
func New(opts Options, m *model.ParameterModel, logger *logging.Logger) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.MaxWriteRetries <= 0 {
		opts.MaxWriteRetries = 3
	}
	if opts.Backoff == (BackoffConfig{}) {
		opts.Backoff = DefaultBackoffConfig()
	}
	if opts.Registry == nil {
		opts.Registry = paramspec.DefaultRegistry()
	}

	s := &Session{
		opts:      opts,
		client:    NewClient(opts.BaseURL, opts.Username, opts.Password, opts.RequestTimeout, logger),
		model:     m,
		logger:    logger,
		state:     StateUnknown,
		shuttles:  make(map[string]shuttleState),
		commands:  make(chan command, 32),
	}
	m.SetCommandEnqueuer(s.enqueueFromModel)
	return s
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ObserveState registers fn to be called, from its own goroutine with
// panic recovery, whenever the session transitions state.
func (s *Session) ObserveState(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateObservers = append(s.stateObservers, fn)
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	observers := append([]func(State){}, s.stateObservers...)
	s.mu.Unlock()

	if prev != "" {
		health.DeviceSessionsByState.WithLabelValues(string(prev)).Dec()
	}
	health.DeviceSessionsByState.WithLabelValues(string(next)).Inc()

	for _, obs := range observers {
		go func(cb func(State)) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.WithField("panic", r).Error("panic in session state observer")
				}
			}()
			cb(next)
		}(obs)
	}
}

// Start transitions from unknown/disconnect/failed into scheduling and
// launches the connect/poll/command loop. It is idempotent while already
// running.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.setState(StateScheduling)
	s.wg.Add(1)
	go s.run(runCtx)
}

// Stop requests cooperative shutdown with a bounded grace period
// (spec.md §5 Cancellation, default 2s) and transitions to disconnect.
func (s *Session) Stop(grace time.Duration) {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		s.logger.Warn("session shutdown exceeded grace period, abandoning in-flight I/O")
	}
	s.setState(StateDisconnect)
}

// Reconnect moves a failed or disconnected session back to scheduling, per
// spec.md §4.D ("failed -> scheduling only via explicit user reconnect").
func (s *Session) Reconnect(ctx context.Context) {
	s.mu.Lock()
	cur := s.state
	s.failCount = 0
	if cur == StateFailed && s.cancel != nil {
		// run returned on the fatal error without clearing cancel.
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	if cur != StateFailed && cur != StateDisconnect {
		return
	}
	s.Start(ctx)
}

// run drives connect attempts, backoff sleep, and (once connected) the
// poll/command loop, until ctx is cancelled.
func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.setState(StateAttempting)
		if err := s.connectAndPoll(ctx); err != nil {
			if authErr, ok := err.(*HTTPError); ok && IsAuthFailure(authErr.StatusCode) {
				s.mu.Lock()
				s.lastErr = err
				s.mu.Unlock()
				s.setState(StateFailed)
				return
			}

			s.mu.Lock()
			s.failCount++
			attempt := s.failCount
			s.lastErr = err
			s.mu.Unlock()

			s.setState(StateSleeping)
			delay := s.opts.Backoff.Delay(attempt - 1)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			s.setState(StateScheduling)
			continue
		}
		// connectAndPoll returns nil only on clean cancellation.
		return
	}
}

// connectAndPoll performs the first poll (acting as the connect handshake)
// and, on success, runs the poll/command loop until ctx is cancelled or a
// transient/fatal error occurs.
func (s *Session) connectAndPoll(ctx context.Context) error {
	if err := s.pollAll(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.failCount = 0
	s.mu.Unlock()
	s.setState(StateConnected)
	s.model.MarkStale(false)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-s.commands:
			health.CommandQueueDepth.Set(float64(len(s.commands)))
			s.runCommand(ctx, cmd)
		case <-ticker.C:
			if err := s.pollAll(ctx); err != nil {
				return err
			}
			s.refreshShuttles(ctx)
		}
	}
}

func (s *Session) pollAll(ctx context.Context) error {
	start := time.Now()
	defer func() { health.PollLatency.Observe(time.Since(start).Seconds()) }()

	for _, gname := range s.opts.Registry.Groups() {
		g, _ := s.opts.Registry.Group(gname)
		wire, err := s.client.GetGroup(ctx, g.Poll.Path)
		if err == ErrCapabilityAbsent {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.model.ApplyRemoteGroup(gname, wire); err != nil {
			s.logger.WithError(err).WithField("group", gname).Warn("failed to apply poll response")
		}
	}
	s.model.MarkStale(false)
	return nil
}

// enqueueFromModel is passed to the model as its CommandEnqueuer; it
// bridges SetLocal calls into the session's FIFO command queue.
func (s *Session) enqueueFromModel(ctx context.Context, d paramspec.Descriptor, value interface{}) error {
	select {
	case s.commands <- command{name: d.Name, descriptor: d, value: value}:
		health.CommandQueueDepth.Set(float64(len(s.commands)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shuttleState is the session's bookkeeping for one active continuous-
// motion control: the deflection value last commanded, re-sent at every
// poll heartbeat until the caller releases the control.
type shuttleState struct {
	descriptor paramspec.Descriptor
	value      interface{}
}

// StartShuttle begins a continuous-motion command (zoom/focus/master
// black) refreshed at the poll heartbeat until StopShuttle is called for
// the same parameter (spec.md §4.D, §5). It goes through the model's
// SetLocal so Current/Pending reflect the deflection like any other
// local write.
func (s *Session) StartShuttle(ctx context.Context, name string, descriptor paramspec.Descriptor, value interface{}) {
	s.mu.Lock()
	s.shuttles[name] = shuttleState{descriptor: descriptor, value: value}
	s.mu.Unlock()

	if err := s.model.SetLocal(ctx, name, value); err != nil {
		s.logger.WithError(err).WithField("parameter", name).Warn("shuttle start rejected")
	}
}

// StopShuttle ends a continuous-motion command: the control has centered,
// so one stop command (zero deflection) is sent immediately and no
// further heartbeats are issued (spec.md §5 scenario 6: "core sends one
// stop command within 100 ms and cancels pending heartbeats").
func (s *Session) StopShuttle(ctx context.Context, name string) {
	s.mu.Lock()
	st, active := s.shuttles[name]
	delete(s.shuttles, name)
	s.mu.Unlock()
	if !active {
		return
	}

	if err := s.model.SetLocal(ctx, name, stopValue(st.descriptor)); err != nil {
		s.logger.WithError(err).WithField("parameter", name).Warn("shuttle stop command rejected")
	}
}

// stopValue is the zero-deflection value for a continuous-motion
// parameter's Kind: a shuttle control's release always centers it.
func stopValue(d paramspec.Descriptor) interface{} {
	switch d.Kind {
	case paramspec.KindBool:
		return false
	default:
		return 0
	}
}

func (s *Session) refreshShuttles(ctx context.Context) {
	s.mu.RLock()
	active := make(map[string]shuttleState, len(s.shuttles))
	for name, st := range s.shuttles {
		active[name] = st
	}
	s.mu.RUnlock()

	for name, st := range active {
		if err := s.model.SetLocal(ctx, name, st.value); err != nil {
			s.logger.WithError(err).WithField("parameter", name).Warn("shuttle heartbeat rejected")
		}
	}
}

// runCommand executes one queued write, retrying transient failures up to
// MaxWriteRetries before surfacing a parameter error annotation and
// demoting the session to sleeping (spec.md §4.D).
func (s *Session) runCommand(ctx context.Context, cmd command) {
	req, err := cmd.descriptor.Set.BuildRequest(cmd.value)
	if err != nil {
		s.model.CompleteWrite(cmd.name, false, nil, err)
		return
	}

	wire, err := s.client.Do(ctx, req.Method, req.Path)
	if err == nil {
		s.model.CompleteWrite(cmd.name, true, wire[cmd.descriptor.WireField], nil)
		return
	}

	cmd.attempt++
	if cmd.attempt < s.opts.MaxWriteRetries {
		select {
		case s.commands <- cmd:
		default:
			s.model.CompleteWrite(cmd.name, false, nil, err)
		}
		return
	}

	s.model.CompleteWrite(cmd.name, false, nil, err)
	s.mu.Lock()
	s.failCount++
	s.mu.Unlock()
	s.setState(StateSleeping)
}

// LastError returns the most recent connect/poll error, or nil.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}
