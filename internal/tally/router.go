package tally

import (
	"context"

	"github.com/jvconnected/camera-engine/internal/config"
	"github.com/jvconnected/camera-engine/internal/logging"
	"github.com/jvconnected/camera-engine/internal/model"
	"github.com/jvconnected/camera-engine/internal/umd"
)

// ModelLookup resolves a device's parameter model by its DeviceIndex; the
// router only ever knows indices, never DeviceIds (spec.md §4.H). It is
// satisfied by *engine.Supervisor's ModelByIndex.
type ModelLookup func(deviceIndex int) (*model.ParameterModel, bool)

// umdEvent is a tally-updated notification from the UMD listener.
type umdEvent struct {
	screen     uint16
	tallyIndex uint16
	fields     umd.Fields
}

// directWriteEvent is a direct program/preview write bypassing the source
// mapping — issued by the control API's set_parameter handler on
// tally.program/tally.preview, not by the read-only command-port server
// (spec.md §4.H; the command-port grammar in §6 has no inbound write verb).
type directWriteEvent struct {
	deviceIndex int
	program     *bool
	preview     *bool
}

// eventQueueDepth bounds the router's inbound channel; producers (the UMD
// listener and the control API) block when it is full, per spec.md §5's
// shared-scheduler backpressure model.
const eventQueueDepth = 64

// WriteObserver is notified after the router successfully applies a
// program/preview write to a device model, regardless of which source
// caused it. The command-port server uses this to keep its own tally
// vector (queried by third-party controllers) in sync.
type WriteObserver func(deviceIndex int, param string, on bool)

// Router is the tally routing core: a single goroutine processing two
// independent event sources in arrival order (spec.md §5: "the router
// processes its inputs in a single task so that a UMD event and a
// command-port write are totally ordered").
type Router struct {
	cfg    *config.ConfigManager
	lookup ModelLookup
	logger *logging.Logger

	events chan interface{} // umdEvent or directWriteEvent, in arrival order

	observers []WriteObserver
}

// NewRouter builds a Router. Call Run to start processing.
func NewRouter(cfg *config.ConfigManager, lookup ModelLookup, logger *logging.Logger) *Router {
	return &Router{
		cfg:    cfg,
		lookup: lookup,
		logger: logger,
		events: make(chan interface{}, eventQueueDepth),
	}
}

// ObserveWrites registers fn to be called, from the router's own
// goroutine, after every successful tally write.
func (r *Router) ObserveWrites(fn WriteObserver) {
	r.observers = append(r.observers, fn)
}

// OnUMDUpdate is the callback handed to umd.Listener.Start; it enqueues
// the update for sequential processing.
func (r *Router) OnUMDUpdate(screen, tallyIndex uint16, f umd.Fields) {
	r.events <- umdEvent{screen: screen, tallyIndex: tallyIndex, fields: f}
}

// OnDirectWrite is called by the control API when an operator sets
// program or preview state directly on a device, bypassing the UMD
// source mapping. A nil pointer means "leave unchanged".
func (r *Router) OnDirectWrite(deviceIndex int, program, preview *bool) {
	r.events <- directWriteEvent{deviceIndex: deviceIndex, program: program, preview: preview}
}

// Run processes both event channels on one goroutine until ctx is
// cancelled, enforcing total order between the two sources.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			switch e := ev.(type) {
			case umdEvent:
				r.applyUMDEvent(ctx, e)
			case directWriteEvent:
				r.applyDirectWrite(ctx, e)
			}
		}
	}
}

func (r *Router) applyUMDEvent(ctx context.Context, ev umdEvent) {
	for deviceIndex, tm := range r.cfg.TallyMaps() {
		if on, ok := matches(tm.ProgramSource, ev); ok {
			r.write(ctx, deviceIndex, "tally.program", on)
		}
		if on, ok := matches(tm.PreviewSource, ev); ok {
			r.write(ctx, deviceIndex, "tally.preview", on)
		}
	}
}

// matches reports whether source names the (screen, tallyIndex) the event
// carries, and if so, the resulting on/off state for its tallyType
// (spec.md §4.H: "on = color non-off or text non-empty").
func matches(source config.TallySource, ev umdEvent) (bool, bool) {
	if source.TallyType == "" {
		return false, false
	}
	if uint16(source.ScreenIndex) != ev.screen || uint16(source.TallyIndex) != ev.tallyIndex {
		return false, false
	}
	switch source.TallyType {
	case "rh_tally":
		return umd.On(ev.fields.RH, ""), true
	case "lh_tally":
		return umd.On(ev.fields.LH, ""), true
	case "txt_tally":
		return umd.On(ev.fields.Txt, ev.fields.Text), true
	default:
		return false, false
	}
}

func (r *Router) applyDirectWrite(ctx context.Context, ev directWriteEvent) {
	if ev.program != nil {
		r.write(ctx, ev.deviceIndex, "tally.program", *ev.program)
	}
	if ev.preview != nil {
		r.write(ctx, ev.deviceIndex, "tally.preview", *ev.preview)
	}
}

func (r *Router) write(ctx context.Context, deviceIndex int, param string, on bool) {
	m, ok := r.lookup(deviceIndex)
	if !ok {
		return
	}
	if err := m.SetLocal(ctx, param, on); err != nil {
		r.logger.WithError(err).WithField("param", param).Warn("tally router write rejected")
		return
	}
	for _, obs := range r.observers {
		obs(deviceIndex, param, on)
	}
}
