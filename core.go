package cambang

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cambang/cambang/internal/clock"
	"github.com/cambang/cambang/internal/config"
	"github.com/cambang/cambang/internal/ids"
	"github.com/cambang/cambang/internal/publish"
	"github.com/cambang/cambang/internal/queue"
	"github.com/cambang/cambang/internal/registry"
	"github.com/cambang/cambang/internal/snapshotbuild"
	"github.com/cambang/cambang/internal/specstore"
	"github.com/cambang/cambang/internal/timers"
	"github.com/cambang/cambang/model"
	"github.com/cambang/cambang/provider"
)

// Core is the sole mutator of all runtime state (§4.J, §9 "No shared
// mutable state"). Every field below except the queues, the publisher, and
// the id allocators is touched only from the goroutine running Run — there
// are no locks over core state because there are no concurrent writers.
type Core struct {
	cfg config.Config
	clk clock.Clock
	cam provider.Camera
	log *slog.Logger

	idSpaces  ids.Spaces
	timerHeap *timers.Heap
	cmdQueue  *queue.Queue[command]
	evtQueue  *queue.Queue[event]
	reg       *registry.Registry
	specs     *specstore.Store
	snap      *snapshotbuild.Builder
	pub       *publish.Publisher

	rigs            map[uint64]*model.Rig
	devices         map[uint64]*model.Device
	hwToInstance    map[string]uint64
	streams         map[uint64]*model.Stream
	streamByDevice  map[uint64]uint64
	deviceRoot      map[uint64]uint64
	rigMemberByHW   map[uint64]map[string]uint64 // rig id -> hardware id -> instance id

	warmTimer      map[uint64]timers.Handle
	warmDeadlineNS map[uint64]int64
	starveTimer    map[uint64]timers.Handle
	retentionTimer timers.Handle
	retentionArmed bool

	preCaptureMode     map[uint64]model.DeviceMode
	deviceCaptureOwner map[uint64]uint64 // capture id -> device instance id

	// Rig sync captures share one capture_id across every member, and the
	// provider contract's on_capture_completed(capture_id) carries no
	// per-device identity — so completion is tracked by count against the
	// member list recorded at trigger time, not by member identity.
	rigCaptureOwner    map[uint64]uint64   // capture id -> rig id
	rigCaptureMembers  map[uint64][]uint64 // capture id -> member instance ids
	rigCaptureExpected map[uint64]int      // capture id -> member count
	rigCaptureSeen     map[uint64]int      // capture id -> completions observed so far
	rigCaptureTS       map[uint64][]int64  // capture id -> completion timestamps
	rigCaptureStartNS  map[uint64]int64    // capture id -> trigger timestamp

	stillProfile map[uint64]model.StillProfile // device instance id -> configured still profile

	dirty        bool
	shuttingDown bool
	shutdownDone chan struct{}
}

// Option customizes Core construction.
type Option func(*Core)

// WithClock overrides the production clock.System() default, primarily
// for tests that need clock.Fake driving both Core and the synthetic
// provider in lockstep.
func WithClock(clk clock.Clock) Option {
	return func(c *Core) { c.clk = clk }
}

// WithLogger overrides the default slog.NewTextHandler(os.Stderr, ...)
// logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Core) { c.log = log }
}

// New constructs a Core from cfg and the provider it will drive. The
// Core does not start running until Run is called.
func New(cfg config.Config, cam provider.Camera, opts ...Option) *Core {
	c := &Core{
		cfg:       cfg,
		clk:       clock.System(),
		cam:       cam,
		log:       slog.New(slog.NewTextHandler(os.Stderr, nil)),
		timerHeap: timers.New(),
		cmdQueue:  queue.New[command](cfg.CmdQueueCap),
		evtQueue:  queue.New[event](cfg.EvtQueueCap),
		reg:       registry.New(),
		specs:     specstore.New(nil),
		snap:      snapshotbuild.New(),
		pub:       publish.New(),

		rigs:               make(map[uint64]*model.Rig),
		devices:            make(map[uint64]*model.Device),
		hwToInstance:       make(map[string]uint64),
		streams:            make(map[uint64]*model.Stream),
		streamByDevice:     make(map[uint64]uint64),
		deviceRoot:         make(map[uint64]uint64),
		rigMemberByHW:      make(map[uint64]map[string]uint64),
		warmTimer:          make(map[uint64]timers.Handle),
		warmDeadlineNS:     make(map[uint64]int64),
		starveTimer:        make(map[uint64]timers.Handle),
		preCaptureMode:     make(map[uint64]model.DeviceMode),
		deviceCaptureOwner: make(map[uint64]uint64),
		rigCaptureOwner:    make(map[uint64]uint64),
		rigCaptureMembers:  make(map[uint64][]uint64),
		rigCaptureExpected: make(map[uint64]int),
		rigCaptureSeen:     make(map[uint64]int),
		rigCaptureTS:       make(map[uint64][]int64),
		rigCaptureStartNS:  make(map[uint64]int64),
		stillProfile:       make(map[uint64]model.StillProfile),
		shutdownDone:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers an observer invoked synchronously after every
// publish, on the core goroutine (§4.I).
func (c *Core) Subscribe(obs publish.Observer) {
	c.pub.Subscribe(obs)
}

// Snapshot returns the most recently published snapshot, or nil before
// the first publish. Safe to call from any goroutine.
func (c *Core) Snapshot() *model.Snapshot {
	return c.pub.Load()
}

// Run starts the core's event loop on the calling goroutine and blocks
// until ctx is cancelled or shutdown() is processed. It is the "single
// dedicated core thread" of §5; callers submit commands concurrently
// from other goroutines via Core's command methods.
func (c *Core) Run(ctx context.Context) error {
	callbacks := &callbackBridge{evt: c.evtQueue, log: c.log}
	if res := c.cam.Initialize(callbacks); !res.OK() {
		return fmt.Errorf("cambang: provider initialize failed: %w", res)
	}

	for {
		if c.shuttingDown && c.loopIdle() {
			close(c.shutdownDone)
			return nil
		}

		select {
		case <-ctx.Done():
			c.beginShutdown()
			c.drive()
			close(c.shutdownDone)
			return ctx.Err()
		case <-c.cmdQueue.Notify():
		case <-c.evtQueue.Notify():
		case <-c.nextTimerChan():
		}
		c.drive()
	}
}

// loopIdle reports whether shutdown teardown has fully drained: no
// queued commands or events, and every device DESTROYED. Streams and
// pending timers are not checked.
func (c *Core) loopIdle() bool {
	if c.cmdQueue.Len() > 0 || c.evtQueue.Len() > 0 {
		return false
	}
	for _, d := range c.devices {
		if d.Phase != model.PhaseDestroyed {
			return false
		}
	}
	return true
}

// nextTimerChan returns a channel that fires at the nearest scheduled
// deadline, or a nil channel (blocks forever) if nothing is scheduled.
func (c *Core) nextTimerChan() <-chan struct{} {
	deadline, ok := c.timerHeap.Peek()
	if !ok {
		return nil
	}
	now := c.clk.NowNS()
	d := deadline - now
	if d < 0 {
		d = 0
	}
	return c.clk.NewTimer(time.Duration(d)).C()
}

// drive runs one full non-blocking iteration of §4.J steps 2-5:
// drain events, drain commands, process due timers, publish if dirty.
// Run's select loop calls this after waking; tests drive it directly
// against a clock.Fake for deterministic end-to-end scenarios without
// going through the blocking select.
func (c *Core) drive() {
	now := c.clk.NowNS()

	if tick, ok := c.cam.(provider.Tickable); ok {
		tick.Tick(now)
	}

	for _, e := range c.evtQueue.DrainUpTo(c.cfg.DrainMax) {
		e.apply(c, now)
	}

	if !c.shuttingDown {
		for _, cmd := range c.cmdQueue.DrainUpTo(c.cfg.DrainMax) {
			cmd.apply(c, now)
		}
	} else {
		for _, cmd := range c.cmdQueue.DrainUpTo(c.cfg.DrainMax) {
			cmd.deny(model.NewCoreError(model.ErrShuttingDown))
		}
	}

	for _, tag := range c.timerHeap.PopDue(now) {
		c.fireTimer(tag, now)
	}

	if c.dirty {
		c.runRetentionSweep(now)
		c.publish(now)
		c.dirty = false
	}
}

func (c *Core) markDirty() { c.dirty = true }

func (c *Core) publish(now int64) {
	detached := c.reg.DetachedRoots(coreOwner{c})
	snap := c.snap.Build(snapshotbuild.Input{
		TimestampNS:        now,
		ImagingSpecVersion: c.specs.ImagingSpec().Version,
		Rigs:               c.rigList(),
		Devices:            c.deviceList(),
		Streams:            c.streamList(),
		Registry:           c.reg,
		DetachedRootIDs:    detached,
		WarmDeadlineNS:     c.warmDeadlineNS,
	})
	c.pub.Publish(snap)
}

func (c *Core) rigList() []model.Rig {
	out := make([]model.Rig, 0, len(c.rigs))
	for _, r := range c.rigs {
		out = append(out, *r)
	}
	return out
}

func (c *Core) deviceList() []model.Device {
	out := make([]model.Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, *d)
	}
	return out
}

func (c *Core) streamList() []model.Stream {
	out := make([]model.Stream, 0, len(c.streams))
	for _, s := range c.streams {
		out = append(out, *s)
	}
	return out
}

// coreOwner adapts Core to registry.Owner without exposing Core's maps.
type coreOwner struct{ c *Core }

func (o coreOwner) RigLive(rigID uint64) bool {
	r, ok := o.c.rigs[rigID]
	return ok && r.Phase != model.PhaseDestroyed
}

func (o coreOwner) DeviceInstanceLive(instanceID uint64) bool {
	d, ok := o.c.devices[instanceID]
	return ok && d.Phase != model.PhaseDestroyed
}

