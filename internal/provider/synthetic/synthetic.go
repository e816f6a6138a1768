// Package synthetic implements an in-process provider.Camera driven by
// an injectable clock (§13): no real hardware, deterministic
// confirmation callbacks scheduled after a configurable per-call
// latency, and a fixed configurable hardware endpoint set. It backs
// both the demo binary and the end-to-end tests of §8.
package synthetic

import (
	"fmt"
	"sync"

	"github.com/cambang/cambang/internal/clock"
	"github.com/cambang/cambang/provider"
)

// Camera is a synthetic provider.Camera. Every mutating call schedules
// its confirmation callback at clock.NowNS()+latency instead of firing
// it inline, so tests exercise the same async-completion code paths a
// real platform backend would trigger — just without wall-clock waits.
type Camera struct {
	clk     clock.Clock
	latency int64 // nanoseconds, default 0 (fires on next Tick at or after now)

	mu        sync.Mutex
	callbacks provider.Callbacks
	endpoints []provider.Endpoint
	pending   []scheduled

	nativeSeq uint64
}

type scheduled struct {
	deadlineNS int64
	fire       func(provider.Callbacks)
}

// New returns a synthetic Camera backed by clk, reporting endpoints as
// its enumeration result. A nil or empty endpoints defaults to a single
// "cam0" endpoint so a fresh Camera is usable without configuration.
func New(clk clock.Clock, endpoints []provider.Endpoint) *Camera {
	if len(endpoints) == 0 {
		endpoints = []provider.Endpoint{{HardwareID: "cam0", Name: "synthetic cam0"}}
	}
	return &Camera{clk: clk, endpoints: endpoints}
}

// SetLatencyNS configures the delay every confirmation callback is
// scheduled after, in nanoseconds. Zero (the default) means the
// callback is due as of the call that scheduled it and fires on the
// next Tick.
func (c *Camera) SetLatencyNS(ns int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = ns
}

func (c *Camera) Name() string { return "synthetic" }

func (c *Camera) Initialize(callbacks provider.Callbacks) provider.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = callbacks
	return provider.Success()
}

func (c *Camera) EnumerateEndpoints() ([]provider.Endpoint, provider.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]provider.Endpoint, len(c.endpoints))
	copy(out, c.endpoints)
	return out, provider.Success()
}

func (c *Camera) OpenDevice(hardwareID string, deviceInstanceID, rootID uint64) provider.Result {
	c.schedule(func(cb provider.Callbacks) {
		cb.OnDeviceOpened(deviceInstanceID)
	})
	return provider.Success()
}

func (c *Camera) CloseDevice(deviceInstanceID uint64) provider.Result {
	c.schedule(func(cb provider.Callbacks) {
		cb.OnDeviceClosed(deviceInstanceID)
	})
	return provider.Success()
}

func (c *Camera) CreateStream(req provider.StreamRequest) provider.Result {
	c.schedule(func(cb provider.Callbacks) {
		cb.OnStreamCreated(req.StreamID)
	})
	return provider.Success()
}

func (c *Camera) DestroyStream(streamID uint64) provider.Result {
	c.schedule(func(cb provider.Callbacks) {
		cb.OnStreamDestroyed(streamID)
	})
	return provider.Success()
}

func (c *Camera) StartStream(streamID uint64) provider.Result {
	c.schedule(func(cb provider.Callbacks) {
		cb.OnStreamStarted(streamID)
	})
	return provider.Success()
}

func (c *Camera) StopStream(streamID uint64) provider.Result {
	c.schedule(func(cb provider.Callbacks) {
		cb.OnStreamStopped(streamID, provider.Success())
	})
	return provider.Success()
}

func (c *Camera) TriggerCapture(req provider.CaptureRequest) provider.Result {
	c.schedule(func(cb provider.Callbacks) {
		cb.OnCaptureStarted(req.CaptureID)
	})
	c.schedule(func(cb provider.Callbacks) {
		cb.OnFrame(provider.FrameView{
			DeviceInstanceID: req.DeviceInstanceID,
			CaptureID:        req.CaptureID,
			Width:            req.Width,
			Height:           req.Height,
			FormatFourCC:     req.FormatFourCC,
			TimestampNS:      c.clk.NowNS(),
		})
	})
	c.schedule(func(cb provider.Callbacks) {
		cb.OnCaptureCompleted(req.CaptureID)
	})
	return provider.Success()
}

func (c *Camera) AbortCapture(captureID uint64) provider.Result {
	return provider.Failure(provider.ErrNotSupported)
}

func (c *Camera) ApplyCameraSpecPatch(hardwareID string, newVersion uint64, patch provider.SpecPatch) provider.Result {
	return provider.Success()
}

func (c *Camera) ApplyImagingSpecPatch(newVersion uint64, patch provider.SpecPatch) provider.Result {
	return provider.Success()
}

func (c *Camera) Shutdown() provider.Result {
	return provider.Success()
}

// EmitFrame lets a test or the demo script inject a frame on a stream
// or capture, scheduled through the same clock-driven pending queue as
// every other callback.
func (c *Camera) EmitFrame(frame provider.FrameView) {
	c.schedule(func(cb provider.Callbacks) {
		cb.OnFrame(frame)
	})
}

// EmitDeviceError schedules an asynchronous device error callback.
func (c *Camera) EmitDeviceError(deviceInstanceID uint64, code provider.ErrorCode) {
	c.schedule(func(cb provider.Callbacks) {
		cb.OnDeviceError(deviceInstanceID, provider.Failure(code))
	})
}

// nextNativeID returns a synthetic-provider-local native object id.
// These ids are provider-assigned, distinct from core's own identity
// spaces (§3 Ownership: native objects are identified by whatever
// the provider reports; core only requires uniqueness).
func (c *Camera) nextNativeID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nativeSeq++
	return c.nativeSeq
}

// EmitNativeObjectCreated lets a test simulate the provider creating a
// native object tied to rootID, returning the assigned native id.
func (c *Camera) EmitNativeObjectCreated(typ provider.NativeObjectType, rootID, ownerDeviceInstanceID uint64) uint64 {
	id := c.nextNativeID()
	c.schedule(func(cb provider.Callbacks) {
		cb.OnNativeObjectCreated(provider.NativeObjectCreateInfo{
			NativeID:              id,
			Type:                  typ,
			RootID:                rootID,
			OwnerDeviceInstanceID: ownerDeviceInstanceID,
			CreatedNS:             0, // stamped by the core when it applies the event
		})
	})
	return id
}

// EmitNativeObjectDestroyed lets a test simulate the provider reporting
// a previously created native object's destruction.
func (c *Camera) EmitNativeObjectDestroyed(nativeID uint64) {
	c.schedule(func(cb provider.Callbacks) {
		cb.OnNativeObjectDestroyed(provider.NativeObjectDestroyInfo{
			NativeID:    nativeID,
			DestroyedNS: 0, // stamped by the core when it applies the event
		})
	})
}

func (c *Camera) schedule(fire func(provider.Callbacks)) {
	c.mu.Lock()
	deadline := c.clk.NowNS() + c.latency
	c.pending = append(c.pending, scheduled{deadlineNS: deadline, fire: fire})
	c.mu.Unlock()
}

// Tick fires every scheduled callback whose deadline has elapsed, in
// the order they were scheduled. Core calls this once per loop
// iteration (provider.Tickable); tests may also call it directly after
// clock.Fake.Advance to force delivery without waiting for Core.
func (c *Camera) Tick(nowNS int64) {
	c.mu.Lock()
	cb := c.callbacks
	var due []scheduled
	remaining := c.pending[:0]
	for _, p := range c.pending {
		if p.deadlineNS <= nowNS {
			due = append(due, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	c.pending = remaining
	c.mu.Unlock()

	if cb == nil {
		if len(due) > 0 {
			panic(fmt.Sprintf("synthetic: %d callbacks due before Initialize was called", len(due)))
		}
		return
	}
	for _, p := range due {
		p.fire(cb)
	}
}
