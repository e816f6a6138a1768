package cambang

import (
	"log/slog"

	"github.com/cambang/cambang/internal/queue"
	"github.com/cambang/cambang/provider"
)

// callbackBridge implements provider.Callbacks by translating every
// provider fact into an event and enqueuing it for the core thread. It
// runs on whatever thread the provider's single serialized callback
// context uses (§5); for the synthetic provider that is the core
// goroutine, since its callbacks fire inside Tick.
type callbackBridge struct {
	evt *queue.Queue[event]
	log *slog.Logger
}

func (b *callbackBridge) push(e event) {
	if err := b.evt.Enqueue(e); err != nil {
		b.log.Warn("event dropped, queue unavailable", "error", err)
	}
}

func (b *callbackBridge) OnDeviceOpened(deviceInstanceID uint64) {
	b.push(deviceOpenedEvent{instanceID: deviceInstanceID})
}

func (b *callbackBridge) OnDeviceClosed(deviceInstanceID uint64) {
	b.push(deviceClosedEvent{instanceID: deviceInstanceID})
}

func (b *callbackBridge) OnStreamCreated(streamID uint64) {
	b.push(streamCreatedEvent{streamID: streamID})
}

func (b *callbackBridge) OnStreamDestroyed(streamID uint64) {
	b.push(streamDestroyedEvent{streamID: streamID})
}

func (b *callbackBridge) OnStreamStarted(streamID uint64) {
	b.push(streamStartedEvent{streamID: streamID})
}

func (b *callbackBridge) OnStreamStopped(streamID uint64, errorOrOK provider.Result) {
	b.push(streamStoppedEvent{streamID: streamID, result: errorOrOK})
}

func (b *callbackBridge) OnCaptureStarted(captureID uint64) {
	b.push(captureStartedEvent{captureID: captureID})
}

func (b *callbackBridge) OnCaptureCompleted(captureID uint64) {
	b.push(captureCompletedEvent{captureID: captureID})
}

func (b *callbackBridge) OnCaptureFailed(captureID uint64, err provider.Result) {
	b.push(captureFailedEvent{captureID: captureID, result: err})
}

func (b *callbackBridge) OnFrame(frame provider.FrameView) {
	b.push(frameEvent{frame: frame})
}

func (b *callbackBridge) OnDeviceError(deviceInstanceID uint64, err provider.Result) {
	b.push(deviceErrorEvent{instanceID: deviceInstanceID, result: err})
}

func (b *callbackBridge) OnStreamError(streamID uint64, err provider.Result) {
	b.push(streamErrorEvent{streamID: streamID, result: err})
}

func (b *callbackBridge) OnNativeObjectCreated(info provider.NativeObjectCreateInfo) {
	b.push(nativeObjectCreatedEvent{info: info})
}

func (b *callbackBridge) OnNativeObjectDestroyed(info provider.NativeObjectDestroyInfo) {
	b.push(nativeObjectDestroyedEvent{info: info})
}
