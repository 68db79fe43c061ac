package transport

import "time"

// FrameSender sends encoded video frames stamped with their capture time.
type FrameSender interface {
	SendFrame(ts time.Duration, payload []byte) error
}

// FrameReceiver receives timestamped video frames.
type FrameReceiver interface {
	OnFrame(callback func(Frame))
}

// InputSender sends serialized input events.
type InputSender interface {
	SendInput(data []byte) error
}
