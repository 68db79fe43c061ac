package transport

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// DataChannelTransport carries frames and input over two WebRTC DataChannels.
type DataChannelTransport struct {
	log   logrus.FieldLogger
	clock clock.PassiveClock

	mu       sync.RWMutex
	framesDC *webrtc.DataChannel
	inputDC  *webrtc.DataChannel
	onFrame  func(Frame)
}

// NewDataChannelTransport creates a transport with no channels attached yet.
// The peer attaches the channels it opens through SetFramesChannel and
// SetInputChannel.
func NewDataChannelTransport(log logrus.FieldLogger) *DataChannelTransport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DataChannelTransport{
		log:   log.WithField("component", "transport"),
		clock: clock.RealClock{},
	}
}

func (t *DataChannelTransport) SendFrame(ts time.Duration, payload []byte) error {
	t.mu.RLock()
	dc := t.framesDC
	t.mu.RUnlock()
	if dc == nil {
		return errors.New("frames data channel not set")
	}
	return dc.Send(EncodeFrame(ts, payload))
}

func (t *DataChannelTransport) SendInput(data []byte) error {
	t.mu.RLock()
	dc := t.inputDC
	t.mu.RUnlock()
	if dc == nil {
		return errors.New("input data channel not set")
	}
	return dc.Send(data)
}

func (t *DataChannelTransport) OnFrame(cb func(Frame)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFrame = cb
}

// SetFramesChannel attaches the frames DataChannel.
func (t *DataChannelTransport) SetFramesChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.framesDC = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.handleFrame(msg.Data)
	})
}

// SetInputChannel attaches the input DataChannel.
func (t *DataChannelTransport) SetInputChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputDC = dc
}

func (t *DataChannelTransport) handleFrame(data []byte) {
	f, err := ParseFrame(data, t.clock.Now())
	if err != nil {
		t.log.WithError(err).WithField("bytes", len(data)).Debug("dropping frame")
		return
	}
	t.mu.RLock()
	cb := t.onFrame
	t.mu.RUnlock()
	if cb != nil {
		cb(f)
	}
}
