package peer

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/junsooki/airmac-recorder/internal/transport"
)

// Data channel labels negotiated by the host.
const (
	LabelFrames = "frames"
	LabelInput  = "input"
)

// Signaler relays SDP and ICE messages to the host.
type Signaler interface {
	SendOffer(target string, payload json.RawMessage) error
	SendICECandidate(target string, payload json.RawMessage) error
}

// Controller manages the controller side of the WebRTC connection.
type Controller struct {
	pc        *webrtc.PeerConnection
	sig       Signaler
	transport *transport.DataChannelTransport
	hostID    string
	log       logrus.FieldLogger
}

// NewController creates a Controller peer manager.
func NewController(sig Signaler, hostID string, iceURLs []string, log logrus.FieldLogger) (*Controller, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{"component": "peer", "host": hostID})
	pc, err := NewPeerConnection(iceURLs, log)
	if err != nil {
		return nil, err
	}

	ctrl := &Controller{
		pc:        pc,
		sig:       sig,
		transport: transport.NewDataChannelTransport(log),
		hostID:    hostID,
		log:       log,
	}

	// The offer needs an application section, so the controller opens both
	// channels itself. Frames are lossy, input is reliable and ordered.
	framesOrdered := false
	framesMaxRetransmits := uint16(0)
	framesDC, err := pc.CreateDataChannel(LabelFrames, &webrtc.DataChannelInit{
		Ordered:        &framesOrdered,
		MaxRetransmits: &framesMaxRetransmits,
	})
	if err != nil {
		pc.Close()
		return nil, errors.Wrap(err, "create frames channel")
	}
	inputOrdered := true
	inputDC, err := pc.CreateDataChannel(LabelInput, &webrtc.DataChannelInit{
		Ordered: &inputOrdered,
	})
	if err != nil {
		pc.Close()
		return nil, errors.Wrap(err, "create input channel")
	}
	ctrl.attach(framesDC)
	ctrl.attach(inputDC)

	// Hosts may also open replacement channels of their own.
	pc.OnDataChannel(ctrl.attach)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.WithError(err).Warn("marshal ICE candidate")
			return
		}
		if err := sig.SendICECandidate(hostID, data); err != nil {
			log.WithError(err).Warn("send ICE candidate")
		}
	})

	return ctrl, nil
}

func (c *Controller) attach(dc *webrtc.DataChannel) {
	label := dc.Label()
	dc.OnOpen(func() {
		c.log.WithField("label", label).Info("data channel open")
	})
	switch label {
	case LabelFrames:
		c.transport.SetFramesChannel(dc)
	case LabelInput:
		c.transport.SetInputChannel(dc)
	default:
		c.log.WithField("label", label).Warn("ignoring unknown data channel")
	}
}

// Transport returns the DataChannelTransport.
func (c *Controller) Transport() *transport.DataChannelTransport {
	return c.transport
}

// Connect initiates the WebRTC connection by creating and sending an offer.
func (c *Controller) Connect() error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return errors.Wrap(err, "create offer")
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return errors.Wrap(err, "set local description")
	}
	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return errors.Wrap(err, "marshal offer")
	}
	return c.sig.SendOffer(c.hostID, offerJSON)
}

// HandleAnswer processes an incoming SDP answer.
func (c *Controller) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return errors.Wrap(err, "unmarshal answer")
	}
	return errors.Wrap(c.pc.SetRemoteDescription(answer), "set remote description")
}

// HandleICECandidate adds a remote ICE candidate.
func (c *Controller) HandleICECandidate(payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return errors.Wrap(err, "unmarshal ICE candidate")
	}
	return errors.Wrap(c.pc.AddICECandidate(candidate), "add ICE candidate")
}

// Close shuts down the peer connection.
func (c *Controller) Close() {
	if c.pc == nil {
		return
	}
	if err := c.pc.Close(); err != nil {
		c.log.WithError(err).Warn("close peer connection")
	}
}
