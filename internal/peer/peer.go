package peer

import (
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultICEServers are used when no ICE servers are configured.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}

// NewPeerConnection creates a PeerConnection using the given STUN/TURN URLs.
func NewPeerConnection(iceURLs []string, log logrus.FieldLogger) (*webrtc.PeerConnection, error) {
	if len(iceURLs) == 0 {
		iceURLs = DefaultICEServers
	}
	cfg := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceURLs}},
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create peer connection")
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.WithField("state", state.String()).Info("peer connection state")
	})
	return pc, nil
}
