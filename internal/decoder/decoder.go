package decoder

import (
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/junsooki/airmac-recorder/internal/transport"
)

// Decoder decodes bytes into an image.
type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
}

// Publisher receives decoded frames with their capture timestamp.
type Publisher interface {
	Publish(img *image.RGBA, ts time.Duration)
}

// Forward returns a frame callback that decodes each received frame and
// publishes it. Frames that fail to decode are dropped.
func Forward(dec Decoder, pub Publisher, log logrus.FieldLogger) func(transport.Frame) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(f transport.Frame) {
		img, err := dec.Decode(f.Payload)
		if err != nil {
			log.WithError(err).WithField("timestamp", f.Timestamp).Debug("decode frame")
			return
		}
		pub.Publish(img, f.Timestamp)
	}
}
