package encoder

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/pkg/errors"
)

// DefaultJPEGQuality is used for still captures when no quality is configured.
const DefaultJPEGQuality = 85

// JPEGEncoder encodes single stills.
type JPEGEncoder struct {
	quality int
}

// NewJPEGEncoder creates a JPEG encoder with the given quality (1-100).
func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return &JPEGEncoder{quality: quality}
}

// Encode renders img as a one-frame JPEG artifact.
func (e *JPEGEncoder) Encode(img image.Image) (*Artifact, error) {
	if img == nil {
		return nil, ErrNoFrames
	}
	var buf bytes.Buffer
	buf.Grow(256 * 1024)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, errors.Wrap(err, "encode jpeg")
	}
	b := img.Bounds()
	return &Artifact{
		Data:        buf.Bytes(),
		ContentType: "image/jpeg",
		Frames:      1,
		Width:       b.Dx(),
		Height:      b.Dy(),
	}, nil
}
