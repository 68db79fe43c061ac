package encoder

import (
	"errors"
	"image"
	"time"
)

// ErrNoFrames is reported by Finalize when no frame was ever added.
var ErrNoFrames = errors.New("encoder: no frames to encode")

// AnimationEncoder assembles frames into an animated image.
type AnimationEncoder interface {
	// AddFrame queues img, shown delay after the previous frame. It never
	// blocks on encoding work. img must not be modified afterwards.
	AddFrame(img image.Image, delay time.Duration)

	// Finalize renders the queued frames and calls onComplete exactly once
	// with the result.
	Finalize(onComplete func(*Artifact, error))
}

// Artifact is a finished animation.
type Artifact struct {
	Data        []byte
	ContentType string
	Frames      int
	Duration    time.Duration
	Width       int
	Height      int
}
