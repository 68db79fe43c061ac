package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

const (
	// DefaultFinalHold is how long the last frame stays on screen.
	DefaultFinalHold = time.Second

	// Most players treat delays under 2cs as 10cs, so never emit less.
	minDelayCentis = 2
)

// GIFOptions configures a GIFEncoder.
type GIFOptions struct {
	// MaxWidth downscales wider frames, keeping aspect ratio. 0 disables.
	MaxWidth int
	// Dither enables Floyd-Steinberg error diffusion when quantizing.
	Dither bool
	// FinalHold is the display time of the last frame.
	FinalHold time.Duration
	// LoopCount follows image/gif: 0 loops forever, -1 plays once.
	LoopCount int
}

type queuedFrame struct {
	img   image.Image
	delay time.Duration
}

// GIFEncoder builds an animated GIF. Frames are quantized on a background
// worker as they arrive, so AddFrame stays cheap for the caller.
type GIFEncoder struct {
	opts GIFOptions
	log  logrus.FieldLogger

	mu         sync.Mutex
	queue      []queuedFrame
	finalized  bool
	onComplete func(*Artifact, error)
	wake       chan struct{}

	// Worker-owned.
	images []*image.Paletted
	delays []time.Duration
}

// NewGIFEncoder creates a GIFEncoder and starts its worker.
func NewGIFEncoder(opts GIFOptions, log logrus.FieldLogger) *GIFEncoder {
	if opts.FinalHold <= 0 {
		opts.FinalHold = DefaultFinalHold
	}
	if opts.MaxWidth < 0 {
		opts.MaxWidth = 0
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &GIFEncoder{
		opts: opts,
		log:  log.WithField("component", "gif-encoder"),
		wake: make(chan struct{}, 1),
	}
	go e.run()
	return e
}

func (e *GIFEncoder) AddFrame(img image.Image, delay time.Duration) {
	if img == nil {
		return
	}
	e.mu.Lock()
	if e.finalized {
		e.mu.Unlock()
		e.log.Warn("frame added after finalize, dropping")
		return
	}
	e.queue = append(e.queue, queuedFrame{img: img, delay: delay})
	e.mu.Unlock()
	e.signal()
}

func (e *GIFEncoder) Finalize(onComplete func(*Artifact, error)) {
	e.mu.Lock()
	if e.finalized {
		e.mu.Unlock()
		e.log.Warn("finalize called twice, ignoring")
		return
	}
	e.finalized = true
	e.onComplete = onComplete
	e.mu.Unlock()
	e.signal()
}

func (e *GIFEncoder) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *GIFEncoder) run() {
	for range e.wake {
		batch, finalized, onComplete := e.drain()
		for _, f := range batch {
			e.images = append(e.images, e.quantize(f.img))
			e.delays = append(e.delays, f.delay)
		}
		if !finalized {
			continue
		}
		// finalized was read together with the last batch, so nothing
		// can be queued behind it.
		artifact, err := e.encode()
		if err != nil {
			e.log.WithError(err).Warn("gif encode failed")
		} else {
			e.log.WithFields(logrus.Fields{
				"frames": artifact.Frames,
				"bytes":  len(artifact.Data),
			}).Debug("gif encoded")
		}
		if onComplete != nil {
			onComplete(artifact, err)
		}
		return
	}
}

func (e *GIFEncoder) drain() ([]queuedFrame, bool, func(*Artifact, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	batch := e.queue
	e.queue = nil
	return batch, e.finalized, e.onComplete
}

func (e *GIFEncoder) quantize(img image.Image) *image.Paletted {
	src := img
	b := src.Bounds()
	if e.opts.MaxWidth > 0 && b.Dx() > e.opts.MaxWidth {
		h := b.Dy() * e.opts.MaxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, e.opts.MaxWidth, h))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Src, nil)
		src = scaled
		b = scaled.Bounds()
	}

	dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), palette.Plan9)
	if e.opts.Dither {
		draw.FloydSteinberg.Draw(dst, dst.Bounds(), src, b.Min)
	} else {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	}
	return dst
}

func (e *GIFEncoder) encode() (*Artifact, error) {
	n := len(e.images)
	if n == 0 {
		return nil, ErrNoFrames
	}

	anim := &gif.GIF{
		Image:     e.images,
		Delay:     make([]int, n),
		LoopCount: e.opts.LoopCount,
	}

	// Recorded delays are measured from the previous frame, GIF delays say
	// how long a frame stays up: frame k is shown for frame k+1's delay.
	var total time.Duration
	width, height := 0, 0
	for k, img := range e.images {
		hold := e.opts.FinalHold
		if k+1 < n {
			hold = e.delays[k+1]
		}
		cs := centiseconds(hold)
		anim.Delay[k] = cs
		total += time.Duration(cs) * 10 * time.Millisecond

		if w := img.Bounds().Dx(); w > width {
			width = w
		}
		if h := img.Bounds().Dy(); h > height {
			height = h
		}
	}
	// The remote screen can change size mid-recording; the logical screen
	// must contain every frame.
	anim.Config = image.Config{
		ColorModel: color.Palette(palette.Plan9),
		Width:      width,
		Height:     height,
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, errors.Wrapf(err, "encode gif with %d frames", n)
	}

	return &Artifact{
		Data:        buf.Bytes(),
		ContentType: "image/gif",
		Frames:      n,
		Duration:    total,
		Width:       width,
		Height:      height,
	}, nil
}

func centiseconds(d time.Duration) int {
	cs := int((d + 5*time.Millisecond) / (10 * time.Millisecond))
	if cs < minDelayCentis {
		cs = minDelayCentis
	}
	return cs
}
