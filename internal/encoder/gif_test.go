package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func finalize(t *testing.T, enc AnimationEncoder) (*Artifact, error) {
	t.Helper()
	type result struct {
		a   *Artifact
		err error
	}
	done := make(chan result, 1)
	enc.Finalize(func(a *Artifact, err error) { done <- result{a, err} })
	select {
	case r := <-done:
		return r.a, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("finalize did not complete")
		return nil, nil
	}
}

func TestGIFEncoder_DelaysShiftToPreviousFrame(t *testing.T) {
	log, _ := test.NewNullLogger()
	enc := NewGIFEncoder(GIFOptions{}, log)

	enc.AddFrame(solid(8, 6, color.White), 0)
	enc.AddFrame(solid(8, 6, color.Black), 250*time.Millisecond)

	a, err := finalize(t, enc)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", a.ContentType)
	assert.Equal(t, 2, a.Frames)
	assert.Equal(t, 1250*time.Millisecond, a.Duration)
	assert.Equal(t, 8, a.Width)
	assert.Equal(t, 6, a.Height)

	g, err := gif.DecodeAll(bytes.NewReader(a.Data))
	require.NoError(t, err)
	assert.Equal(t, []int{25, 100}, g.Delay)
	assert.Equal(t, 8, g.Config.Width)
	assert.Equal(t, 6, g.Config.Height)
	assert.Equal(t, 0, g.LoopCount)
}

func TestGIFEncoder_FinalHold(t *testing.T) {
	enc := NewGIFEncoder(GIFOptions{FinalHold: 3 * time.Second}, nil)
	enc.AddFrame(solid(2, 2, color.White), 0)

	a, err := finalize(t, enc)
	require.NoError(t, err)

	g, err := gif.DecodeAll(bytes.NewReader(a.Data))
	require.NoError(t, err)
	assert.Equal(t, []int{300}, g.Delay)
}

func TestGIFEncoder_NoFrames(t *testing.T) {
	enc := NewGIFEncoder(GIFOptions{}, nil)

	a, err := finalize(t, enc)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestGIFEncoder_IgnoresLateCalls(t *testing.T) {
	log, hook := test.NewNullLogger()
	enc := NewGIFEncoder(GIFOptions{}, log)
	enc.AddFrame(solid(2, 2, color.White), 0)

	var calls atomic.Int32
	done := make(chan struct{})
	enc.Finalize(func(*Artifact, error) {
		calls.Add(1)
		close(done)
	})
	enc.AddFrame(solid(2, 2, color.Black), time.Second)
	enc.Finalize(func(*Artifact, error) { calls.Add(1) })

	<-done
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	var warnings []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings = append(warnings, e.Message)
		}
	}
	assert.ElementsMatch(t, []string{
		"frame added after finalize, dropping",
		"finalize called twice, ignoring",
	}, warnings)
}

func TestGIFEncoder_MaxWidthScales(t *testing.T) {
	enc := NewGIFEncoder(GIFOptions{MaxWidth: 10}, nil)
	enc.AddFrame(solid(40, 20, color.White), 0)

	a, err := finalize(t, enc)
	require.NoError(t, err)
	assert.Equal(t, 10, a.Width)
	assert.Equal(t, 5, a.Height)

	g, err := gif.DecodeAll(bytes.NewReader(a.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 5), g.Image[0].Bounds())
}

func TestGIFEncoder_MixedSizes(t *testing.T) {
	enc := NewGIFEncoder(GIFOptions{Dither: true}, nil)
	enc.AddFrame(solid(12, 4, color.White), 0)
	enc.AddFrame(solid(6, 9, color.Black), 100*time.Millisecond)

	a, err := finalize(t, enc)
	require.NoError(t, err)
	assert.Equal(t, 12, a.Width)
	assert.Equal(t, 9, a.Height)

	g, err := gif.DecodeAll(bytes.NewReader(a.Data))
	require.NoError(t, err)
	require.Len(t, g.Image, 2)
	assert.Equal(t, image.Rect(0, 0, 6, 9), g.Image[1].Bounds())
}

func TestGIFEncoder_ManyFrames(t *testing.T) {
	enc := NewGIFEncoder(GIFOptions{}, nil)
	for i := 0; i < 50; i++ {
		enc.AddFrame(solid(4, 4, color.Gray{Y: uint8(i * 5)}), 20*time.Millisecond)
	}

	a, err := finalize(t, enc)
	require.NoError(t, err)
	assert.Equal(t, 50, a.Frames)
}

func TestCentiseconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 2},
		{5 * time.Millisecond, 2},
		{20 * time.Millisecond, 2},
		{25 * time.Millisecond, 3},
		{34 * time.Millisecond, 3},
		{1234 * time.Millisecond, 123},
		{time.Second, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, centiseconds(tt.in), "%v", tt.in)
	}
}
