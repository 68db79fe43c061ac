// Package surface holds the remote screen as the controller last received it.
package surface

import (
	"image"
	"image/color"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// Surface stores the latest remote frame and the remote-mapped cursor, and
// notifies subscribers each time a frame arrives. It is safe for concurrent
// use: frames arrive on the network goroutine while the display and
// recorders read from others.
type Surface struct {
	mu      sync.Mutex
	frame   *image.RGBA
	cursor  image.Point
	visible bool

	nextID int
	subs   map[int]func(ts time.Duration)
}

// New creates an empty Surface.
func New() *Surface {
	return &Surface{subs: make(map[int]func(ts time.Duration))}
}

// Publish replaces the current frame and notifies sync subscribers with the
// frame's session timestamp. img must not be modified afterwards.
func (s *Surface) Publish(img *image.RGBA, ts time.Duration) {
	s.mu.Lock()
	s.frame = img
	subs := make([]func(time.Duration), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ts)
	}
}

// Latest returns the current frame for drawing. Callers must not modify it.
func (s *Surface) Latest() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Size returns the current frame dimensions, or zero when empty.
func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return 0, 0
	}
	return s.frame.Bounds().Dx(), s.frame.Bounds().Dy()
}

// SetCursor moves the cursor, in remote screen coordinates.
func (s *Surface) SetCursor(p image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = p
	s.visible = true
}

// HideCursor stops drawing the cursor into snapshots. The last position is
// kept.
func (s *Surface) HideCursor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = false
}

// CursorPosition returns the last cursor position.
func (s *Surface) CursorPosition() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// OnSync subscribes fn to frame arrivals.
func (s *Surface) OnSync(fn func(ts time.Duration)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Snapshot copies the current frame with the cursor drawn on top. It
// returns nil until the first frame is published.
func (s *Surface) Snapshot() image.Image {
	s.mu.Lock()
	frame := s.frame
	cursor, visible := s.cursor, s.visible
	s.mu.Unlock()

	if frame == nil {
		return nil
	}

	b := frame.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(out, image.Point{}, frame, b, draw.Src, nil)

	if visible {
		drawCursor(out, cursor.Sub(b.Min))
	}
	return out
}

// Arrow pointer, 1 = outline, 2 = fill.
var arrow = [...]string{
	"1",
	"11",
	"121",
	"1221",
	"12221",
	"122221",
	"1222221",
	"12222221",
	"122222221",
	"1222222221",
	"12222211111",
	"1221221",
	"121 1221",
	"11  1221",
	"1    1221",
	"     1221",
	"      11",
}

var (
	cursorOutline = color.RGBA{A: 0xff}
	cursorFill    = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

func drawCursor(img *image.RGBA, at image.Point) {
	if !at.In(img.Rect) {
		return
	}
	for dy, row := range arrow {
		for dx, c := range row {
			p := at.Add(image.Pt(dx, dy))
			if !p.In(img.Rect) {
				continue
			}
			switch c {
			case '1':
				img.SetRGBA(p.X, p.Y, cursorOutline)
			case '2':
				img.SetRGBA(p.X, p.Y, cursorFill)
			}
		}
	}
}
