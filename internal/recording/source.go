package recording

import (
	"image"
	"time"
)

// Source is the display being recorded.
type Source interface {
	// Snapshot returns a private copy of the currently rendered frame, or nil
	// when nothing has been rendered yet.
	Snapshot() image.Image

	// OnSync registers fn to be called each time the remote session delivers
	// a frame. ts is the frame's timestamp on the session clock. The returned
	// function removes the registration.
	OnSync(fn func(ts time.Duration)) (cancel func())

	// CursorPosition returns the cursor in remote screen coordinates.
	CursorPosition() image.Point
}
