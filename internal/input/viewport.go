package input

import "math"

// Viewport describes where a remote frame is drawn inside the local window
// when scaled to fit with letterboxing.
type Viewport struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
	FrameW  float64
	FrameH  float64
}

// FitViewport computes the aspect-fit placement of a frameW x frameH frame in
// a viewW x viewH window.
func FitViewport(viewW, viewH, frameW, frameH float64) Viewport {
	v := Viewport{FrameW: frameW, FrameH: frameH}
	if frameW <= 0 || frameH <= 0 {
		return v
	}
	v.Scale = math.Min(viewW/frameW, viewH/frameH)
	v.OffsetX = (viewW - frameW*v.Scale) / 2
	v.OffsetY = (viewH - frameH*v.Scale) / 2
	return v
}

// ToRemote maps a window position to remote coordinates. inside is false
// when the position falls on the letterbox bars.
func (v Viewport) ToRemote(x, y int) (rx, ry float64, inside bool) {
	if v.Scale <= 0 {
		return 0, 0, false
	}
	rx = (float64(x) - v.OffsetX) / v.Scale
	ry = (float64(y) - v.OffsetY) / v.Scale
	inside = rx >= 0 && ry >= 0 && rx < v.FrameW && ry < v.FrameH
	return rx, ry, inside
}
