package input

import "image"

// EventType identifies the kind of input event.
type EventType string

const (
	EventMouseMove   EventType = "mouse_move"
	EventMouseDown   EventType = "mouse_down"
	EventMouseUp     EventType = "mouse_up"
	EventMouseScroll EventType = "mouse_scroll"
	EventKeyDown     EventType = "key_down"
	EventKeyUp       EventType = "key_up"
)

// MouseButton identifies a mouse button.
type MouseButton int

const (
	MouseButtonLeft   MouseButton = 0
	MouseButtonRight  MouseButton = 1
	MouseButtonMiddle MouseButton = 2
)

// Modifier bits carried in InputEvent.Modifiers.
const (
	ModShift uint8 = 1 << iota
	ModControl
	ModAlt
	ModMeta
)

// InputEvent is the wire format for input events sent over the data channel.
type InputEvent struct {
	Type      EventType   `json:"type"`
	X         float64     `json:"x,omitempty"`
	Y         float64     `json:"y,omitempty"`
	Button    MouseButton `json:"button,omitempty"`
	KeyCode   uint16      `json:"keyCode,omitempty"`
	Modifiers uint8       `json:"modifiers,omitempty"`
	ScrollDX  float64     `json:"scrollDX,omitempty"`
	ScrollDY  float64     `json:"scrollDY,omitempty"`
}

// Point returns the event position rounded to remote pixels.
func (e InputEvent) Point() image.Point {
	return image.Pt(int(e.X+0.5), int(e.Y+0.5))
}
