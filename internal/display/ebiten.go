package display

import (
	"encoding/json"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/junsooki/airmac-recorder/internal/input"
	"github.com/junsooki/airmac-recorder/internal/surface"
)

// Recording hotkeys. They are handled locally and never sent to the host.
const (
	KeyToggleRecording = ebiten.KeyF9
	KeyScreenshot      = ebiten.KeyF8
)

// EbitenDisplay renders the remote screen using Ebitengine and captures input.
type EbitenDisplay struct {
	surf     *surface.Surface
	onInput  InputCallback
	controls RecordControls
	title    string
	done     <-chan struct{}

	ebitenImage *ebiten.Image

	prevMouseX int
	prevMouseY int
}

// NewEbitenDisplay creates an Ebitengine-based display drawing from surf.
func NewEbitenDisplay(surf *surface.Surface, title string, onInput InputCallback, controls RecordControls) *EbitenDisplay {
	return &EbitenDisplay{
		surf:     surf,
		onInput:  onInput,
		controls: controls,
		title:    title,
	}
}

// StopOn makes the game loop exit once done is closed.
func (d *EbitenDisplay) StopOn(done <-chan struct{}) {
	d.done = done
}

// Run starts the Ebitengine game loop. Must be called from the main goroutine.
func (d *EbitenDisplay) Run() error {
	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowTitle(d.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(d)
}

// --- ebiten.Game interface ---

func (d *EbitenDisplay) Update() error {
	select {
	case <-d.done:
		return ebiten.Termination
	default:
	}
	d.handleHotkeys()
	d.captureMouseInput()
	d.captureKeyboardInput()
	return nil
}

func (d *EbitenDisplay) Draw(screen *ebiten.Image) {
	frame := d.surf.Latest()
	if frame != nil {
		fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()
		if d.ebitenImage == nil ||
			d.ebitenImage.Bounds().Dx() != fw ||
			d.ebitenImage.Bounds().Dy() != fh {
			d.ebitenImage = ebiten.NewImage(fw, fh)
		}
		d.ebitenImage.WritePixels(frame.Pix)

		sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
		vp := input.FitViewport(float64(sw), float64(sh), float64(fw), float64(fh))

		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(vp.Scale, vp.Scale)
		op.GeoM.Translate(vp.OffsetX, vp.OffsetY)
		screen.DrawImage(d.ebitenImage, op)
	}

	if d.controls.Recording != nil && d.controls.Recording() {
		ebitenutil.DebugPrintAt(screen, "REC  [F9 stop]", 8, 8)
	}
}

func (d *EbitenDisplay) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

func (d *EbitenDisplay) handleHotkeys() {
	if inpututil.IsKeyJustPressed(KeyToggleRecording) && d.controls.Toggle != nil {
		d.controls.Toggle()
	}
	if inpututil.IsKeyJustPressed(KeyScreenshot) && d.controls.Screenshot != nil {
		d.controls.Screenshot()
	}
}

// --- Input capture ---

func (d *EbitenDisplay) captureMouseInput() {
	fw, fh := d.surf.Size()
	if fw == 0 || fh == 0 {
		return
	}

	mx, my := ebiten.CursorPosition()
	sw, sh := ebiten.WindowSize()
	vp := input.FitViewport(float64(sw), float64(sh), float64(fw), float64(fh))
	remoteX, remoteY, inside := vp.ToRemote(mx, my)

	if mx != d.prevMouseX || my != d.prevMouseY {
		d.prevMouseX = mx
		d.prevMouseY = my
		evt := input.InputEvent{Type: input.EventMouseMove, X: remoteX, Y: remoteY}
		if inside {
			d.surf.SetCursor(evt.Point())
		} else {
			d.surf.HideCursor()
		}
		d.sendInput(evt)
	}

	buttons := []struct {
		eb  ebiten.MouseButton
		btn input.MouseButton
	}{
		{ebiten.MouseButtonLeft, input.MouseButtonLeft},
		{ebiten.MouseButtonRight, input.MouseButtonRight},
		{ebiten.MouseButtonMiddle, input.MouseButtonMiddle},
	}
	for _, b := range buttons {
		if inpututil.IsMouseButtonJustPressed(b.eb) {
			d.sendInput(input.InputEvent{Type: input.EventMouseDown, X: remoteX, Y: remoteY, Button: b.btn})
		}
		if inpututil.IsMouseButtonJustReleased(b.eb) {
			d.sendInput(input.InputEvent{Type: input.EventMouseUp, X: remoteX, Y: remoteY, Button: b.btn})
		}
	}

	if scrollX, scrollY := ebiten.Wheel(); scrollX != 0 || scrollY != 0 {
		d.sendInput(input.InputEvent{Type: input.EventMouseScroll, ScrollDX: scrollX, ScrollDY: scrollY})
	}
}

func (d *EbitenDisplay) captureKeyboardInput() {
	for k := ebiten.Key(0); k <= ebiten.KeyMax; k++ {
		if k == KeyToggleRecording || k == KeyScreenshot {
			continue
		}
		if inpututil.IsKeyJustPressed(k) {
			d.sendInput(input.InputEvent{
				Type:      input.EventKeyDown,
				KeyCode:   macKeyCode(k),
				Modifiers: currentModifiers(),
			})
		}
		if inpututil.IsKeyJustReleased(k) {
			d.sendInput(input.InputEvent{
				Type:      input.EventKeyUp,
				KeyCode:   macKeyCode(k),
				Modifiers: currentModifiers(),
			})
		}
	}
}

func (d *EbitenDisplay) sendInput(e input.InputEvent) {
	if d.onInput == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	d.onInput(data)
}

func currentModifiers() uint8 {
	var m uint8
	if ebiten.IsKeyPressed(ebiten.KeyShift) {
		m |= input.ModShift
	}
	if ebiten.IsKeyPressed(ebiten.KeyControl) {
		m |= input.ModControl
	}
	if ebiten.IsKeyPressed(ebiten.KeyAlt) {
		m |= input.ModAlt
	}
	if ebiten.IsKeyPressed(ebiten.KeyMeta) {
		m |= input.ModMeta
	}
	return m
}
