package display

// Display renders frames and captures user input.
type Display interface {
	Run() error
}

// InputCallback is called when the user generates an input event.
type InputCallback func(eventJSON []byte)

// RecordControls hooks the display's recording hotkeys up to a recorder.
// Any field may be nil.
type RecordControls struct {
	Toggle     func()
	Screenshot func()
	Recording  func() bool
}
