package recording

import "errors"

const PermissionMessage = "Failed to access microphone. Please check permissions."

// ErrBusy is returned by Start when a recording is already in progress or
// its payload has not been handed off yet.
var ErrBusy = errors.New("recording: session busy")

// PermissionError reports that the microphone could not be acquired.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return "microphone unavailable: " + e.Err.Error()
}

func (e *PermissionError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user for this failure.
func (e *PermissionError) UserMessage() string { return PermissionMessage }
