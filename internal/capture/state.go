package capture

import (
	"errors"
	"fmt"
)

// State is a phase of the capture workflow.
type State int

const (
	StateIdle State = iota
	StateAwaitingConsent
	StateUploading
	StatePolling
	StateDisplayed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConsent:
		return "awaiting_consent"
	case StateUploading:
		return "uploading"
	case StatePolling:
		return "polling"
	case StateDisplayed:
		return "displayed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets snapshots carry the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Busy reports whether a capture cycle is in flight.
func (s State) Busy() bool {
	return s == StateUploading || s == StatePolling
}

// Event is a user action fed to Client.Dispatch.
type Event int

const (
	EventCapture Event = iota
	EventConsent
	EventRefuse
	EventCancel
)

func (e Event) String() string {
	switch e {
	case EventCapture:
		return "capture"
	case EventConsent:
		return "consent"
	case EventRefuse:
		return "refuse"
	case EventCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// ParseEvent maps the names used by the kiosk views to events.
func ParseEvent(name string) (Event, error) {
	switch name {
	case "capture":
		return EventCapture, nil
	case "consent":
		return EventConsent, nil
	case "refuse":
		return EventRefuse, nil
	case "cancel":
		return EventCancel, nil
	default:
		return 0, ErrUnknownEvent
	}
}

var (
	ErrInvalidTransition = errors.New("event not allowed in current state")
	ErrBusy              = errors.New("a capture is already in progress")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrCancelled         = errors.New("processing cancelled")
)

// User-facing messages.
const (
	MsgCameraError   = "Could not access the camera. Please check the device permissions."
	MsgUploadError   = "Failed to upload image."
	MsgWaiting       = "Image uploaded. Waiting for processing..."
	MsgWaitingPrompt = "Image uploaded. Chosen prompt: %s. Waiting for processing..."
	MsgDone          = "Here is your processed image!"
	MsgCancelled     = "Processing cancelled."
)
