package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags an Event's variant (spec.md §3 "Event").
type Kind int

const (
	FrameReady Kind = iota
	MotionDetected
	TouchDetected
	CaptureStarted
	CaptureCompleted
	ShutdownRequested
	ComponentError
)

func (k Kind) String() string {
	switch k {
	case FrameReady:
		return "FrameReady"
	case MotionDetected:
		return "MotionDetected"
	case TouchDetected:
		return "TouchDetected"
	case CaptureStarted:
		return "CaptureStarted"
	case CaptureCompleted:
		return "CaptureCompleted"
	case ShutdownRequested:
		return "ShutdownRequested"
	case ComponentError:
		return "ComponentError"
	default:
		return "Unknown"
	}
}

// Event is a small tagged value distributed on the bus. Only the fields
// relevant to Kind are populated; payloads (frame bytes) are never carried
// here — consumers fetch them from the ring by ID.
type Event struct {
	Kind      Kind
	Timestamp time.Time

	// FrameReady
	FrameID uint64

	// MotionDetected
	Area float64

	// CaptureStarted / CaptureCompleted
	EventID    string
	FrameCount int

	// ComponentError. TraceID is a fresh random id generated for each
	// published ComponentError, so one reported failure can be referred
	// to unambiguously in logs; two events never share a TraceID.
	Component string
	Message   string
	TraceID   uuid.UUID
}
