// Package camera defines the contract the frame-flow core expects from a
// camera producer, and a deterministic synthetic implementation for tests
// and hardware-free operation.
//
// spec.md §1 places the real camera driver layer out of scope, treating it
// as an external collaborator reachable only through this interface — the
// shape mirrors modules/stream-capture's StreamProvider contract
// (doc.go/provider.go): Start returns a channel that stays open until
// Stop, Stats is a thread-safe snapshot, Stop is idempotent.
package camera

import (
	"context"

	"github.com/doorcam/doorcamd/internal/frame"
)

// Stats mirrors streamcapture.StreamStats's intent (spec.md treats the
// camera itself as out of scope, but the orchestrator still needs basic
// telemetry to drive recovery decisions).
type Stats struct {
	FramesProduced uint64
	Reconnects     uint32
	Connected      bool
}

// Producer is the contract a camera driver must satisfy. Implementations
// must guarantee Start returns immediately and that the returned channel
// is closed only after Stop completes.
type Producer interface {
	// Start begins producing frames onto the returned channel. Frame.ID
	// must be strictly increasing and Frame.Timestamp monotonically
	// non-decreasing across the lifetime of one Producer (spec.md §3).
	Start(ctx context.Context) (<-chan *frame.Frame, error)

	// Stop idempotently shuts the producer down.
	Stop() error

	// Stats returns a thread-safe snapshot.
	Stats() Stats
}

// Config parameterizes a Producer (spec.md §6 "camera" config group).
type Config struct {
	Index      uint32
	Width      int
	Height     int
	MaxFPS     uint32
	Format     frame.PixelFormat
	Rotation   int // 0, 90, 180, 270
}
