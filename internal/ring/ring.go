// Package ring implements the frame-flow core's fixed-capacity circular
// frame store: one writer (the camera producer), many independent
// readers (analyzer, stream server, display controller, capture engine).
//
// Design (mirrors the single-pointer-write discipline in
// modules/framesupplier/internal/frame.go's immutability contract, adapted
// from a mailbox to an indexed ring):
//   - Each slot holds an atomic.Pointer[frame.Frame]. A push is a single
//     pointer store, so a reader never observes a torn frame.
//   - write_index is a separate atomic counter, bumped after the slot
//     store. Go's atomic operations are sequentially consistent, so any
//     reader that observes a new write_index value is guaranteed to also
//     observe the slot store that preceded it.
//   - Overwrite is unconditional: Push never blocks and never fails.
//
// Contract: the caller (camera producer) pushes exactly one Frame per
// captured frame, in strictly increasing Frame.ID order, and never mutates
// a Frame's Payload after handing it to Push. The ring trusts this
// contract rather than re-validating it at runtime, the same tradeoff
// framesupplier documents for its own immutability contract (ADR-002).
package ring

import (
	"sync/atomic"
	"time"

	"github.com/doorcam/doorcamd/internal/frame"
)

// Stats is a snapshot of ring buffer operational counters.
type Stats struct {
	Pushed      uint64
	Overruns    uint64
	LatestReads uint64
	Capacity    int
}

// Ring is a fixed-capacity, lock-free circular store of *frame.Frame.
type Ring struct {
	slots      []atomic.Pointer[frame.Frame]
	writeIndex atomic.Uint64
	capacity   int

	pushed      atomic.Uint64
	overruns    atomic.Uint64
	latestReads atomic.Uint64
}

// New creates a ring with the given capacity. Capacity must be > 0; it is
// typically chosen as ceil(fps * (preroll_seconds + slack)), slack >= 1s,
// per spec.md §4.1.
func New(capacity int) *Ring {
	if capacity <= 0 {
		panic("ring: capacity must be > 0")
	}
	return &Ring{
		slots:    make([]atomic.Pointer[frame.Frame], capacity),
		capacity: capacity,
	}
}

// Capacity returns the fixed slot count.
func (r *Ring) Capacity() int { return r.capacity }

// Push stores f at the current write position and advances write_index.
// O(1), non-blocking, never fails. Overwrites whatever was previously in
// that slot.
func (r *Ring) Push(f *frame.Frame) {
	idx := r.writeIndex.Load()
	slot := int(idx % uint64(r.capacity))

	if r.slots[slot].Load() != nil {
		r.overruns.Add(1)
	}
	r.slots[slot].Store(f)
	r.writeIndex.Add(1)
	r.pushed.Add(1)
}

// Latest returns the most recently pushed frame, or nil if nothing has
// been pushed yet. May race with an in-flight Push; the returned frame is
// either the new one or the previous one, never torn (I3).
func (r *Ring) Latest() *frame.Frame {
	idx := r.writeIndex.Load()
	if idx == 0 {
		return nil
	}
	slot := int((idx - 1) % uint64(r.capacity))
	f := r.slots[slot].Load()
	if f != nil {
		r.latestReads.Add(1)
	}
	return f
}

// Preroll scans backward at most Capacity slots from the current write
// position and returns frames with Timestamp >= now-d, stopping at the
// first frame older than the cutoff (frames are chronological walking
// backward, so the first too-old frame ends the scan). Returned frames
// are in strictly increasing ID order, contain no duplicates, and never
// include a frame with ID >= the write index observed at call time (I6).
func (r *Ring) Preroll(d time.Duration) []*frame.Frame {
	now := time.Now()
	cutoff := now.Add(-d)

	wIdx := r.writeIndex.Load()
	if wIdx == 0 {
		return nil
	}

	scan := r.capacity
	if uint64(scan) > wIdx {
		scan = int(wIdx)
	}

	out := make([]*frame.Frame, 0, scan)
	for i := 0; i < scan; i++ {
		pos := wIdx - 1 - uint64(i)
		slot := int(pos % uint64(r.capacity))
		f := r.slots[slot].Load()
		if f == nil {
			break
		}
		if f.ID >= wIdx {
			// Slot was overwritten by a concurrent push after we read
			// wIdx; skip rather than report a frame from the future.
			continue
		}
		if f.Timestamp.Before(cutoff) {
			break
		}
		out = append(out, f)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Stats returns a snapshot of operational counters.
func (r *Ring) Stats() Stats {
	return Stats{
		Pushed:      r.pushed.Load(),
		Overruns:    r.overruns.Load(),
		LatestReads: r.latestReads.Load(),
		Capacity:    r.capacity,
	}
}

// ByID scans the ring for a frame with the given id, returning nil if it
// is no longer resident (overwritten) or was never pushed. Used by the
// capture engine to fetch a specific FrameReady id from the ring rather
// than trusting whatever Latest() returns at the time.
func (r *Ring) ByID(id uint64) *frame.Frame {
	wIdx := r.writeIndex.Load()
	if wIdx == 0 || id >= wIdx {
		return nil
	}
	slot := int(id % uint64(r.capacity))
	f := r.slots[slot].Load()
	if f == nil || f.ID != id {
		return nil
	}
	return f
}
