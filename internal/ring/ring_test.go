package ring

import (
	"sync"
	"testing"
	"time"

	"github.com/doorcam/doorcamd/internal/frame"
)

func mkFrame(id uint64, ts time.Time) *frame.Frame {
	return &frame.Frame{ID: id, Timestamp: ts, Format: frame.MJPEG, Payload: []byte("x")}
}

func TestLatestEmpty(t *testing.T) {
	r := New(4)
	if got := r.Latest(); got != nil {
		t.Fatalf("expected nil latest on empty ring, got %+v", got)
	}
}

func TestPushAndLatest(t *testing.T) {
	r := New(4)
	now := time.Now()
	for i := uint64(0); i < 4; i++ {
		r.Push(mkFrame(i, now.Add(time.Duration(i)*time.Millisecond)))
	}
	latest := r.Latest()
	if latest == nil || latest.ID != 3 {
		t.Fatalf("expected latest id 3, got %+v", latest)
	}
}

// TestWraparound mirrors original_source/src/ring_buffer.rs's
// test_buffer_wraparound: pushing beyond capacity overwrites oldest slots
// but Latest() still tracks the true last push (P2).
func TestWraparound(t *testing.T) {
	r := New(3)
	now := time.Now()
	for i := uint64(1); i <= 5; i++ {
		r.Push(mkFrame(i, now.Add(time.Duration(i)*time.Millisecond)))
	}
	latest := r.Latest()
	if latest == nil || latest.ID != 5 {
		t.Fatalf("expected latest id 5, got %+v", latest)
	}
	stats := r.Stats()
	if stats.Overruns == 0 {
		t.Fatalf("expected overruns > 0 after wraparound, got %d", stats.Overruns)
	}
}

// TestPrerollCorrectness mirrors spec.md §8 Scenario 1: capacity 30, push
// 30 frames at 10fps (100ms apart), preroll(2s) returns the 20 frames with
// ts in [t0+1s, t0+2.9s], in increasing id order. t0 is set 50ms less than
// 3s in the past so that frame 10 stays inside the window even though
// Preroll reads the clock a little after this test does.
func TestPrerollCorrectness(t *testing.T) {
	r := New(30)
	t0 := time.Now().Add(-3*time.Second + 50*time.Millisecond)
	for i := uint64(0); i < 30; i++ {
		ts := t0.Add(time.Duration(i) * 100 * time.Millisecond)
		r.Push(mkFrame(i, ts))
	}

	got := r.Preroll(2 * time.Second)
	if len(got) != 20 {
		t.Fatalf("expected 20 preroll frames, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Fatalf("preroll frames not in strictly increasing id order at %d", i)
		}
	}
	if got[0].ID != 10 {
		t.Fatalf("expected first preroll frame id 10, got %d", got[0].ID)
	}
	if got[len(got)-1].ID != 29 {
		t.Fatalf("expected last preroll frame id 29, got %d", got[len(got)-1].ID)
	}
}

func TestPrerollEmptyRing(t *testing.T) {
	r := New(10)
	if got := r.Preroll(time.Second); len(got) != 0 {
		t.Fatalf("expected empty preroll on empty ring, got %d frames", len(got))
	}
}

func TestPrerollBoundedByCapacity(t *testing.T) {
	r := New(5)
	now := time.Now()
	for i := uint64(0); i < 5; i++ {
		r.Push(mkFrame(i, now.Add(-time.Hour))) // all "old" but within capacity scan
	}
	got := r.Preroll(24 * time.Hour)
	if len(got) > 5 {
		t.Fatalf("preroll must be bounded by capacity, got %d", len(got))
	}
}

func TestByID(t *testing.T) {
	r := New(4)
	now := time.Now()
	for i := uint64(0); i < 4; i++ {
		r.Push(mkFrame(i, now))
	}
	if f := r.ByID(2); f == nil || f.ID != 2 {
		t.Fatalf("expected frame id 2, got %+v", f)
	}
	r.Push(mkFrame(4, now)) // overwrites slot 0 (id 0)
	if f := r.ByID(0); f != nil {
		t.Fatalf("expected overwritten frame id 0 to be unreachable, got %+v", f)
	}
	if f := r.ByID(99); f != nil {
		t.Fatalf("expected nil for never-pushed id, got %+v", f)
	}
}

// TestConcurrentPushAndRead exercises the lock-free single-writer,
// many-reader discipline: no panics, no torn reads, write_index advances
// monotonically (spec.md §8 Scenario 5's spirit, without the HTTP layer).
func TestConcurrentPushAndRead(t *testing.T) {
	r := New(64)
	now := time.Now()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(0); i < 2000; i++ {
			r.Push(mkFrame(i, now.Add(time.Duration(i)*time.Millisecond)))
		}
		close(stop)
	}()

	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					r.Latest()
					r.Preroll(10 * time.Millisecond)
				}
			}
		}()
	}

	wg.Wait()
	latest := r.Latest()
	if latest == nil || latest.ID != 1999 {
		t.Fatalf("expected final latest id 1999, got %+v", latest)
	}
}
