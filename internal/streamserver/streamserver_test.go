package streamserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/doorcam/doorcamd/internal/frame"
	"github.com/doorcam/doorcamd/internal/ring"
)

func pushFrame(r *ring.Ring, id uint64) {
	r.Push(&frame.Frame{
		ID:        id,
		Timestamp: time.Now(),
		Width:     4,
		Height:    4,
		Format:    frame.RGB24,
		Payload:   make([]byte, 4*4*3),
	})
}

func TestHealthReportsOKBeforeFirstFrame(t *testing.T) {
	r := ring.New(8)
	s := New(Config{Addr: ":0"}, r, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 liveness even with no frames yet, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"has_frame":true`) {
		t.Fatalf("expected has_frame:false before any frame, got %s", rec.Body.String())
	}
}

func TestHealthReportsOKAfterFrame(t *testing.T) {
	r := ring.New(8)
	pushFrame(r, 1)
	s := New(Config{Addr: ":0"}, r, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after a frame, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"has_frame":true`) {
		t.Fatalf("expected has_frame:true after a frame, got %s", rec.Body.String())
	}
}

func TestIndexServesImageTag(t *testing.T) {
	r := ring.New(8)
	s := New(Config{Addr: ":0"}, r, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.handleIndex(rec, req)

	if !strings.Contains(rec.Body.String(), "/stream.mjpg") {
		t.Fatalf("expected index page to reference /stream.mjpg, got %q", rec.Body.String())
	}
}

func TestStreamEmitsMultipartBoundary(t *testing.T) {
	r := ring.New(8)
	pushFrame(r, 1)
	s := New(Config{Addr: ":0", TargetFPS: 100, JPEGQuality: 50}, r, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/stream.mjpg", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.handleStream(rec, req)
		close(done)
	}()

	<-ctx.Done()
	<-done

	ct := rec.Header().Get("Content-Type")
	if !strings.Contains(ct, "multipart/x-mixed-replace") {
		t.Fatalf("expected multipart content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "--"+boundary) {
		t.Fatalf("expected body to contain boundary markers")
	}
	if !strings.Contains(rec.Body.String(), "Content-Type: image/jpeg") {
		t.Fatalf("expected a jpeg part header in stream body")
	}
}

func TestStreamSkipsUnchangedFrames(t *testing.T) {
	r := ring.New(8)
	pushFrame(r, 1)
	s := New(Config{Addr: ":0", TargetFPS: 200}, r, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream.mjpg", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleStream(rec, req)

	served := s.served.Load()
	if served > 1 {
		t.Fatalf("expected at most one frame served when the ring never advances, got %d", served)
	}
}
