// Package streamserver implements the MJPEG-over-HTTP stream spec.md
// §4.6 exposes: a multipart/x-mixed-replace response per client, each
// pulling the latest frame from the ring at the server's configured rate, plus
// a liveness endpoint.
//
// The net/http server shape (ServeMux, explicit timeouts, background
// ListenAndServe goroutine) is grounded on
// References/orion-prototipe/internal/core/health.go's StartHealthServer.
// The multipart boundary writing follows the standard idiom used by
// other_examples/brianolson-raspi-mjpeg-server (a JPEG blob source pushed
// into per-client multipart writers); this repo pulls frames rather than
// pushing blobs, since the ring buffer is the shared source of truth.
package streamserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/doorcam/doorcamd/internal/frame"
	"github.com/doorcam/doorcamd/internal/ring"
)

const boundary = "FRAME"

// Config parameterizes a Server (spec.md §6 "stream" config group).
type Config struct {
	Addr        string
	TargetFPS   int
	JPEGQuality int
}

// Server serves the live MJPEG stream and a liveness endpoint.
type Server struct {
	cfg  Config
	ring *ring.Ring
	log  *slog.Logger

	httpServer *http.Server
	clients    atomic.Int32
	served     atomic.Uint64
}

// New constructs a Server reading frames from r.
func New(cfg Config, r *ring.Ring, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 10
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 80
	}
	return &Server{cfg: cfg, ring: r, log: log}
}

// Start begins listening in a background goroutine. Call Stop (or cancel
// ctx) to shut down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream.mjpg", s.handleStream)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		IdleTimeout:  60 * time.Second,
		// WriteTimeout is intentionally unset: an MJPEG stream connection
		// is meant to stay open for as long as the client watches.
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("streamserver: listen %s: %w", s.cfg.Addr, err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("streamserver: shutdown error", "error", err)
		}
	}()

	go func() {
		s.log.Info("streamserver: listening", "addr", s.cfg.Addr)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("streamserver: serve failed", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Stats reports basic stream server telemetry.
type Stats struct {
	ActiveClients int32
	FramesServed  uint64
}

func (s *Server) Stats() Stats {
	return Stats{ActiveClients: s.clients.Load(), FramesServed: s.served.Load()}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!DOCTYPE html><html><body><img src="/stream.mjpg"></body></html>`)
}

// handleHealth reports liveness: spec.md §4.6/§6 say /health returns 200
// as long as the server is up and answering requests, regardless of
// whether a frame has arrived yet (that is a readiness concern, not
// liveness, and has no separate endpoint here).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","has_frame":%t,"active_clients":%d,"frames_served":%d}`,
		s.ring.Latest() != nil, s.clients.Load(), s.served.Load())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)

	s.clients.Add(1)
	defer s.clients.Add(-1)

	interval := time.Second / time.Duration(s.cfg.TargetFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastID uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			f := s.ring.Latest()
			if f == nil || f.ID == lastID {
				continue
			}
			lastID = f.ID

			jpeg, err := frame.EncodeJPEG(f, s.cfg.JPEGQuality)
			if err != nil {
				s.log.Warn("streamserver: encode failed", "error", err)
				continue
			}

			if err := writePart(w, jpeg); err != nil {
				return
			}
			flusher.Flush()
			s.served.Add(1)
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	_, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(jpeg))
	if err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err = w.Write([]byte("\r\n"))
	return err
}
