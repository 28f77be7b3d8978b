package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// defaultCleanupInterval is used when Config.CleanupInterval is unset.
// maxCleanupInterval bounds the exponential backoff the janitor applies
// after consecutive failures, mirroring storage.rs's
// start_cleanup_scheduler.
const (
	defaultCleanupInterval = time.Hour
	maxCleanupInterval     = 24 * time.Hour
	initialCleanupDelay    = time.Minute
)

// CleanupResult reports the outcome of one janitor pass.
type CleanupResult struct {
	EventsDeleted int
	BytesFreed    int64
	Errors        []string
}

// RunJanitor blocks until ctx is cancelled, periodically invoking Cleanup
// at an interval that grows after consecutive failures and resets on
// success.
func (s *Store) RunJanitor(ctx context.Context) {
	if !s.cfg.TrimOld {
		s.log.Info("storage: janitor disabled (trim_old=false)")
		return
	}

	select {
	case <-time.After(initialCleanupDelay):
	case <-ctx.Done():
		return
	}

	base := s.cfg.CleanupInterval
	if base <= 0 {
		base = defaultCleanupInterval
	}

	interval := base
	var failures int

	for {
		result, err := s.Cleanup()
		if err != nil {
			failures++
			s.log.Error("storage: cleanup failed", "attempt", failures, "error", err)
			if failures <= 5 {
				interval = min(interval*2, maxCleanupInterval)
			}
		} else {
			failures = 0
			interval = base
			s.log.Info("storage: cleanup complete", "events_deleted", result.EventsDeleted, "bytes_freed", result.BytesFreed)
			if len(result.Errors) > 0 {
				s.log.Warn("storage: cleanup had errors", "count", len(result.Errors))
			}
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}
	}
}

// Cleanup deletes every registered event older than RetentionPeriod,
// returning what it deleted. Safe to call directly (e.g. from an admin
// endpoint) outside the janitor's own schedule.
func (s *Store) Cleanup() (CleanupResult, error) {
	cutoff := time.Now().Add(-s.cfg.RetentionPeriod)

	s.mu.RLock()
	var toDelete []EventMetadata
	for _, m := range s.events {
		if m.Timestamp.Before(cutoff) {
			toDelete = append(toDelete, m)
		}
	}
	s.mu.RUnlock()

	result := CleanupResult{}
	for _, m := range toDelete {
		freed, err := s.deleteEvent(m, cutoff)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.EventsDeleted++
		result.BytesFreed += freed
	}

	s.mu.Lock()
	s.lastCleanup = time.Now()
	s.mu.Unlock()

	return result, nil
}

// minimumAge is a second, policy-independent floor: an event younger
// than this is never deleted even if a misconfigured retention_seconds
// would otherwise allow it.
const minimumAge = time.Hour

func (s *Store) deleteEvent(m EventMetadata, cutoff time.Time) (int64, error) {
	if m.Timestamp.After(time.Now().Add(-minimumAge)) {
		return 0, fmt.Errorf("storage: refusing to delete event %s younger than minimum age floor", m.EventID)
	}
	if !m.Timestamp.Before(cutoff) {
		return 0, fmt.Errorf("storage: refusing to delete event %s newer than retention cutoff", m.EventID)
	}
	if err := validateDeletionSafety(s.cfg.EventDir, m.DirPath); err != nil {
		return 0, err
	}

	if _, err := os.Stat(m.DirPath); os.IsNotExist(err) {
		s.mu.Lock()
		delete(s.events, m.EventID)
		s.mu.Unlock()
		return 0, nil
	}

	_, size, err := dirStats(m.DirPath)
	if err != nil {
		return 0, err
	}

	if err := os.RemoveAll(m.DirPath); err != nil {
		return 0, fmt.Errorf("storage: delete %s: %w", m.DirPath, err)
	}

	s.mu.Lock()
	delete(s.events, m.EventID)
	s.mu.Unlock()

	return size, nil
}

// validateDeletionSafety enforces the layered checks storage.rs applies
// before any rm -rf: the target must sit directly inside root, must be a
// directory, and must be named like an event (never the root itself).
func validateDeletionSafety(root, target string) error {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return fmt.Errorf("storage: compute relative path: %w", err)
	}
	if rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("storage: refusing to delete %s: outside event root or is the root", target)
	}
	if strings.Contains(rel, string(filepath.Separator)) {
		return fmt.Errorf("storage: refusing to delete %s: not directly under event root", target)
	}
	if !isValidEventDirName(filepath.Base(target)) {
		return fmt.Errorf("storage: refusing to delete %s: does not match event directory naming", target)
	}
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("storage: stat %s: %w", target, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage: refusing to delete %s: not a directory", target)
	}
	return nil
}
