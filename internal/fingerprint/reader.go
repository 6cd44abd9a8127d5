package fingerprint

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nbenliogludev/softlight-agent/internal/browser"
)

// ErrSnapshotUnreadable is the soft failure after the bounded retry is
// exhausted (page mid-navigation, detached frame). Callers treat it as
// "no change detected", never as fatal.
var ErrSnapshotUnreadable = errors.New("fingerprint: snapshot unreadable")

const (
	readAttempts = 3
	readBackoff  = 250 * time.Millisecond
)

// SnapshotSource is the subset of the driver the reader needs.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*browser.PageSnapshot, error)
}

// Reader takes page snapshots with a fixed, bounded retry around
// transient read failures.
type Reader struct {
	log *zap.Logger
}

func NewReader(log *zap.Logger) *Reader {
	return &Reader{log: log}
}

// Read returns a fresh snapshot and its fingerprint. It retries up to
// readAttempts times with readBackoff between attempts, then reports
// ErrSnapshotUnreadable.
func (r *Reader) Read(ctx context.Context, src SnapshotSource) (*browser.PageSnapshot, Fingerprint, error) {
	var lastErr error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		snap, err := src.Snapshot(ctx)
		if err == nil {
			return snap, Compute(snap), nil
		}
		lastErr = err
		r.log.Debug("snapshot read failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < readAttempts {
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(readBackoff):
			}
		}
	}
	r.log.Warn("snapshot unreadable after retries", zap.Error(lastErr))
	return nil, "", ErrSnapshotUnreadable
}
