package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/saviobatista/groundstation/internal/logging"
)

const writeTimeout = 2 * time.Second

// SnapshotStore is the subset of Client used by Mirror
type SnapshotStore interface {
	StoreSnapshot(ctx context.Context, sessionID string, snapshot interface{}, ttl time.Duration) error
	DeleteSnapshot(ctx context.Context, sessionID string) error
}

// Mirror writes the latest offered snapshot to Redis from its own goroutine.
// Offers that arrive while a write is in progress are coalesced; only the
// newest is written. When the session changes, the previous session's
// snapshot is deleted.
type Mirror struct {
	store  SnapshotStore
	ttl    time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	sessionID string
	pending   interface{}
	dirty     bool
	wake      chan struct{}

	// written is only touched by Run
	written string
}

// NewMirror creates a mirror; a nil logger discards output
func NewMirror(store SnapshotStore, ttl time.Duration, logger *slog.Logger) *Mirror {
	logger = logging.OrDiscard(logger)
	return &Mirror{
		store:  store,
		ttl:    ttl,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Offer queues a snapshot for writing. It never blocks.
func (m *Mirror) Offer(sessionID string, snapshot interface{}) {
	m.mu.Lock()
	m.sessionID = sessionID
	m.pending = snapshot
	m.dirty = true
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run writes offered snapshots until ctx is done, then flushes the last one.
// Each write gets its own timeout so a write in progress at shutdown still
// completes.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.flush()
			return
		case <-m.wake:
			m.flush()
		}
	}
}

func (m *Mirror) flush() {
	m.mu.Lock()
	if !m.dirty {
		m.mu.Unlock()
		return
	}
	id, snap := m.sessionID, m.pending
	m.dirty = false
	m.pending = nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if m.written != "" && m.written != id {
		if err := m.store.DeleteSnapshot(ctx, m.written); err != nil {
			m.logger.Warn("failed to delete previous snapshot", slog.String("session", m.written), slog.Any("error", err))
		}
	}
	m.written = id
	if err := m.store.StoreSnapshot(ctx, id, snap, m.ttl); err != nil {
		m.logger.Warn("failed to mirror snapshot", slog.String("session", id), slog.Any("error", err))
	}
}
