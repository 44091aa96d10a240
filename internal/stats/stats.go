package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/saviobatista/groundstation/internal/types"
)

// Stats tracks telemetry ingest and command dispatch statistics
type Stats struct {
	// Frame counts
	FramesApplied uint64
	FramesDropped uint64
	FramesIgnored uint64

	// Per-event counts, indexed like types.EventNames
	EventCounts [5]uint64

	// Command outcomes
	CommandsDispatched   uint64
	CommandsSucceeded    uint64
	CommandsFailed       uint64
	CommandsBusy         uint64
	CommandsNotPermitted uint64

	LinkLosses         uint64
	WaypointsCompleted uint64

	// Timing
	LastFrameTime time.Time
	Started       time.Time

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	return &Stats{
		Started: time.Now(),
	}
}

// IncrementApplied counts a frame that updated session state
func (s *Stats) IncrementApplied(event types.EventName) {
	atomic.AddUint64(&s.FramesApplied, 1)
	for i, e := range types.EventNames {
		if e == event {
			atomic.AddUint64(&s.EventCounts[i], 1)
			break
		}
	}
	s.mu.Lock()
	s.LastFrameTime = time.Now()
	s.mu.Unlock()
}

// IncrementDropped counts a malformed frame
func (s *Stats) IncrementDropped() {
	atomic.AddUint64(&s.FramesDropped, 1)
}

// IncrementIgnored counts a frame for an event nobody consumes
func (s *Stats) IncrementIgnored() {
	atomic.AddUint64(&s.FramesIgnored, 1)
}

// IncrementDispatched counts a command that reached the network
func (s *Stats) IncrementDispatched() {
	atomic.AddUint64(&s.CommandsDispatched, 1)
}

// IncrementSucceeded counts a command answered with a success status
func (s *Stats) IncrementSucceeded() {
	atomic.AddUint64(&s.CommandsSucceeded, 1)
}

// IncrementFailed counts a rejected or failed command
func (s *Stats) IncrementFailed() {
	atomic.AddUint64(&s.CommandsFailed, 1)
}

// IncrementBusy counts a dispatch refused because another was in flight
func (s *Stats) IncrementBusy() {
	atomic.AddUint64(&s.CommandsBusy, 1)
}

// IncrementNotPermitted counts a dispatch refused by the capability matrix
func (s *Stats) IncrementNotPermitted() {
	atomic.AddUint64(&s.CommandsNotPermitted, 1)
}

// IncrementLinkLosses counts an unexpected telemetry disconnect
func (s *Stats) IncrementLinkLosses() {
	atomic.AddUint64(&s.LinkLosses, 1)
}

// IncrementWaypointsCompleted counts a waypoint transition to completed
func (s *Stats) IncrementWaypointsCompleted() {
	atomic.AddUint64(&s.WaypointsCompleted, 1)
}

// GetStats returns a copy of the current statistics
func (s *Stats) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make(map[string]uint64, len(types.EventNames))
	for i, e := range types.EventNames {
		events[string(e)] = atomic.LoadUint64(&s.EventCounts[i])
	}

	return map[string]interface{}{
		"frames_applied":         atomic.LoadUint64(&s.FramesApplied),
		"frames_dropped":         atomic.LoadUint64(&s.FramesDropped),
		"frames_ignored":         atomic.LoadUint64(&s.FramesIgnored),
		"events":                 events,
		"commands_dispatched":    atomic.LoadUint64(&s.CommandsDispatched),
		"commands_succeeded":     atomic.LoadUint64(&s.CommandsSucceeded),
		"commands_failed":        atomic.LoadUint64(&s.CommandsFailed),
		"commands_busy":          atomic.LoadUint64(&s.CommandsBusy),
		"commands_not_permitted": atomic.LoadUint64(&s.CommandsNotPermitted),
		"link_losses":            atomic.LoadUint64(&s.LinkLosses),
		"waypoints_completed":    atomic.LoadUint64(&s.WaypointsCompleted),
		"last_frame_time":        s.LastFrameTime,
		"uptime":                 time.Since(s.Started),
	}
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	s.mu.RLock()
	last := s.LastFrameTime
	s.mu.RUnlock()

	lastFrame := "never"
	if !last.IsZero() {
		lastFrame = humanize.Time(last)
	}

	count := func(p *uint64) string {
		return humanize.Comma(int64(atomic.LoadUint64(p)))
	}

	return fmt.Sprintf(
		"Frames Applied: %s\n"+
			"Frames Dropped: %s\n"+
			"Frames Ignored: %s\n"+
			"Commands Dispatched: %s\n"+
			"Commands Succeeded: %s\n"+
			"Commands Failed: %s\n"+
			"Commands Busy: %s\n"+
			"Commands Not Permitted: %s\n"+
			"Link Losses: %s\n"+
			"Waypoints Completed: %s\n"+
			"Last Frame: %s\n"+
			"Uptime: %s",
		count(&s.FramesApplied),
		count(&s.FramesDropped),
		count(&s.FramesIgnored),
		count(&s.CommandsDispatched),
		count(&s.CommandsSucceeded),
		count(&s.CommandsFailed),
		count(&s.CommandsBusy),
		count(&s.CommandsNotPermitted),
		count(&s.LinkLosses),
		count(&s.WaypointsCompleted),
		lastFrame,
		time.Since(s.Started).Round(time.Second),
	)
}

// LogValue lets a Stats be logged as a structured group
func (s *Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("frames_applied", atomic.LoadUint64(&s.FramesApplied)),
		slog.Uint64("frames_dropped", atomic.LoadUint64(&s.FramesDropped)),
		slog.Uint64("frames_ignored", atomic.LoadUint64(&s.FramesIgnored)),
		slog.Uint64("commands_dispatched", atomic.LoadUint64(&s.CommandsDispatched)),
		slog.Uint64("commands_succeeded", atomic.LoadUint64(&s.CommandsSucceeded)),
		slog.Uint64("commands_failed", atomic.LoadUint64(&s.CommandsFailed)),
		slog.Uint64("commands_busy", atomic.LoadUint64(&s.CommandsBusy)),
		slog.Uint64("commands_not_permitted", atomic.LoadUint64(&s.CommandsNotPermitted)),
		slog.Uint64("link_losses", atomic.LoadUint64(&s.LinkLosses)),
		slog.Uint64("waypoints_completed", atomic.LoadUint64(&s.WaypointsCompleted)),
	)
}

// StartReporting logs the statistics every interval until ctx is done
func (s *Stats) StartReporting(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final report before shutdown
			logger.Info("final statistics", slog.Any("stats", s))
			return
		case <-ticker.C:
			logger.Info("statistics", slog.Any("stats", s))
		}
	}
}
