// Package session owns the state of one dashboard session: the telemetry
// channel, track, mission, health machine and command dispatcher. All
// mutation goes through the session lock; observers are notified after the
// lock is released.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saviobatista/groundstation/internal/command"
	"github.com/saviobatista/groundstation/internal/health"
	"github.com/saviobatista/groundstation/internal/logging"
	"github.com/saviobatista/groundstation/internal/mission"
	"github.com/saviobatista/groundstation/internal/parser"
	"github.com/saviobatista/groundstation/internal/stats"
	"github.com/saviobatista/groundstation/internal/telemetry"
	"github.com/saviobatista/groundstation/internal/track"
	"github.com/saviobatista/groundstation/internal/types"
)

// Observer receives session events. Calls happen on the goroutine that
// caused the change, outside the session lock, and must not block.
type Observer interface {
	// RecordApplied is called for every telemetry record that updated state
	RecordApplied(sessionID string, rec types.Record)
	// CommandFinished is called once per dispatch attempt
	CommandFinished(sessionID string, res types.CommandResult)
	// SnapshotChanged is called after every mutation
	SnapshotChanged(snap Snapshot)
}

// Config describes one session
type Config struct {
	TelemetryURL string
	CommandURL   string
	AuthToken    string
	// CommandTimeout bounds a single command round trip; zero means none.
	CommandTimeout time.Duration
	// CompletionRadius is the geofence radius in meters for automatic
	// waypoint completion. A negative radius disables it.
	CompletionRadius float64
	Waypoints        []types.Waypoint
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = logging.OrDiscard(l) }
}

// WithObserver adds an observer
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// WithStats records ingest and dispatch counters
func WithStats(st *stats.Stats) Option {
	return func(s *Session) { s.stats = st }
}

// WithHTTPClient overrides the client used for command requests
func WithHTTPClient(c command.HTTPDoer) Option {
	return func(s *Session) { s.httpClient = c }
}

// WithID fixes the session id instead of generating one
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session is an explicitly constructed dashboard session. Start opens the
// telemetry channel; Close releases it.
type Session struct {
	id         string
	cfg        Config
	logger     *slog.Logger
	observers  []Observer
	stats      *stats.Stats
	httpClient command.HTTPDoer

	channel    *telemetry.Channel
	dispatcher *command.Dispatcher

	mu          sync.Mutex
	version     uint64
	link        LinkStatus
	linkErr     string
	position    *types.Position
	attitude    *types.Attitude
	velocity    *types.Velocity
	battery     *types.Battery
	track       *track.Buffer
	mission     *mission.Tracker
	health      *health.Machine
	lastCommand *types.CommandResult
	video       string
	closed      bool

	closeOnce sync.Once
}

// New builds a session. Nothing is dialed until Start.
func New(cfg Config, opts ...Option) (*Session, error) {
	tracker, err := mission.New(cfg.Waypoints)
	if err != nil {
		return nil, fmt.Errorf("invalid mission: %w", err)
	}

	s := &Session{
		cfg:     cfg,
		logger:  logging.Discard(),
		link:    LinkIdle,
		track:   track.New(),
		mission: tracker,
		health:  health.NewMachine(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.New().String()
	}
	s.logger = s.logger.With(slog.String("session", s.id))

	chanOpts := []telemetry.Option{telemetry.WithLogger(s.logger)}
	cmdOpts := []command.Option{
		command.WithLogger(s.logger),
		command.WithSessionID(s.id),
	}
	if cfg.AuthToken != "" {
		h := http.Header{}
		h.Set("Authorization", "Bearer "+cfg.AuthToken)
		chanOpts = append(chanOpts, telemetry.WithHeader(h))
		cmdOpts = append(cmdOpts, command.WithAuthToken(cfg.AuthToken))
	}
	if s.httpClient != nil {
		cmdOpts = append(cmdOpts, command.WithHTTPClient(s.httpClient))
	}

	s.channel = telemetry.New(cfg.TelemetryURL, chanOpts...)
	s.dispatcher = command.New(cfg.CommandURL, s.State, cmdOpts...)

	s.channel.On(types.EventPosition, s.applyRecord)
	s.channel.On(types.EventAttitude, s.applyRecord)
	s.channel.On(types.EventVelocity, s.applyRecord)
	s.channel.On(types.EventBattery, s.applyRecord)
	s.channel.On(types.EventHealth, s.applyRecord)
	s.channel.OnConnect(s.connected)
	s.channel.OnDisconnect(s.disconnected)
	s.channel.OnError(s.frameError)

	return s, nil
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Start opens the telemetry channel. A failed connect leaves the session in
// the error link state; it is not retried. A closed session cannot be
// started and stays disconnected.
func (s *Session) Start(ctx context.Context) error {
	if !s.mutateOpen(func() {
		s.link = LinkConnecting
		s.linkErr = ""
	}) {
		return telemetry.ErrClosed
	}

	if err := s.channel.Connect(ctx); err != nil {
		s.mutateOpen(func() {
			s.link = LinkError
			s.linkErr = err.Error()
		})
		return err
	}
	return nil
}

// Done is closed once the session has been closed
func (s *Session) Done() <-chan struct{} {
	return s.channel.Done()
}

// Close releases the telemetry connection and discards the flight path. It
// is idempotent and must not be called from an observer.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.channel.Disconnect()
		s.channel.Wait()
		s.mutate(func() {
			s.link = LinkDisconnected
			s.track.Reset()
		})
		s.logger.Info("session closed")
	})
}

// CommandInFlight reports whether a command is awaiting the vehicle's reply
func (s *Session) CommandInFlight() bool {
	return s.dispatcher.InFlight()
}

// Reset discards the flight path
func (s *Session) Reset() {
	s.mutate(func() { s.track.Reset() })
}

// State returns the current health state
func (s *Session) State() types.HealthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health.State()
}

// Snapshot returns a copy of the session state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// MarkCompleted flags a waypoint as completed. It returns mission.ErrNotFound
// for an unknown id; completing an already completed waypoint is a no-op.
func (s *Session) MarkCompleted(id int) (changed bool, err error) {
	s.mu.Lock()
	changed, err = s.mission.MarkCompleted(id)
	if err != nil || !changed {
		s.mu.Unlock()
		return changed, err
	}
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.stats != nil {
		s.stats.IncrementWaypointsCompleted()
	}
	s.logger.Info("waypoint completed", slog.Int("waypoint", id), slog.String("source", "operator"))
	s.notifySnapshot(snap)
	return true, nil
}

// SetVideoStatus updates the video status label
func (s *Session) SetVideoStatus(label string) {
	s.mu.Lock()
	if s.video == label {
		s.mu.Unlock()
		return
	}
	s.video = label
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notifySnapshot(snap)
}

// Dispatch sends a command through the session's dispatcher. The session
// lock is not held during the network call, so telemetry keeps flowing.
// The result is also recorded as the last command status.
func (s *Session) Dispatch(ctx context.Context, kind types.CommandKind) (types.CommandResult, error) {
	if s.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CommandTimeout)
		defer cancel()
	}

	res, err := s.dispatcher.Dispatch(ctx, kind)
	s.countCommand(err)

	s.mu.Lock()
	last := res
	s.lastCommand = &last
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	for _, o := range s.observers {
		o.CommandFinished(s.id, res)
	}
	s.notifySnapshot(snap)
	return res, err
}

func (s *Session) countCommand(err error) {
	if s.stats == nil {
		return
	}
	switch {
	case errors.Is(err, command.ErrBusy):
		s.stats.IncrementBusy()
	case errors.Is(err, command.ErrNotPermitted):
		s.stats.IncrementNotPermitted()
	case err != nil:
		s.stats.IncrementDispatched()
		s.stats.IncrementFailed()
	default:
		s.stats.IncrementDispatched()
		s.stats.IncrementSucceeded()
	}
}

// applyRecord runs on the channel's read goroutine, one record at a time
func (s *Session) applyRecord(rec types.Record) {
	var reached *types.Waypoint

	s.mu.Lock()
	switch r := rec.(type) {
	case types.Position:
		s.position = &r
		if s.track.Record(types.TrackPoint{Lat: r.Lat, Lon: r.Lon}) && s.cfg.CompletionRadius >= 0 {
			if wp, ok := s.mission.Observe(r.Lat, r.Lon, s.cfg.CompletionRadius); ok {
				reached = &wp
			}
		}
	case types.Attitude:
		s.attitude = &r
	case types.Velocity:
		s.velocity = &r
	case types.Battery:
		s.battery = &r
	case types.Health:
		prev := s.health.State()
		if s.health.Apply(r) {
			s.logger.Info("health changed", slog.String("from", string(prev)), slog.String("to", string(r.State)))
			if health.IsFault(r.State) {
				s.logger.Warn("vehicle reported fault", slog.String("state", string(r.State)))
			}
		}
	}
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.stats != nil {
		s.stats.IncrementApplied(rec.Event())
		if reached != nil {
			s.stats.IncrementWaypointsCompleted()
		}
	}
	if reached != nil {
		s.logger.Info("waypoint completed", slog.Int("waypoint", reached.ID), slog.String("source", "geofence"))
	}
	for _, o := range s.observers {
		o.RecordApplied(s.id, rec)
	}
	s.notifySnapshot(snap)
}

func (s *Session) connected() {
	s.mutate(func() {
		s.link = LinkConnected
		s.linkErr = ""
	})
}

// disconnected keeps the last telemetry values so the display freezes
func (s *Session) disconnected(err error) {
	if err != nil && s.stats != nil {
		s.stats.IncrementLinkLosses()
	}
	s.mutate(func() {
		if err != nil {
			s.link = LinkError
			s.linkErr = err.Error()
			return
		}
		s.link = LinkDisconnected
	})
}

func (s *Session) frameError(err error) {
	if s.stats == nil {
		return
	}
	if errors.Is(err, parser.ErrUnknownEvent) {
		s.stats.IncrementIgnored()
		return
	}
	s.stats.IncrementDropped()
}

// mutate applies f under the lock and notifies snapshot observers
func (s *Session) mutate(f func()) {
	s.mu.Lock()
	f()
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notifySnapshot(snap)
}

// mutateOpen is mutate for a session that has not been closed. It reports
// whether f ran.
func (s *Session) mutateOpen(f func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	f()
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notifySnapshot(snap)
	return true
}

func (s *Session) notifySnapshot(snap Snapshot) {
	for _, o := range s.observers {
		o.SnapshotChanged(snap)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:    s.id,
		Version:      s.version,
		Taken:        time.Now(),
		Link:         s.link,
		LinkError:    s.linkErr,
		Position:     clone(s.position),
		Attitude:     clone(s.attitude),
		Velocity:     clone(s.velocity),
		Battery:      clone(s.battery),
		Health:       s.health.State(),
		Fault:        health.IsFault(s.health.State()),
		Capabilities: s.health.Capabilities(),
		Enabled:      s.health.Capabilities().Enabled(),
		Track:        s.track.Points(),
		Mission: MissionProgress{
			Waypoints: s.mission.Waypoints(),
			Completed: s.mission.CompletedCount(),
			Total:     s.mission.TotalCount(),
			Progress:  s.mission.Progress(),
		},
		Command: CommandStatus{
			InFlight: s.dispatcher.InFlight(),
			Last:     clone(s.lastCommand),
		},
		Video:   s.video,
		Display: display(s.position, s.attitude, s.battery),
	}
	if next, ok := s.mission.NextPending(); ok {
		snap.Mission.Next = &next
	}
	return snap
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
