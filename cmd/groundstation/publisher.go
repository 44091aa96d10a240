package main

import (
	"log/slog"

	"github.com/saviobatista/groundstation/internal/session"
	"github.com/saviobatista/groundstation/internal/types"
)

// Relay forwards session events to the message bus (interface for testability)
type Relay interface {
	PublishRecord(sessionID string, rec types.Record) error
	PublishCommandResult(res types.CommandResult) error
}

// SnapshotSink receives the latest snapshot of a session without blocking
type SnapshotSink interface {
	Offer(sessionID string, snapshot interface{})
}

// publisher fans session events out to the bus, the snapshot mirror and
// the stream hub. Any of relay and mirror may be nil.
type publisher struct {
	relay  Relay
	mirror SnapshotSink
	hub    *Hub
	logger *slog.Logger
}

func (p *publisher) RecordApplied(sessionID string, rec types.Record) {
	if p.relay == nil {
		return
	}
	if err := p.relay.PublishRecord(sessionID, rec); err != nil {
		p.logger.Warn("failed to relay record",
			slog.String("event", string(rec.Event())),
			slog.Any("error", err))
	}
}

func (p *publisher) CommandFinished(sessionID string, res types.CommandResult) {
	if p.relay != nil {
		if err := p.relay.PublishCommandResult(res); err != nil {
			p.logger.Warn("failed to relay command result", slog.Any("error", err))
		}
	}
	if p.hub != nil {
		p.hub.Publish("command", res)
	}
}

func (p *publisher) SnapshotChanged(snap session.Snapshot) {
	if p.mirror != nil {
		p.mirror.Offer(snap.SessionID, snap)
	}
	if p.hub != nil {
		p.hub.Publish(snapshotEvent, snap)
	}
}
