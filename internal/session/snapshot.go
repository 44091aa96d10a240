package session

import (
	"time"

	"github.com/saviobatista/groundstation/internal/health"
	"github.com/saviobatista/groundstation/internal/projection"
	"github.com/saviobatista/groundstation/internal/types"
)

// LinkStatus describes the telemetry connection as shown to the operator
type LinkStatus string

const (
	LinkIdle         LinkStatus = "idle"
	LinkConnecting   LinkStatus = "connecting"
	LinkConnected    LinkStatus = "connected"
	LinkDisconnected LinkStatus = "disconnected"
	LinkError        LinkStatus = "error"
)

// Snapshot is an immutable copy of session state taken under the session
// lock. Version increases with every mutation, so consumers receiving
// snapshots from several goroutines can discard stale ones.
type Snapshot struct {
	SessionID string     `json:"session_id"`
	Version   uint64     `json:"version"`
	Taken     time.Time  `json:"taken"`
	Link      LinkStatus `json:"link"`
	LinkError string     `json:"link_error,omitempty"`

	Position *types.Position `json:"position,omitempty"`
	Attitude *types.Attitude `json:"attitude,omitempty"`
	Velocity *types.Velocity `json:"velocity,omitempty"`
	Battery  *types.Battery  `json:"battery,omitempty"`

	Health       types.HealthState `json:"health"`
	Fault        bool              `json:"fault"`
	Capabilities health.Matrix     `json:"capabilities"`

	// Enabled lists the permitted commands in display order
	Enabled []types.CommandKind `json:"enabled"`

	Track   []types.TrackPoint `json:"track"`
	Mission MissionProgress    `json:"mission"`
	Command CommandStatus      `json:"command"`
	Video   string             `json:"video,omitempty"`
	Display Display            `json:"display"`
}

// MissionProgress is the waypoint list with its derived counters
type MissionProgress struct {
	Waypoints []types.Waypoint `json:"waypoints"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	Progress  float64          `json:"progress"`
	Next      *types.Waypoint  `json:"next,omitempty"`
}

// CommandStatus reports the dispatcher state and the last outcome
type CommandStatus struct {
	InFlight bool                 `json:"in_flight"`
	Last     *types.CommandResult `json:"last,omitempty"`
}

// Display holds presentation values derived from the latest records
type Display struct {
	BatteryBand projection.Band       `json:"battery_band,omitempty"`
	BatteryFill float64               `json:"battery_fill"`
	BatteryETA  string                `json:"battery_eta,omitempty"`
	Roll        projection.Deflection `json:"roll"`
	Pitch       projection.Deflection `json:"pitch"`
	Yaw         projection.Deflection `json:"yaw"`
	Coordinates string                `json:"coordinates,omitempty"`
}

func display(pos *types.Position, att *types.Attitude, bat *types.Battery) Display {
	var d Display
	if bat != nil {
		d.BatteryBand = projection.BatteryBand(bat.Level)
		d.BatteryFill = projection.BatteryFill(bat.Level)
		d.BatteryETA = projection.FormatETA(projection.BatteryETA(bat.Level))
	}
	if att != nil {
		d.Roll = projection.Deflect(att.Roll, projection.RollScale)
		d.Pitch = projection.Deflect(att.Pitch, projection.PitchScale)
		d.Yaw = projection.Deflect(att.Yaw, projection.YawScale)
	}
	if pos != nil {
		d.Coordinates = projection.FormatCoordinate(pos.Lat, pos.Lon)
	}
	return d
}
