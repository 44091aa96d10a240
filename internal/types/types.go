package types

import (
	"time"
)

// EventName identifies a named event on the telemetry push channel
type EventName string

const (
	EventPosition EventName = "position"
	EventAttitude EventName = "attitude"
	EventVelocity EventName = "velocity"
	EventBattery  EventName = "battery"
	EventHealth   EventName = "health"
)

// EventNames lists every event the dashboard consumes, in display order
var EventNames = []EventName{EventPosition, EventAttitude, EventVelocity, EventBattery, EventHealth}

// Record is one typed unit of vehicle state received from the push channel.
// Records are values; a new record replaces the previous one of the same kind.
type Record interface {
	Event() EventName
}

// Position is the vehicle's global position
type Position struct {
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	AbsoluteAltitude float64 `json:"abs_alt"`
}

func (Position) Event() EventName { return EventPosition }

// HasFix reports whether the position carries a GPS fix. The upstream
// source reports 0,0 while it has none.
func (p Position) HasFix() bool {
	return !(p.Lat == 0 && p.Lon == 0)
}

// Attitude angles in degrees
type Attitude struct {
	Roll    float64 `json:"roll"`
	Pitch   float64 `json:"pitch"`
	Yaw     float64 `json:"yaw"`
	Heading float64 `json:"heading"`
}

func (Attitude) Event() EventName { return EventAttitude }

// Velocity in m/s, NED frame
type Velocity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (Velocity) Event() EventName { return EventVelocity }

// Battery status; Level is a percentage
type Battery struct {
	Level       float64 `json:"level"`
	Voltage     float64 `json:"voltage"`
	Temperature float64 `json:"temperature"`
}

func (Battery) Event() EventName { return EventBattery }

// Health carries the vehicle's reported health state
type Health struct {
	State HealthState `json:"state"`
}

func (Health) Event() EventName { return EventHealth }

// HealthState is the vehicle's discrete operating mode
type HealthState string

const (
	StateStarting          HealthState = "starting"
	StateConnected         HealthState = "connected"
	StateDisarmed          HealthState = "disarmed"
	StateArmed             HealthState = "armed"
	StateTakingOff         HealthState = "takingOff"
	StateFlying            HealthState = "flying"
	StateOffboard          HealthState = "offboard"
	StateLanding           HealthState = "landing"
	StateReturningToLaunch HealthState = "returningToLaunch"
	StateError             HealthState = "error"
	StateTimeout           HealthState = "timeout"
	StateArmError          HealthState = "armError"
	StateTakeoffError      HealthState = "takeoffError"
	StateLandError         HealthState = "landError"
	StateRTLError          HealthState = "rtlError"
)

// HealthStates lists every known health state
var HealthStates = []HealthState{
	StateStarting, StateConnected, StateDisarmed, StateArmed, StateTakingOff,
	StateFlying, StateOffboard, StateLanding, StateReturningToLaunch,
	StateError, StateTimeout, StateArmError, StateTakeoffError, StateLandError, StateRTLError,
}

// CommandKind is an operator command the dashboard can dispatch
type CommandKind string

const (
	CommandArm            CommandKind = "arm"
	CommandDisarm         CommandKind = "disarm"
	CommandTakeoff        CommandKind = "takeoff"
	CommandLand           CommandKind = "land"
	CommandReturnToLaunch CommandKind = "returnToLaunch"
)

// CommandKinds lists every dispatchable command
var CommandKinds = []CommandKind{CommandArm, CommandDisarm, CommandTakeoff, CommandLand, CommandReturnToLaunch}

// Path returns the command endpoint segment, e.g. "rtl" for CommandReturnToLaunch
func (k CommandKind) Path() string {
	if k == CommandReturnToLaunch {
		return "rtl"
	}
	return string(k)
}

// ParseCommandKind accepts either the command name or its endpoint segment
func ParseCommandKind(s string) (CommandKind, bool) {
	for _, k := range CommandKinds {
		if s == string(k) || s == k.Path() {
			return k, true
		}
	}
	return "", false
}

// WaypointKind classifies a mission waypoint
type WaypointKind string

const (
	WaypointTakeoff        WaypointKind = "takeoff"
	WaypointNav            WaypointKind = "waypoint"
	WaypointLand           WaypointKind = "land"
	WaypointReturnToLaunch WaypointKind = "returnToLaunch"
)

// Waypoint is one planned mission target
type Waypoint struct {
	ID        int          `json:"id" yaml:"id"`
	Lat       float64      `json:"lat" yaml:"lat"`
	Lon       float64      `json:"lon" yaml:"lon"`
	Altitude  float64      `json:"alt" yaml:"alt"`
	Kind      WaypointKind `json:"kind" yaml:"kind"`
	Completed bool         `json:"completed" yaml:"-"`
}

// TrackPoint is one observed position on the flown path
type TrackPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CommandRequest is a single outstanding command dispatch
type CommandRequest struct {
	ID        string      `json:"id"`
	Kind      CommandKind `json:"kind"`
	IssuedAt  time.Time   `json:"issued_at"`
	SessionID string      `json:"session_id"`
}

// CommandResult is the outcome of a dispatched command
type CommandResult struct {
	Request  CommandRequest `json:"request"`
	Status   string         `json:"status"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Finished time.Time      `json:"finished"`
}

// VideoStatus is the response of the auxiliary video-status endpoint
type VideoStatus struct {
	Status string `json:"status"`
	Source string `json:"source"`
}
