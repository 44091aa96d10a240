package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/saviobatista/groundstation/internal/types"
)

// ErrUnknownEvent is returned for frames whose event name the dashboard does not consume
var ErrUnknownEvent = errors.New("unknown event")

// Frame is the envelope of one push-channel message
type Frame struct {
	Event types.EventName `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ParseFrame decodes a raw push-channel message into a typed record
func ParseFrame(raw []byte) (types.Record, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	if frame.Event == "" {
		return nil, fmt.Errorf("invalid frame: missing event name")
	}
	return ParsePayload(frame.Event, frame.Data)
}

// ParsePayload decodes the payload of a named event and validates it
func ParsePayload(event types.EventName, data []byte) (types.Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: empty payload", event)
	}

	switch event {
	case types.EventPosition:
		var p types.Position
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%s: %w", event, err)
		}
		if err := finite(event, p.Lat, p.Lon, p.AbsoluteAltitude); err != nil {
			return nil, err
		}
		if p.Lat < -90 || p.Lat > 90 {
			return nil, fmt.Errorf("%s: latitude %f out of range", event, p.Lat)
		}
		if p.Lon < -180 || p.Lon > 180 {
			return nil, fmt.Errorf("%s: longitude %f out of range", event, p.Lon)
		}
		return p, nil

	case types.EventAttitude:
		var a types.Attitude
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("%s: %w", event, err)
		}
		if err := finite(event, a.Roll, a.Pitch, a.Yaw, a.Heading); err != nil {
			return nil, err
		}
		return a, nil

	case types.EventVelocity:
		var v types.Velocity
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%s: %w", event, err)
		}
		if err := finite(event, v.X, v.Y, v.Z); err != nil {
			return nil, err
		}
		return v, nil

	case types.EventBattery:
		var b types.Battery
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("%s: %w", event, err)
		}
		if err := finite(event, b.Level, b.Voltage, b.Temperature); err != nil {
			return nil, err
		}
		if b.Level < 0 || b.Level > 100 {
			return nil, fmt.Errorf("%s: level %f out of range", event, b.Level)
		}
		return b, nil

	case types.EventHealth:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("%s: %w", event, err)
		}
		state, err := ParseHealthState(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", event, err)
		}
		return types.Health{State: state}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
}

// ParseHealthState maps a reported health string onto a known state. Both the
// camelCase names and their snake_case forms ("takeoff_error") are accepted.
func ParseHealthState(s string) (types.HealthState, error) {
	key := normalize(s)
	for _, state := range types.HealthStates {
		if normalize(string(state)) == key {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown health state %q", s)
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
}

func finite(event types.EventName, values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: non-finite value", event)
		}
	}
	return nil
}

// EncodePayload renders a record in its wire form, the inverse of ParsePayload
func EncodePayload(rec types.Record) (json.RawMessage, error) {
	if h, ok := rec.(types.Health); ok {
		return json.Marshal(string(h.State))
	}
	return json.Marshal(rec)
}

// EncodeFrame renders a record as a complete push-channel message
func EncodeFrame(rec types.Record) ([]byte, error) {
	data, err := EncodePayload(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", rec.Event(), err)
	}
	return json.Marshal(Frame{Event: rec.Event(), Data: data})
}
