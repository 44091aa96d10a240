package parser

import (
	"errors"
	"testing"

	"github.com/saviobatista/groundstation/internal/testutils"
	"github.com/saviobatista/groundstation/internal/types"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		wantErr bool
		want    types.Record
	}{
		{
			name: "valid position frame",
			raw:  testutils.MockPositionFrame(47.397742, 8.545594, 488.2),
			want: types.Position{Lat: 47.397742, Lon: 8.545594, AbsoluteAltitude: 488.2},
		},
		{
			name: "no fix position is still a valid record",
			raw:  testutils.MockPositionFrame(0, 0, 0),
			want: types.Position{},
		},
		{
			name: "valid attitude frame",
			raw:  []byte(`{"event":"attitude","data":{"roll":-3.5,"pitch":1.25,"yaw":90,"heading":271}}`),
			want: types.Attitude{Roll: -3.5, Pitch: 1.25, Yaw: 90, Heading: 271},
		},
		{
			name: "valid velocity frame",
			raw:  []byte(`{"event":"velocity","data":{"x":1.2,"y":-0.4,"z":0.05}}`),
			want: types.Velocity{X: 1.2, Y: -0.4, Z: 0.05},
		},
		{
			name: "valid battery frame",
			raw:  testutils.MockBatteryFrame(87.5),
			want: types.Battery{Level: 87.5, Voltage: 12.4, Temperature: 25},
		},
		{
			name: "valid health frame",
			raw:  testutils.MockHealthFrame("connected"),
			want: types.Health{State: types.StateConnected},
		},
		{
			name: "snake case health frame",
			raw:  testutils.MockHealthFrame("takeoff_error"),
			want: types.Health{State: types.StateTakeoffError},
		},
		{
			name:    "not json",
			raw:     []byte("MSG,8,111"),
			wantErr: true,
		},
		{
			name:    "missing event name",
			raw:     []byte(`{"data":{"x":1}}`),
			wantErr: true,
		},
		{
			name:    "missing payload",
			raw:     []byte(`{"event":"velocity"}`),
			wantErr: true,
		},
		{
			name:    "latitude out of range",
			raw:     testutils.MockPositionFrame(91, 8, 0),
			wantErr: true,
		},
		{
			name:    "longitude out of range",
			raw:     testutils.MockPositionFrame(47, -181, 0),
			wantErr: true,
		},
		{
			name:    "battery level out of range",
			raw:     testutils.MockBatteryFrame(120),
			wantErr: true,
		},
		{
			name:    "wrong payload type",
			raw:     []byte(`{"event":"battery","data":"full"}`),
			wantErr: true,
		},
		{
			name:    "unknown health state",
			raw:     testutils.MockHealthFrame("hovering"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseFrame(tt.raw)

			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseFrame() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseFrame() unexpected error: %v", err)
			}
			if rec != tt.want {
				t.Errorf("ParseFrame() = %#v, want %#v", rec, tt.want)
			}
		})
	}
}

func TestParseFrame_UnknownEvent(t *testing.T) {
	_, err := ParseFrame([]byte(`{"event":"camera","data":{"last_frame":"frame.jpg"}}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Expected ErrUnknownEvent, got %v", err)
	}
}

func TestParseHealthState_AllStates(t *testing.T) {
	for _, state := range types.HealthStates {
		got, err := ParseHealthState(string(state))
		if err != nil {
			t.Errorf("ParseHealthState(%q) failed: %v", state, err)
			continue
		}
		if got != state {
			t.Errorf("ParseHealthState(%q) = %q", state, got)
		}
	}

	aliases := map[string]types.HealthState{
		"returning_to_launch": types.StateReturningToLaunch,
		"taking_off":          types.StateTakingOff,
		"rtl_error":           types.StateRTLError,
		"  Flying ":           types.StateFlying,
	}
	for in, want := range aliases {
		got, err := ParseHealthState(in)
		if err != nil || got != want {
			t.Errorf("ParseHealthState(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestEncodeFrame_RoundTrip(t *testing.T) {
	records := []types.Record{
		types.Position{Lat: 47.397742, Lon: 8.545594, AbsoluteAltitude: 488.2},
		types.Attitude{Roll: -3.5, Pitch: 1.25, Yaw: 270, Heading: 270},
		types.Velocity{X: 1, Y: -2, Z: 0.5},
		types.Battery{Level: 55.5, Voltage: 12.1, Temperature: 31},
		types.Health{State: types.StateTakeoffError},
	}
	for _, rec := range records {
		t.Run(string(rec.Event()), func(t *testing.T) {
			raw, err := EncodeFrame(rec)
			if err != nil {
				t.Fatalf("EncodeFrame() failed: %v", err)
			}
			got, err := ParseFrame(raw)
			if err != nil {
				t.Fatalf("ParseFrame(%s) failed: %v", raw, err)
			}
			if got != rec {
				t.Errorf("round trip = %#v, want %#v", got, rec)
			}
		})
	}
}

func TestEncodePayload_HealthIsBareString(t *testing.T) {
	data, err := EncodePayload(types.Health{State: types.StateArmed})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"armed"` {
		t.Errorf("Expected bare string payload, got %s", data)
	}
}
