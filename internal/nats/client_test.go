package nats

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/saviobatista/groundstation/internal/parser"
	"github.com/saviobatista/groundstation/internal/types"
)

func TestNew_Unit_URLs(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty URL should fail", ""},
		{"invalid URL should fail", "invalid://url:12345"},
		{"unreachable server should fail", "nats://127.0.0.1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.url, nil)
			if err == nil {
				t.Error("Expected error, got none")
				client.Close()
			}
			if client != nil {
				t.Error("Expected nil client on error")
			}
		})
	}
}

func TestClient_Close_Unit_NilSafety(t *testing.T) {
	// Close with a nil connection should not panic
	client := &Client{conn: nil}
	client.Close()
}

func TestSubjectForEvent(t *testing.T) {
	tests := map[types.EventName]string{
		types.EventPosition: "telemetry.position",
		types.EventHealth:   "telemetry.health",
	}
	for event, want := range tests {
		if got := SubjectForEvent(event); got != want {
			t.Errorf("SubjectForEvent(%s) = %s, want %s", event, got, want)
		}
	}
}

func TestEncodeDecodeRecord(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []types.Record{
		types.Position{Lat: 47.397742, Lon: 8.545594, AbsoluteAltitude: 488},
		types.Battery{Level: 42, Voltage: 11.9, Temperature: 30},
		types.Health{State: types.StateReturningToLaunch},
	}

	for _, rec := range records {
		t.Run(string(rec.Event()), func(t *testing.T) {
			raw, err := EncodeRecord("session-1", rec, at)
			if err != nil {
				t.Fatalf("EncodeRecord() failed: %v", err)
			}

			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("envelope is not JSON: %v", err)
			}
			if env.Event != rec.Event() || !env.Time.Equal(at) {
				t.Errorf("unexpected envelope %+v", env)
			}

			sessionID, got, err := DecodeRecord(raw)
			if err != nil {
				t.Fatalf("DecodeRecord() failed: %v", err)
			}
			if sessionID != "session-1" || got != rec {
				t.Errorf("DecodeRecord() = %s, %#v; want session-1, %#v", sessionID, got, rec)
			}
		})
	}
}

func TestDecodeRecord_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid JSON", "invalid json data"},
		{"unknown event", `{"session_id":"s","event":"camera","data":{}}`},
		{"invalid payload", `{"session_id":"s","event":"battery","data":{"level":400}}`},
		{"missing payload", `{"session_id":"s","event":"position"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeRecord([]byte(tt.raw)); err == nil {
				t.Error("Expected error, got none")
			}
		})
	}

	_, _, err := DecodeRecord([]byte(`{"event":"camera","data":{}}`))
	if !errors.Is(err, parser.ErrUnknownEvent) {
		t.Errorf("Expected ErrUnknownEvent, got %v", err)
	}
}

func TestCommandResult_Unit_JSON(t *testing.T) {
	res := types.CommandResult{
		Request: types.CommandRequest{ID: "req-1", Kind: types.CommandReturnToLaunch, SessionID: "s"},
		Status:  "RTL initiated",
		Success: true,
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Expected no marshal error, got: %v", err)
	}

	var got types.CommandResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Expected no unmarshal error, got: %v", err)
	}
	if got.Request.Kind != types.CommandReturnToLaunch || !got.Success || got.Status != res.Status {
		t.Errorf("unexpected result %+v", got)
	}
}
