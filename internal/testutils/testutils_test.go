package testutils

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saviobatista/groundstation/internal/types"
)

func TestMockPositionFrame(t *testing.T) {
	raw := MockPositionFrame(47.1, 8.2, 500)

	var frame struct {
		Event string             `json:"event"`
		Data  map[string]float64 `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if frame.Event != string(types.EventPosition) {
		t.Errorf("Expected event 'position', got '%s'", frame.Event)
	}
	if frame.Data["lat"] != 47.1 || frame.Data["lon"] != 8.2 || frame.Data["abs_alt"] != 500 {
		t.Errorf("unexpected payload %v", frame.Data)
	}
}

func TestMockHealthFrame(t *testing.T) {
	raw := MockHealthFrame("armed")

	var frame struct {
		Event string `json:"event"`
		Data  string `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if frame.Event != "health" || frame.Data != "armed" {
		t.Errorf("unexpected frame %+v", frame)
	}
}

func TestMockMission_OrderedUniqueIDs(t *testing.T) {
	mission := MockMission()
	if len(mission) == 0 {
		t.Fatal("MockMission() returned no waypoints")
	}
	for i, wp := range mission {
		if wp.ID != i+1 {
			t.Errorf("waypoint %d has id %d", i, wp.ID)
		}
		if wp.Completed {
			t.Errorf("waypoint %d should start pending", wp.ID)
		}
	}
}

func TestWaitForCondition_Success(t *testing.T) {
	var ready atomic.Bool
	go func() {
		time.Sleep(30 * time.Millisecond)
		ready.Store(true)
	}()

	if err := WaitForCondition(ready.Load, time.Second); err != nil {
		t.Errorf("WaitForCondition() failed: %v", err)
	}
}

func TestWaitForCondition_Timeout(t *testing.T) {
	start := time.Now()
	err := WaitForCondition(func() bool { return false }, 50*time.Millisecond)
	if err == nil {
		t.Error("WaitForCondition() should time out")
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("WaitForCondition() returned before the timeout")
	}
}
