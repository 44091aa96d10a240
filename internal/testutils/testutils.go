package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/saviobatista/groundstation/internal/types"
)

// MockFrame builds a push-channel frame for the given event and payload
func MockFrame(event types.EventName, payload interface{}) []byte {
	data, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  payload,
	})
	if err != nil {
		panic(fmt.Sprintf("testutils: marshal frame: %v", err))
	}
	return data
}

// MockPositionFrame builds a position frame
func MockPositionFrame(lat, lon, alt float64) []byte {
	return MockFrame(types.EventPosition, map[string]float64{"lat": lat, "lon": lon, "abs_alt": alt})
}

// MockHealthFrame builds a health frame carrying the given state string
func MockHealthFrame(state string) []byte {
	return MockFrame(types.EventHealth, state)
}

// MockBatteryFrame builds a battery frame
func MockBatteryFrame(level float64) []byte {
	return MockFrame(types.EventBattery, map[string]float64{"level": level, "voltage": 12.4, "temperature": 25})
}

// MockAttitudeFrame builds an attitude frame
func MockAttitudeFrame(roll, pitch, yaw float64) []byte {
	return MockFrame(types.EventAttitude, map[string]float64{"roll": roll, "pitch": pitch, "yaw": yaw, "heading": yaw})
}

// MockMission returns a small four-waypoint mission around a fixed origin
func MockMission() []types.Waypoint {
	return []types.Waypoint{
		{ID: 1, Lat: 47.397742, Lon: 8.545594, Altitude: 10, Kind: types.WaypointTakeoff},
		{ID: 2, Lat: 47.398242, Lon: 8.545594, Altitude: 20, Kind: types.WaypointNav},
		{ID: 3, Lat: 47.398242, Lon: 8.546594, Altitude: 20, Kind: types.WaypointNav},
		{ID: 4, Lat: 47.397742, Lon: 8.545594, Altitude: 0, Kind: types.WaypointLand},
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
		}
	}
}
