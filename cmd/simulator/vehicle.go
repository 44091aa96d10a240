package main

import (
	"fmt"
	"math"
	"sync"

	"github.com/saviobatista/groundstation/internal/mission"
	"github.com/saviobatista/groundstation/internal/parser"
	"github.com/saviobatista/groundstation/internal/types"
)

const (
	batteryDrainPerSecond = 0.1
	cruiseAltitude        = 10.0
	climbRate             = 2.0    // m/s
	groundSpeed           = 5.0    // m/s
	metersPerDegree       = 111320 // latitude
)

// Vehicle is a simulated autopilot. Commands are validated against the
// current state the way the autopilot would; Step advances the flight.
type Vehicle struct {
	mu      sync.Mutex
	state   types.HealthState
	homeLat float64
	homeLon float64
	lat     float64
	lon     float64
	alt     float64
	heading float64
	battery float64
	elapsed float64
}

// NewVehicle places a disarmed vehicle with a full battery at home
func NewVehicle(lat, lon float64) *Vehicle {
	return &Vehicle{
		state:   types.StateStarting,
		homeLat: lat,
		homeLon: lon,
		lat:     lat,
		lon:     lon,
		battery: 100,
	}
}

// State returns the current health state
func (v *Vehicle) State() types.HealthState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Command applies an operator command and returns the status text the
// command endpoint reports. Rejections leave the state unchanged.
func (v *Vehicle) Command(kind types.CommandKind) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch kind {
	case types.CommandArm:
		if v.state != types.StateConnected && v.state != types.StateDisarmed {
			return v.rejected("Arm")
		}
		if v.battery <= 20 {
			v.state = types.StateArmError
			return "Arm failed: battery too low"
		}
		v.state = types.StateArmed
		return "Drone armed successfully"
	case types.CommandDisarm:
		if v.state != types.StateArmed && v.state != types.StateFlying && v.state != types.StateOffboard {
			return v.rejected("Disarm")
		}
		v.state = types.StateDisarmed
		v.alt = 0
		return "Drone disarmed successfully"
	case types.CommandTakeoff:
		if v.state != types.StateArmed {
			return v.rejected("Takeoff")
		}
		v.state = types.StateTakingOff
		return "Takeoff initiated"
	case types.CommandLand:
		if v.state != types.StateFlying && v.state != types.StateOffboard {
			return v.rejected("Land")
		}
		v.state = types.StateLanding
		return "Landing initiated"
	case types.CommandReturnToLaunch:
		if v.state != types.StateFlying && v.state != types.StateOffboard {
			return v.rejected("RTL")
		}
		v.state = types.StateReturningToLaunch
		return "RTL initiated"
	}
	return fmt.Sprintf("Unknown command %s", kind)
}

func (v *Vehicle) rejected(what string) string {
	return fmt.Sprintf("%s rejected: vehicle is %s", what, v.state)
}

// Step advances the simulation by dt seconds
func (v *Vehicle) Step(dt float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.elapsed += dt
	v.battery = math.Max(0, v.battery-batteryDrainPerSecond*dt)

	switch v.state {
	case types.StateStarting:
		v.state = types.StateConnected
	case types.StateConnected, types.StateArmError:
		v.state = types.StateDisarmed
	case types.StateTakingOff:
		v.alt = math.Min(cruiseAltitude, v.alt+climbRate*dt)
		if v.alt >= cruiseAltitude {
			v.state = types.StateFlying
		}
	case types.StateFlying, types.StateOffboard:
		// fly a slow circle around home
		v.heading = math.Mod(v.heading+6*dt, 360)
		v.move(v.heading, groundSpeed*dt)
	case types.StateLanding:
		v.alt = math.Max(0, v.alt-climbRate*dt)
		if v.alt == 0 {
			v.state = types.StateDisarmed
		}
	case types.StateReturningToLaunch:
		d := mission.DistanceMeters(v.lat, v.lon, v.homeLat, v.homeLon)
		if d <= groundSpeed*dt {
			v.lat, v.lon = v.homeLat, v.homeLon
			v.state = types.StateLanding
			break
		}
		v.heading = bearing(v.lat, v.lon, v.homeLat, v.homeLon)
		v.move(v.heading, groundSpeed*dt)
	}
}

func (v *Vehicle) move(headingDeg, meters float64) {
	rad := headingDeg * math.Pi / 180
	v.lat += meters * math.Cos(rad) / metersPerDegree
	v.lon += meters * math.Sin(rad) / (metersPerDegree * math.Cos(v.lat*math.Pi/180))
}

func bearing(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat2 - lat1
	dLon := (lon2 - lon1) * math.Cos(lat1*math.Pi/180)
	return math.Mod(math.Atan2(dLon, dLat)*180/math.Pi+360, 360)
}

// Records returns the current telemetry, one record per event
func (v *Vehicle) Records() []types.Record {
	v.mu.Lock()
	defer v.mu.Unlock()

	airborne := v.alt > 0
	var roll, pitch, vx, vy float64
	if airborne {
		roll = 5 * math.Sin(v.elapsed/4)
		pitch = -3 * math.Cos(v.elapsed/5)
		rad := v.heading * math.Pi / 180
		vx, vy = groundSpeed*math.Cos(rad), groundSpeed*math.Sin(rad)
	}
	var vz float64
	switch v.state {
	case types.StateTakingOff:
		vz = -climbRate
	case types.StateLanding:
		vz = climbRate
	}

	return []types.Record{
		types.Position{Lat: v.lat, Lon: v.lon, AbsoluteAltitude: v.alt},
		types.Attitude{Roll: roll, Pitch: pitch, Yaw: v.heading, Heading: v.heading},
		types.Velocity{X: vx, Y: vy, Z: vz},
		types.Battery{Level: v.battery, Voltage: 12.6 * (0.8 + 0.2*v.battery/100), Temperature: 30},
		types.Health{State: v.state},
	}
}

// Frames encodes the current telemetry as push channel frames
func (v *Vehicle) Frames() ([][]byte, error) {
	recs := v.Records()
	frames := make([][]byte, 0, len(recs))
	for _, rec := range recs {
		f, err := parser.EncodeFrame(rec)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}
