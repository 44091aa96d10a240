package mission

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/saviobatista/groundstation/internal/types"
)

// Plan is the on-disk mission description
type Plan struct {
	Name      string           `yaml:"name"`
	Waypoints []types.Waypoint `yaml:"waypoints"`
}

// LoadPlan reads a YAML mission plan from path
func LoadPlan(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mission plan: %w", err)
	}
	defer f.Close()

	return DecodePlan(f)
}

// DecodePlan parses a YAML mission plan and validates waypoint kinds
func DecodePlan(r io.Reader) (*Plan, error) {
	var plan Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		if err == io.EOF {
			return &plan, nil
		}
		return nil, fmt.Errorf("decoding mission plan: %w", err)
	}

	for i, wp := range plan.Waypoints {
		switch wp.Kind {
		case types.WaypointTakeoff, types.WaypointNav, types.WaypointLand, types.WaypointReturnToLaunch:
		case "rtl":
			plan.Waypoints[i].Kind = types.WaypointReturnToLaunch
		case "":
			plan.Waypoints[i].Kind = types.WaypointNav
		default:
			return nil, fmt.Errorf("waypoint %d: unknown kind '%s'", wp.ID, wp.Kind)
		}
	}

	return &plan, nil
}

// Tracker builds a progress tracker for the plan
func (p *Plan) Tracker() (*Tracker, error) {
	return New(p.Waypoints)
}
