// Package mission tracks progress through an ordered list of waypoints.
package mission

import (
	"errors"
	"fmt"
	"sort"

	"github.com/saviobatista/groundstation/internal/types"
)

// DefaultCompletionRadius is the horizontal distance in meters within which
// the vehicle is considered to have reached the next pending waypoint.
const DefaultCompletionRadius = 3.0

// ErrNotFound is returned when a waypoint id is not part of the mission
var ErrNotFound = errors.New("waypoint not found")

// Tracker holds the mission waypoints in id order. Completion flags only
// ever move from false to true. Not safe for concurrent use.
type Tracker struct {
	waypoints []types.Waypoint
	index     map[int]int
}

// New creates a tracker for the given plan. Ids must be unique positive
// integers; the plan is reordered by id.
func New(plan []types.Waypoint) (*Tracker, error) {
	wps := make([]types.Waypoint, len(plan))
	copy(wps, plan)
	sort.SliceStable(wps, func(i, j int) bool { return wps[i].ID < wps[j].ID })

	index := make(map[int]int, len(wps))
	for i, wp := range wps {
		if wp.ID <= 0 {
			return nil, fmt.Errorf("invalid waypoint id %d: must be positive", wp.ID)
		}
		if _, dup := index[wp.ID]; dup {
			return nil, fmt.Errorf("duplicate waypoint id %d", wp.ID)
		}
		index[wp.ID] = i
	}

	return &Tracker{waypoints: wps, index: index}, nil
}

// TotalCount returns the number of waypoints in the mission
func (t *Tracker) TotalCount() int {
	return len(t.waypoints)
}

// CompletedCount returns the number of completed waypoints
func (t *Tracker) CompletedCount() int {
	n := 0
	for _, wp := range t.waypoints {
		if wp.Completed {
			n++
		}
	}
	return n
}

// Progress returns the completed fraction in [0,1]. An empty mission is
// reported as complete.
func (t *Tracker) Progress() float64 {
	if len(t.waypoints) == 0 {
		return 1
	}
	return float64(t.CompletedCount()) / float64(len(t.waypoints))
}

// NextPending returns the first waypoint in id order that is not completed.
// ok is false once the mission is complete.
func (t *Tracker) NextPending() (wp types.Waypoint, ok bool) {
	for _, wp := range t.waypoints {
		if !wp.Completed {
			return wp, true
		}
	}
	return types.Waypoint{}, false
}

// MarkCompleted flags the waypoint as completed. Re-marking a completed
// waypoint is a no-op; changed reports whether the flag moved.
func (t *Tracker) MarkCompleted(id int) (changed bool, err error) {
	i, ok := t.index[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if t.waypoints[i].Completed {
		return false, nil
	}
	t.waypoints[i].Completed = true
	return true, nil
}

// Observe applies the geofence completion rule to a vehicle position: the
// next pending waypoint is completed when it lies within radius meters.
// Only the next pending waypoint is considered so completion stays ordered.
func (t *Tracker) Observe(lat, lon, radius float64) (completed types.Waypoint, ok bool) {
	next, pending := t.NextPending()
	if !pending {
		return types.Waypoint{}, false
	}
	if DistanceMeters(lat, lon, next.Lat, next.Lon) > radius {
		return types.Waypoint{}, false
	}
	if _, err := t.MarkCompleted(next.ID); err != nil {
		return types.Waypoint{}, false
	}
	next.Completed = true
	return next, true
}

// Waypoints returns a copy of the mission in id order
func (t *Tracker) Waypoints() []types.Waypoint {
	out := make([]types.Waypoint, len(t.waypoints))
	copy(out, t.waypoints)
	return out
}
