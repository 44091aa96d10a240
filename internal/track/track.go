// Package track keeps the bounded history of observed vehicle positions
// used to draw the flown path.
package track

import (
	"github.com/saviobatista/groundstation/internal/types"
)

// Capacity is the number of points a Buffer retains
const Capacity = 100

// Buffer is a FIFO of track points capped at its capacity. It is not safe
// for concurrent use; the owning session serializes access.
type Buffer struct {
	points []types.TrackPoint
}

// New creates an empty buffer
func New() *Buffer {
	return &Buffer{points: make([]types.TrackPoint, 0, Capacity)}
}

// Record appends a point, evicting the oldest ones past capacity. A 0,0
// point means "no GPS fix" and is ignored; Record reports whether the point
// was accepted.
func (b *Buffer) Record(p types.TrackPoint) bool {
	if p.Lat == 0 && p.Lon == 0 {
		return false
	}

	if len(b.points) == Capacity {
		copy(b.points, b.points[1:])
		b.points = b.points[:len(b.points)-1]
	}
	b.points = append(b.points, p)
	return true
}

// Len returns the number of retained points
func (b *Buffer) Len() int {
	return len(b.points)
}

// Points returns a copy of the retained points, oldest first
func (b *Buffer) Points() []types.TrackPoint {
	out := make([]types.TrackPoint, len(b.points))
	copy(out, b.points)
	return out
}

// Reset discards the history
func (b *Buffer) Reset() {
	b.points = b.points[:0]
}
