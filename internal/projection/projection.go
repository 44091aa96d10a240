// Package projection derives presentation values from telemetry. All
// functions are pure.
package projection

import (
	"fmt"
	"math"
	"time"
)

// Band is a qualitative battery level used for color coding
type Band string

const (
	BandNominal  Band = "nominal"
	BandCaution  Band = "caution"
	BandCritical Band = "critical"
)

// Deflection scales for the attitude bars, in percent per degree
const (
	RollScale  = 2.0
	PitchScale = 2.0
	YawScale   = 0.5
)

// BatteryBand classifies a battery percentage: above 50 is nominal, above 20
// is caution, anything else is critical.
func BatteryBand(level float64) Band {
	switch {
	case level > 50:
		return BandNominal
	case level > 20:
		return BandCaution
	default:
		return BandCritical
	}
}

// BatteryFill returns the progress-bar fill percentage for a battery level
func BatteryFill(level float64) float64 {
	return math.Max(0, math.Min(level, 100))
}

// Deflection is the visual extent of an attitude bar
type Deflection struct {
	// Width is the bar width in percent, at most 100.
	Width float64 `json:"width"`
	// Offset is the left margin in percent; negative angles grow the bar
	// from the right edge.
	Offset float64 `json:"offset"`
}

// Deflect maps an angle in degrees to a bounded bar deflection
func Deflect(angle, scale float64) Deflection {
	w := math.Min(math.Abs(angle)*scale, 100)
	d := Deflection{Width: w}
	if angle < 0 {
		d.Offset = 100 - w
	}
	return d
}

// BatteryETA is a rough endurance estimate assuming one percent of charge
// lasts one minute. It is a placeholder, not a discharge model.
func BatteryETA(level float64) time.Duration {
	if level <= 0 || math.IsNaN(level) {
		return 0
	}
	return time.Duration(level * float64(time.Minute))
}

// FormatETA renders a duration as HH:MM:SS
func FormatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

// FormatCoordinate renders a lat/lon pair with six decimals
func FormatCoordinate(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}
