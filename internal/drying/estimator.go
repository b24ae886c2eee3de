package drying

import (
	"math"
	"time"
)

// TargetHumidity is the moisture percentage at which lumber counts as dried.
const TargetHumidity = 12.0

// Estimate is the completion projection for an in-progress batch. Absence of an
// estimate is an expected outcome carried in the value, never an error.
type Estimate struct {
	Available           bool       `json:"available"`
	Reason              string     `json:"reason,omitempty"`
	Slope               float64    `json:"slope,omitempty"`
	LastHumidity        float64    `json:"last_humidity,omitempty"`
	TargetHumidity      float64    `json:"target_humidity"`
	StepsRemaining      int        `json:"steps_remaining,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

func noEstimate(reason string) Estimate {
	return Estimate{Available: false, Reason: reason, TargetHumidity: TargetHumidity}
}

// EstimateCompletion projects when a batch reaches the target humidity by
// fitting an ordinary least-squares line to humidity against reading index.
// The synthetic starting point (startTime, startingHumidity) is prepended to
// the recorded readings. The projection assumes the recent linear trend
// continues at the same reading cadence; it is not a calibrated drying model.
func EstimateCompletion(startTime time.Time, startingHumidity float64, readings []HumidityReading) Estimate {
	points := make([]float64, 0, len(readings)+1)
	points = append(points, startingHumidity)
	for _, r := range readings {
		points = append(points, r.Humidity)
	}
	if len(points) < 2 {
		return noEstimate("insufficient data: at least 2 humidity points required")
	}

	// OLS over the zero-based index, not wall-clock time. Readings are taken
	// at a roughly fixed cadence, so the index is the more stable regressor.
	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range points {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return noEstimate("insufficient data: degenerate reading sequence")
	}
	slope := (n*sumXY - sumX*sumY) / denom

	last := points[len(points)-1]
	if slope >= 0 {
		e := noEstimate("humidity flat or rising: drying not progressing")
		e.Slope = slope
		e.LastHumidity = last
		return e
	}
	if last <= TargetHumidity {
		e := noEstimate("already at or below target humidity")
		e.Slope = slope
		e.LastHumidity = last
		return e
	}

	steps := int(math.Ceil((last - TargetHumidity) / -slope))
	lastTime := startTime
	if len(readings) > 0 {
		lastTime = readings[len(readings)-1].ReadingTime
	}
	spacing := lastTime.Sub(startTime) / time.Duration(len(readings))
	completion := lastTime.Add(time.Duration(steps) * spacing)

	return Estimate{
		Available:           true,
		Slope:               slope,
		LastHumidity:        last,
		TargetHumidity:      TargetHumidity,
		StepsRemaining:      steps,
		EstimatedCompletion: &completion,
	}
}
