package drying

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func readingsAt(start time.Time, spacing time.Duration, humidities ...float64) []HumidityReading {
	readings := make([]HumidityReading, 0, len(humidities))
	for i, h := range humidities {
		readings = append(readings, HumidityReading{
			ReadingTime: start.Add(time.Duration(i) * spacing),
			Humidity:    h,
		})
	}
	return readings
}

func TestEstimateMonotonicDecline(t *testing.T) {
	// Start point (t=-1h, 22), then hourly readings 20, 18, 16, 14 from t=0.
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	start := t0.Add(-time.Hour)
	readings := readingsAt(t0, time.Hour, 20, 18, 16, 14)

	e := EstimateCompletion(start, 22, readings)
	require.True(t, e.Available)
	require.Less(t, e.Slope, 0.0)
	require.InDelta(t, -2.0, e.Slope, 1e-9)
	require.EqualValues(t, 14, e.LastHumidity)
	require.Equal(t, 1, e.StepsRemaining)

	lastReading := readings[len(readings)-1].ReadingTime
	require.NotNil(t, e.EstimatedCompletion)
	require.True(t, e.EstimatedCompletion.After(lastReading))
	// Average spacing is (lastReading - start) / readingCount = 1h.
	require.Equal(t, lastReading.Add(time.Hour), *e.EstimatedCompletion)
}

func TestEstimateFlatOrRising(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	e := EstimateCompletion(t0.Add(-time.Hour), 20, readingsAt(t0, time.Hour, 20, 20, 21))
	require.False(t, e.Available)
	require.GreaterOrEqual(t, e.Slope, 0.0)
	require.Contains(t, e.Reason, "flat or rising")
}

func TestEstimateInsufficientData(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	// Only the synthetic starting point: not enough to fit a line.
	e := EstimateCompletion(t0, 30, nil)
	require.False(t, e.Available)
	require.Contains(t, e.Reason, "insufficient data")

	// One reading plus the start point clears the minimum.
	e = EstimateCompletion(t0, 30, readingsAt(t0.Add(time.Hour), time.Hour, 24))
	require.True(t, e.Available)
}

func TestEstimateAlreadyAtTarget(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	e := EstimateCompletion(t0.Add(-time.Hour), 16, readingsAt(t0, time.Hour, 14, 12))
	require.False(t, e.Available)
	require.Contains(t, e.Reason, "at or below target")
}

func TestEstimateStepsRounding(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	// Slope -2, last 17: (17-12)/2 = 2.5 rounds up to 3 steps.
	e := EstimateCompletion(t0.Add(-time.Hour), 23, readingsAt(t0, time.Hour, 21, 19, 17))
	require.True(t, e.Available)
	require.Equal(t, 3, e.StepsRemaining)
}
