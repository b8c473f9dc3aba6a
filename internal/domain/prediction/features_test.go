package prediction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/firesight-in/firesight/internal/domain/detection"
)

func testBuilder() *FeatureBuilder {
	return NewFeatureBuilder(FeatureConfig{
		Area:               Bounds{LatMin: 20, LatMax: 32, LonMin: 70, LonMax: 90},
		HistoryCellSize:    0.1,
		TrailingWindowDays: 90,
		HorizonDays:        7,
	})
}

func det(lat, lon float64, date, clock string, confidence int, brightness, frp *float64) detection.FireDetection {
	return detection.FireDetection{
		Latitude:   lat,
		Longitude:  lon,
		Confidence: confidence,
		Brightness: brightness,
		FRP:        frp,
		AcqDate:    date,
		AcqTime:    clock,
		Source:     detection.SourceMODIS,
	}
}

func fptr(v float64) *float64 { return &v }

func featureIndex(t *testing.T, name string) int {
	t.Helper()
	for i, n := range FeatureNames {
		if n == name {
			return i
		}
	}
	t.Fatalf("unknown feature %q", name)
	return -1
}

func TestVectorUsesOnlyPastHistory(t *testing.T) {
	b := testBuilder()
	h, err := b.BuildHistory([]detection.FireDetection{
		det(30.05, 75.05, "2024-11-01", "0600", 80, fptr(320), fptr(10)),
		det(30.05, 75.05, "2024-11-05", "0600", 60, fptr(340), fptr(20)),
		// Future relative to the query instant; must not leak in.
		det(30.05, 75.05, "2024-11-20", "0600", 99, fptr(400), fptr(99)),
	})
	require.NoError(t, err)

	at := time.Date(2024, 11, 10, 0, 0, 0, 0, time.UTC)
	vec := b.Vector(h, 30.05, 75.05, at)
	require.Len(t, vec, len(FeatureNames))

	require.InDelta(t, 2, vec[featureIndex(t, "density_cell")], 1e-9)
	require.InDelta(t, 2, vec[featureIndex(t, "density_neighborhood")], 1e-9)
	require.InDelta(t, 4.75, vec[featureIndex(t, "days_since_last")], 1e-9)
	require.InDelta(t, 330, vec[featureIndex(t, "brightness_mean")], 1e-9)
	require.InDelta(t, 70, vec[featureIndex(t, "confidence_mean")], 1e-9)
	require.InDelta(t, 15, vec[featureIndex(t, "frp_mean")], 1e-9)
}

func TestVectorFallsBackToGlobalMeans(t *testing.T) {
	b := testBuilder()
	h, err := b.BuildHistory([]detection.FireDetection{
		det(30.05, 75.05, "2024-11-01", "0600", 80, fptr(320), fptr(10)),
		det(30.05, 75.05, "2024-11-02", "0600", 40, fptr(360), fptr(30)),
	})
	require.NoError(t, err)

	// A cell with no history of its own gets the dataset means, never zeros.
	vec := b.Vector(h, 25.05, 80.05, time.Date(2024, 11, 10, 0, 0, 0, 0, time.UTC))
	require.InDelta(t, 0, vec[featureIndex(t, "density_cell")], 1e-9)
	require.InDelta(t, 340, vec[featureIndex(t, "brightness_mean")], 1e-9)
	require.InDelta(t, 60, vec[featureIndex(t, "confidence_mean")], 1e-9)
	require.InDelta(t, 20, vec[featureIndex(t, "frp_mean")], 1e-9)
	require.InDelta(t, daysSinceLastCap, vec[featureIndex(t, "days_since_last")], 1e-9)
}

func TestVectorSeasonFlags(t *testing.T) {
	b := testBuilder()
	h, err := b.BuildHistory(nil)
	require.NoError(t, err)

	nov := b.Vector(h, 30, 75, time.Date(2024, 11, 10, 0, 0, 0, 0, time.UTC))
	require.InDelta(t, 1, nov[featureIndex(t, "is_peak_season")], 1e-9)
	require.InDelta(t, 1, nov[featureIndex(t, "is_post_harvest")], 1e-9)

	mar := b.Vector(h, 30, 75, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.InDelta(t, 1, mar[featureIndex(t, "is_peak_season")], 1e-9)
	require.InDelta(t, 0, mar[featureIndex(t, "is_post_harvest")], 1e-9)

	jul := b.Vector(h, 30, 75, time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC))
	require.InDelta(t, 0, jul[featureIndex(t, "is_peak_season")], 1e-9)
	require.InDelta(t, 0, jul[featureIndex(t, "is_post_harvest")], 1e-9)
}

func TestVectorNeighborhoodCountsAdjacentCells(t *testing.T) {
	b := testBuilder()
	h, err := b.BuildHistory([]detection.FireDetection{
		det(30.05, 75.05, "2024-11-01", "0600", 80, nil, nil),
		det(30.15, 75.05, "2024-11-01", "0700", 80, nil, nil), // adjacent cell
		det(30.55, 75.05, "2024-11-01", "0800", 80, nil, nil), // far away
	})
	require.NoError(t, err)

	vec := b.Vector(h, 30.05, 75.05, time.Date(2024, 11, 10, 0, 0, 0, 0, time.UTC))
	require.InDelta(t, 1, vec[featureIndex(t, "density_cell")], 1e-9)
	require.InDelta(t, 2, vec[featureIndex(t, "density_neighborhood")], 1e-9)
}

func TestBuildTrainingChronologicalWithTargets(t *testing.T) {
	b := testBuilder()
	var dets []detection.FireDetection
	// One burst of activity: seven consecutive days in one cell.
	for day := 1; day <= 7; day++ {
		dets = append(dets, det(30.05, 75.05, time.Date(2024, 11, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), "0600", 80, fptr(330), fptr(12)))
	}
	// A later observation extends the dataset so quiet windows are observable.
	dets = append(dets, det(28.05, 77.05, "2024-12-20", "0600", 70, fptr(320), fptr(8)))

	m, err := b.BuildTraining(dets)
	require.NoError(t, err)
	require.Equal(t, FeatureNames, m.Names)
	require.NotEmpty(t, m.Rows)
	require.Len(t, m.Targets, len(m.Rows))
	require.Len(t, m.Times, len(m.Rows))

	for i := 1; i < len(m.Times); i++ {
		require.False(t, m.Times[i].Before(m.Times[i-1]), "rows must be chronologically ordered")
	}
	for _, target := range m.Targets {
		require.GreaterOrEqual(t, target, 0.0)
		require.LessOrEqual(t, target, 1.0)
	}

	// Day 1 sees the full seven day burst ahead: normalized target 1.0.
	require.InDelta(t, 1.0, m.Targets[0], 1e-9)

	// Quiet counterexamples exist and carry zero targets.
	zeros := 0
	for _, target := range m.Targets {
		if target == 0 {
			zeros++
		}
	}
	require.Greater(t, zeros, 0)
}
