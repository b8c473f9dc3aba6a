package prediction

import (
	"fmt"
	"sort"
	"time"

	"github.com/firesight-in/firesight/internal/domain/detection"
)

// FeatureNames lists the model feature columns in order. The order is part of
// the trained artifact: vectors handed to Predict must match it.
var FeatureNames = []string{
	"latitude",
	"longitude",
	"month",
	"day_of_year",
	"hour",
	"density_cell",
	"density_neighborhood",
	"days_since_last",
	"brightness_mean",
	"confidence_mean",
	"frp_mean",
	"is_peak_season",
	"is_post_harvest",
}

// Neutral fallbacks used when the whole dataset lacks a metric. Cells without
// their own history fall back to the dataset-wide mean first; these constants
// only matter for pathological inputs.
const (
	neutralBrightness = 330.0
	neutralConfidence = 60.0
	neutralFRP        = 15.0

	// daysSinceLastCap is the recency value for cells that never burned.
	daysSinceLastCap = 365.0
)

// Stubble-burning season months for the monitored region: the post-monsoon
// paddy harvest (Oct-Dec) and the spring wheat harvest (Mar-May).
var (
	peakSeasonMonths  = map[time.Month]bool{time.March: true, time.April: true, time.May: true, time.October: true, time.November: true, time.December: true}
	postHarvestMonths = map[time.Month]bool{time.April: true, time.May: true, time.November: true, time.December: true}
)

// FeatureConfig parameterizes the grid feature builder.
type FeatureConfig struct {
	// Area is the full monitored region over which history is aggregated.
	Area Bounds
	// HistoryCellSize is the aggregation resolution, independent from the
	// prediction grid size.
	HistoryCellSize    float64
	TrailingWindowDays int
	HorizonDays        int
}

// FeatureBuilder converts historical detections into feature vectors, for
// both training and prediction.
type FeatureBuilder struct {
	cfg FeatureConfig
}

// NewFeatureBuilder constructs the builder.
func NewFeatureBuilder(cfg FeatureConfig) *FeatureBuilder {
	return &FeatureBuilder{cfg: cfg}
}

type cellSample struct {
	at         time.Time
	brightness *float64
	confidence float64
	frp        *float64
}

type cellSeries struct {
	times []time.Time

	// Prefix sums over the chronologically sorted samples, length len+1, so
	// aggregates "as of t" come from binary search instead of rescans.
	cumBrightness  []float64
	cumBrightnessN []int
	cumConfidence  []float64
	cumFRP         []float64
	cumFRPN        []int
}

// countBetween counts samples with from <= t < to.
func (c *cellSeries) countBetween(from, to time.Time) int {
	lo := sort.Search(len(c.times), func(i int) bool { return !c.times[i].Before(from) })
	hi := sort.Search(len(c.times), func(i int) bool { return !c.times[i].Before(to) })
	return hi - lo
}

// statsBefore returns attribute sums over samples strictly before t.
func (c *cellSeries) statsBefore(t time.Time) (bSum float64, bN int, cSum float64, cN int, fSum float64, fN int) {
	idx := sort.Search(len(c.times), func(i int) bool { return !c.times[i].Before(t) })
	return c.cumBrightness[idx], c.cumBrightnessN[idx], c.cumConfidence[idx], idx, c.cumFRP[idx], c.cumFRPN[idx]
}

// lastBefore returns the most recent sample instant strictly before t.
func (c *cellSeries) lastBefore(t time.Time) (time.Time, bool) {
	idx := sort.Search(len(c.times), func(i int) bool { return !c.times[i].Before(t) })
	if idx == 0 {
		return time.Time{}, false
	}
	return c.times[idx-1], true
}

// History is an immutable spatial-temporal index over stored detections,
// shared by training sample assembly and per-cell prediction vectors.
type History struct {
	grid  Grid
	cells map[int]*cellSeries

	globalBrightness float64
	globalConfidence float64
	globalFRP        float64
	maxTime          time.Time
}

// BuildHistory indexes detections onto the history grid. Records outside the
// area or with unparseable acquisition stamps are skipped.
func (b *FeatureBuilder) BuildHistory(dets []detection.FireDetection) (*History, error) {
	grid, err := NewGrid(b.cfg.Area, b.cfg.HistoryCellSize)
	if err != nil {
		return nil, fmt.Errorf("history grid: %w", err)
	}

	raw := make(map[int][]cellSample)
	var (
		bSum float64
		bN   int
		cSum float64
		cN   int
		fSum float64
		fN   int
		last time.Time
	)
	for _, det := range dets {
		at, err := det.AcquiredAt()
		if err != nil {
			continue
		}
		row, col, ok := grid.IndexOf(det.Latitude, det.Longitude)
		if !ok {
			continue
		}
		key := row*grid.Cols() + col
		raw[key] = append(raw[key], cellSample{
			at:         at,
			brightness: det.Brightness,
			confidence: float64(det.Confidence),
			frp:        det.FRP,
		})
		if det.Brightness != nil {
			bSum += *det.Brightness
			bN++
		}
		cSum += float64(det.Confidence)
		cN++
		if det.FRP != nil {
			fSum += *det.FRP
			fN++
		}
		if at.After(last) {
			last = at
		}
	}

	h := &History{
		grid:             grid,
		cells:            make(map[int]*cellSeries, len(raw)),
		globalBrightness: neutralBrightness,
		globalConfidence: neutralConfidence,
		globalFRP:        neutralFRP,
		maxTime:          last,
	}
	if bN > 0 {
		h.globalBrightness = bSum / float64(bN)
	}
	if cN > 0 {
		h.globalConfidence = cSum / float64(cN)
	}
	if fN > 0 {
		h.globalFRP = fSum / float64(fN)
	}

	for key, samples := range raw {
		sort.Slice(samples, func(i, j int) bool { return samples[i].at.Before(samples[j].at) })
		series := &cellSeries{
			times:          make([]time.Time, len(samples)),
			cumBrightness:  make([]float64, len(samples)+1),
			cumBrightnessN: make([]int, len(samples)+1),
			cumConfidence:  make([]float64, len(samples)+1),
			cumFRP:         make([]float64, len(samples)+1),
			cumFRPN:        make([]int, len(samples)+1),
		}
		for i, sample := range samples {
			series.times[i] = sample.at
			series.cumBrightness[i+1] = series.cumBrightness[i]
			series.cumBrightnessN[i+1] = series.cumBrightnessN[i]
			if sample.brightness != nil {
				series.cumBrightness[i+1] += *sample.brightness
				series.cumBrightnessN[i+1]++
			}
			series.cumConfidence[i+1] = series.cumConfidence[i] + sample.confidence
			series.cumFRP[i+1] = series.cumFRP[i]
			series.cumFRPN[i+1] = series.cumFRPN[i]
			if sample.frp != nil {
				series.cumFRP[i+1] += *sample.frp
				series.cumFRPN[i+1]++
			}
		}
		h.cells[key] = series
	}
	return h, nil
}

func (h *History) seriesAt(row, col int) *cellSeries {
	if row < 0 || row >= h.grid.Rows() || col < 0 || col >= h.grid.Cols() {
		return nil
	}
	return h.cells[row*h.grid.Cols()+col]
}

// neighborhoodCount sums detections over the 3x3 block centered on the cell.
func (h *History) neighborhoodCount(row, col int, from, to time.Time) int {
	total := 0
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if series := h.seriesAt(row+dr, col+dc); series != nil {
				total += series.countBetween(from, to)
			}
		}
	}
	return total
}

// Vector builds the feature vector for a point at a given instant, using only
// history strictly before that instant.
func (b *FeatureBuilder) Vector(h *History, lat, lon float64, at time.Time) []float64 {
	windowStart := at.AddDate(0, 0, -b.cfg.TrailingWindowDays)

	densityCell := 0.0
	densityNeighborhood := 0.0
	daysSinceLast := daysSinceLastCap
	brightness := h.globalBrightness
	confidence := h.globalConfidence
	frp := h.globalFRP

	if row, col, ok := h.grid.IndexOf(lat, lon); ok {
		if series := h.seriesAt(row, col); series != nil {
			densityCell = float64(series.countBetween(windowStart, at))
			if bSum, bN, cSum, cN, fSum, fN := series.statsBefore(at); cN > 0 {
				confidence = cSum / float64(cN)
				if bN > 0 {
					brightness = bSum / float64(bN)
				}
				if fN > 0 {
					frp = fSum / float64(fN)
				}
			}
			if lastAt, ok := series.lastBefore(at); ok {
				if days := at.Sub(lastAt).Hours() / 24; days < daysSinceLast {
					daysSinceLast = days
				}
			}
		}
		densityNeighborhood = float64(h.neighborhoodCount(row, col, windowStart, at))
	}

	return []float64{
		lat,
		lon,
		float64(at.Month()),
		float64(at.YearDay()),
		float64(at.Hour()),
		densityCell,
		densityNeighborhood,
		daysSinceLast,
		brightness,
		confidence,
		frp,
		boolFeature(peakSeasonMonths[at.Month()]),
		boolFeature(postHarvestMonths[at.Month()]),
	}
}

// Matrix is the rectangular training input: one row per (cell, day) sample,
// sorted chronologically so callers can split without leaking future data.
type Matrix struct {
	Names   []string
	Rows    [][]float64
	Targets []float64
	Times   []time.Time
}

// BuildTraining assembles the training matrix. Each day a cell saw activity
// becomes one positive sample (target = normalized fire count over the next
// horizon); a quiet day two horizons later contributes a zero sample so the
// regression also learns absence.
func (b *FeatureBuilder) BuildTraining(dets []detection.FireDetection) (*Matrix, error) {
	h, err := b.BuildHistory(dets)
	if err != nil {
		return nil, err
	}

	horizon := b.cfg.HorizonDays
	m := &Matrix{Names: FeatureNames}

	for key, series := range h.cells {
		row := key / h.grid.Cols()
		col := key % h.grid.Cols()
		cell := h.grid.CellAt(row, col)

		seen := make(map[string]struct{})
		for _, at := range series.times {
			day := at.Truncate(24 * time.Hour)
			dayKey := day.Format("2006-01-02")
			if _, ok := seen[dayKey]; ok {
				continue
			}
			seen[dayKey] = struct{}{}

			m.appendSample(b, h, cell, day, series, horizon)

			// Counterexample sample: the same cell two horizons later, kept
			// only when the future window is fully observed and quiet.
			quietDay := day.AddDate(0, 0, 2*horizon)
			if !quietDay.AddDate(0, 0, horizon).After(h.maxTime) &&
				series.countBetween(quietDay, quietDay.AddDate(0, 0, horizon)) == 0 {
				m.appendSample(b, h, cell, quietDay, series, horizon)
			}
		}
	}

	order := make([]int, len(m.Times))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return m.Times[order[i]].Before(m.Times[order[j]]) })
	sorted := &Matrix{
		Names:   m.Names,
		Rows:    make([][]float64, len(order)),
		Targets: make([]float64, len(order)),
		Times:   make([]time.Time, len(order)),
	}
	for i, idx := range order {
		sorted.Rows[i] = m.Rows[idx]
		sorted.Targets[i] = m.Targets[idx]
		sorted.Times[i] = m.Times[idx]
	}
	return sorted, nil
}

func (m *Matrix) appendSample(b *FeatureBuilder, h *History, cell Cell, day time.Time, series *cellSeries, horizon int) {
	future := series.countBetween(day, day.AddDate(0, 0, horizon))
	target := float64(future) / float64(horizon)
	if target > 1 {
		target = 1
	}
	m.Rows = append(m.Rows, b.Vector(h, cell.Latitude, cell.Longitude, day))
	m.Targets = append(m.Targets, target)
	m.Times = append(m.Times, day)
}

func boolFeature(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
