package detection

import (
	"time"

	"github.com/golang/geo/s2"
)

const earthRadiusKm = 6371.01

// bucketLevel is the s2 cell level used for the spatial index. Level 13 cells
// have ~1.2km edges, so a candidate's duplicates always sit in its own bucket
// or one of the eight adjacent buckets for every configured tolerance.
const bucketLevel = 13

// Deduplicator decides whether a candidate detection re-reports an already
// known hotspot: same sensor family, acquisition instants within a closed
// time window, and great-circle distance within the family's tolerance.
type Deduplicator struct {
	window      time.Duration
	toleranceKm map[string]float64
}

// NewDeduplicator builds a filter with per-family spatial tolerances in
// kilometers and a shared temporal window.
func NewDeduplicator(window time.Duration, toleranceKm map[string]float64) *Deduplicator {
	tolerances := make(map[string]float64, len(toleranceKm))
	for family, km := range toleranceKm {
		tolerances[family] = km
	}
	return &Deduplicator{window: window, toleranceKm: tolerances}
}

type dedupEntry struct {
	lat    float64
	lon    float64
	family string
	at     time.Time
}

// Index is a spatial bucket index over known detections. It prunes the
// pairwise search to the candidate's own s2 cell and its neighbors before any
// distance computation.
type Index struct {
	buckets map[s2.CellID][]dedupEntry
}

// NewIndex builds the bucket index from already stored detections. Records
// with unparseable acquisition stamps are skipped; they can never match the
// temporal window anyway.
func (d *Deduplicator) NewIndex(existing []FireDetection) *Index {
	idx := &Index{buckets: make(map[s2.CellID][]dedupEntry, len(existing))}
	for _, det := range existing {
		at, err := det.AcquiredAt()
		if err != nil {
			continue
		}
		idx.add(det, at)
	}
	return idx
}

func (idx *Index) add(det FireDetection, at time.Time) {
	cell := bucketCell(det.Latitude, det.Longitude)
	idx.buckets[cell] = append(idx.buckets[cell], dedupEntry{
		lat:    det.Latitude,
		lon:    det.Longitude,
		family: det.Source.Family(),
		at:     at,
	})
}

// IsDuplicate reports whether any indexed detection matches the candidate.
// The time window is a closed interval: a detection exactly at the boundary
// counts as a duplicate.
func (d *Deduplicator) IsDuplicate(idx *Index, candidate FireDetection) bool {
	at, err := candidate.AcquiredAt()
	if err != nil {
		return false
	}
	family := candidate.Source.Family()
	tolerance, ok := d.toleranceKm[family]
	if !ok {
		tolerance = 1.0
	}

	cell := bucketCell(candidate.Latitude, candidate.Longitude)
	probe := append(cell.AllNeighbors(bucketLevel), cell)
	for _, c := range probe {
		for _, entry := range idx.buckets[c] {
			if entry.family != family {
				continue
			}
			delta := at.Sub(entry.at)
			if delta < 0 {
				delta = -delta
			}
			if delta > d.window {
				continue
			}
			if distanceKm(candidate.Latitude, candidate.Longitude, entry.lat, entry.lon) <= tolerance {
				return true
			}
		}
	}
	return false
}

// Filter returns the candidates that represent genuinely new fire events, in
// input order. A candidate is checked against the stored detections and
// against earlier accepted candidates of the same batch; duplicates are
// silently dropped and only counted.
func (d *Deduplicator) Filter(existing, candidates []FireDetection) ([]FireDetection, int) {
	idx := d.NewIndex(existing)
	fresh := make([]FireDetection, 0, len(candidates))
	duplicates := 0
	for _, candidate := range candidates {
		if d.IsDuplicate(idx, candidate) {
			duplicates++
			continue
		}
		fresh = append(fresh, candidate)
		if at, err := candidate.AcquiredAt(); err == nil {
			idx.add(candidate, at)
		}
	}
	return fresh, duplicates
}

func bucketCell(lat, lon float64) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(bucketLevel)
}

func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * earthRadiusKm
}
