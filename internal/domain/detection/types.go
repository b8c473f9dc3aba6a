package detection

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the upstream collection a detection came from. Values are
// canonicalized once at the ingestion boundary and never compared as raw
// strings downstream.
type Source string

const (
	SourceMODIS       Source = "MODIS_C6_1"
	SourceVIIRSSNPP   Source = "VIIRS_SNPP_C2"
	SourceVIIRSNOAA20 Source = "VIIRS_NOAA20_C2"
	SourceUserReport  Source = "USER_REPORTED"
)

// Families group sources by sensor resolution. Deduplication only compares
// detections within the same family.
const (
	FamilyMODIS = "MODIS"
	FamilyVIIRS = "VIIRS"
	FamilyUser  = "USER_REPORTED"
)

var sourceAliases = map[string]Source{
	"MODIS_C6_1":      SourceMODIS,
	"MODIS":           SourceMODIS,
	"VIIRS_SNPP_C2":   SourceVIIRSSNPP,
	"VIIRS_SNPP":      SourceVIIRSSNPP,
	"VIIRS":           SourceVIIRSSNPP,
	"VIIRS_NOAA20_C2": SourceVIIRSNOAA20,
	"VIIRS_NOAA20":    SourceVIIRSNOAA20,
	"USER_REPORTED":   SourceUserReport,
}

// ParseSource canonicalizes a raw source label, accepting known aliases.
func ParseSource(raw string) (Source, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if src, ok := sourceAliases[key]; ok {
		return src, nil
	}
	return "", fmt.Errorf("unknown source %q", raw)
}

// Family returns the sensor family bucket of the source.
func (s Source) Family() string {
	switch s {
	case SourceMODIS:
		return FamilyMODIS
	case SourceVIIRSSNPP, SourceVIIRSNOAA20:
		return FamilyVIIRS
	default:
		return FamilyUser
	}
}

// IsFeed reports whether the source can be requested from the satellite feed.
func (s Source) IsFeed() bool {
	return s != SourceUserReport
}

// Region is a latitude/longitude bounding box.
type Region struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// Contains reports whether the point falls inside the box (inclusive).
func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.LatMin && lat <= r.LatMax && lon >= r.LonMin && lon <= r.LonMax
}

// FireDetection is a single satellite or user-reported hotspot observation.
// Records are append-only: once stored they are never mutated or deleted.
type FireDetection struct {
	ID         int64    `json:"id"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Confidence int      `json:"confidence"`
	Brightness *float64 `json:"brightness,omitempty"`
	Scan       *float64 `json:"scan,omitempty"`
	Track      *float64 `json:"track,omitempty"`
	// AcqDate is the acquisition calendar date (YYYY-MM-DD); AcqTime the HHMM
	// clock as encoded by the feed, possibly empty for sparse records.
	AcqDate    string    `json:"acq_date"`
	AcqTime    string    `json:"acq_time,omitempty"`
	Satellite  string    `json:"satellite"`
	Instrument string    `json:"instrument"`
	Version    string    `json:"version,omitempty"`
	BrightT31  *float64  `json:"bright_t31,omitempty"`
	FRP        *float64  `json:"frp,omitempty"`
	DayNight   string    `json:"daynight,omitempty"`
	Source     Source    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// AcquiredAt combines AcqDate and AcqTime into one UTC instant. Records
// without a time resolve to midnight of their acquisition date.
func (d FireDetection) AcquiredAt() (time.Time, error) {
	day, err := time.Parse("2006-01-02", d.AcqDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse acq_date %q: %w", d.AcqDate, err)
	}
	clock := strings.TrimSpace(d.AcqTime)
	if clock == "" {
		return day, nil
	}
	for len(clock) < 4 {
		clock = "0" + clock
	}
	t, err := time.Parse("1504", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse acq_time %q: %w", d.AcqTime, err)
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

// QueryFilter narrows detection queries. Zero values mean "no constraint".
type QueryFilter struct {
	StartDate     string
	EndDate       string
	Sources       []Source
	MinConfidence int
	Bounds        *Region
	Limit         int
}

// RefreshRequest asks the pipeline to pull fresh feed data.
type RefreshRequest struct {
	Sources   []string
	StartDate string
	EndDate   string
}

// RefreshSummary reports the outcome of one refresh run. Duplicate drops are
// visible only through these counts, never as an error.
type RefreshSummary struct {
	NewFires            int      `json:"new_fires"`
	TotalFires          int      `json:"total_fires"`
	RejectedOutOfRegion int      `json:"rejected_out_of_region"`
	Sources             []Source `json:"sources"`
	DateRange           string   `json:"date_range"`
}

// UserReport is an unauthenticated fire sighting submitted by the public.
type UserReport struct {
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Description     string  `json:"description,omitempty"`
	ReporterName    string  `json:"reporter_name,omitempty"`
	ReporterContact string  `json:"reporter_contact,omitempty"`
}

// StatisticsRequest selects the aggregation window and dimension.
type StatisticsRequest struct {
	Period  string
	GroupBy string
}

// StatisticsGroup is one aggregate bucket.
type StatisticsGroup struct {
	Key           string  `json:"key"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgBrightness float64 `json:"avg_brightness,omitempty"`
	AvgFRP        float64 `json:"avg_frp,omitempty"`
}

// Statistics is the aggregate response for a period/dimension pair.
type Statistics struct {
	Period     string            `json:"time_period"`
	GroupBy    string            `json:"group_by"`
	TotalFires int               `json:"total_fires"`
	DateRange  string            `json:"date_range"`
	Groups     []StatisticsGroup `json:"groups"`
}
