package firms

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/firesight-in/firesight/internal/domain/detection"
)

const defaultBaseURL = "https://firms.modaps.eosdis.nasa.gov/api"

// Client fetches active fire detections from the NASA FIRMS area API. The API
// answers CSV with an instrument-specific column set; the client normalizes
// both the MODIS and VIIRS shapes.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds an API client. An empty timeout falls back to 30 seconds.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch pulls detections for one source over the area, covering dayRange days
// ending at endDate (YYYY-MM-DD).
func (c *Client) Fetch(ctx context.Context, source detection.Source, area detection.Region, dayRange int, endDate string) ([]detection.FireDetection, error) {
	// Area spec is west,south,east,north.
	coords := fmt.Sprintf("%s,%s,%s,%s",
		formatCoord(area.LonMin), formatCoord(area.LatMin),
		formatCoord(area.LonMax), formatCoord(area.LatMax))
	endpoint := fmt.Sprintf("%s/area/csv/%s/%s/%s/%d/%s", c.baseURL, c.apiKey, source, coords, dayRange, endDate)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build firms request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firms request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("firms request error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	records, err := parseCSV(resp.Body, source)
	if err != nil {
		return nil, fmt.Errorf("decode firms response: %w", err)
	}
	return records, nil
}

func parseCSV(r io.Reader, source detection.Source) ([]detection.FireDetection, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["latitude"]; !ok {
		return nil, fmt.Errorf("unexpected header %q", strings.Join(header, ","))
	}

	var out []detection.FireDetection
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		det, ok := parseRow(row, cols, source)
		if !ok {
			continue
		}
		out = append(out, det)
	}
	return out, nil
}

func parseRow(row []string, cols map[string]int, source detection.Source) (detection.FireDetection, bool) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	lat, err := strconv.ParseFloat(field("latitude"), 64)
	if err != nil {
		return detection.FireDetection{}, false
	}
	lon, err := strconv.ParseFloat(field("longitude"), 64)
	if err != nil {
		return detection.FireDetection{}, false
	}
	acqDate := field("acq_date")
	if acqDate == "" {
		return detection.FireDetection{}, false
	}

	det := detection.FireDetection{
		Latitude:   lat,
		Longitude:  lon,
		Confidence: parseConfidence(field("confidence")),
		AcqDate:    acqDate,
		AcqTime:    padClock(field("acq_time")),
		Satellite:  field("satellite"),
		Instrument: field("instrument"),
		Version:    field("version"),
		DayNight:   field("daynight"),
		Source:     source,
	}
	// MODIS reports brightness/bright_t31; VIIRS the I-band equivalents.
	det.Brightness = optFloat(field("brightness"), field("bright_ti4"))
	det.BrightT31 = optFloat(field("bright_t31"), field("bright_ti5"))
	det.Scan = optFloat(field("scan"))
	det.Track = optFloat(field("track"))
	det.FRP = optFloat(field("frp"))
	return det, true
}

// parseConfidence accepts both the numeric MODIS scale and the VIIRS
// low/nominal/high letters.
func parseConfidence(raw string) int {
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	switch strings.ToLower(raw) {
	case "h", "high":
		return 90
	case "n", "nominal":
		return 50
	case "l", "low":
		return 30
	default:
		return 0
	}
}

func padClock(raw string) string {
	if raw == "" {
		return ""
	}
	for len(raw) < 4 {
		raw = "0" + raw
	}
	return raw
}

func optFloat(values ...string) *float64 {
	for _, raw := range values {
		if raw == "" {
			continue
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return &v
		}
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ detection.FeedClient = (*Client)(nil)
