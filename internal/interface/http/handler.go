package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/firesight-in/firesight/internal/domain/detection"
	"github.com/firesight-in/firesight/internal/domain/prediction"
	apperrors "github.com/firesight-in/firesight/pkg/errors"
)

// Handler wires the HTTP transport to domain services.
type Handler struct {
	detectionSvc  detection.Service
	predictionSvc prediction.Service
	logger        *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(detectionSvc detection.Service, predictionSvc prediction.Service, logger *slog.Logger) *Handler {
	return &Handler{
		detectionSvc:  detectionSvc,
		predictionSvc: predictionSvc,
		logger:        logger.With("component", "http.handler"),
	}
}

// Health answers liveness probes.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type refreshRequest struct {
	Sources   []string `json:"sources"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
}

// RefreshFires pulls fresh feed data into the store. The request body is
// optional; an empty body refreshes the default sources over the last week.
func (h *Handler) RefreshFires(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", errMessage(err), err))
			return
		}
	}

	summary, err := h.detectionSvc.Refresh(c.Request.Context(), detection.RefreshRequest{
		Sources:   req.Sources,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, refreshResponse{Status: "success", RefreshSummary: summary})
}

type refreshResponse struct {
	Status string `json:"status"`
	detection.RefreshSummary
}

// ListFires returns stored detections matching the query parameters.
func (h *Handler) ListFires(c *gin.Context) {
	filter := detection.QueryFilter{
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}

	if raw := c.Query("source"); raw != "" {
		for _, label := range strings.Split(raw, ",") {
			src, err := detection.ParseSource(label)
			if err != nil {
				abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", errMessage(err), err))
				return
			}
			filter.Sources = append(filter.Sources, src)
		}
	}

	var err error
	if filter.MinConfidence, err = queryInt(c, "min_confidence"); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", errMessage(err), err))
		return
	}
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", errMessage(err), err))
		return
	}
	bounds, err := queryRegion(c)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", errMessage(err), err))
		return
	}
	filter.Bounds = bounds

	fires, err := h.detectionSvc.Query(c.Request.Context(), filter)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(fires), "fires": fires})
}

// RecentFires returns the latest detections by acquisition time.
func (h *Handler) RecentFires(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", errMessage(err), err))
		return
	}
	fires, err := h.detectionSvc.Recent(c.Request.Context(), limit)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(fires), "fires": fires})
}

// ReportFire accepts a citizen fire sighting.
func (h *Handler) ReportFire(c *gin.Context) {
	var report detection.UserReport
	if err := c.ShouldBindJSON(&report); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", errMessage(err), err))
		return
	}
	if report.Latitude < -90 || report.Latitude > 90 || report.Longitude < -180 || report.Longitude > 180 {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", "coordinates out of range", nil))
		return
	}

	id, err := h.detectionSvc.Report(c.Request.Context(), report)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"fire_id": id, "status": "received"})
}

// GetStatistics aggregates stored detections over a period.
func (h *Handler) GetStatistics(c *gin.Context) {
	stats, err := h.detectionSvc.Statistics(c.Request.Context(), detection.StatisticsRequest{
		Period:  c.Query("time_period"),
		GroupBy: c.Query("group_by"),
	})
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// TrainModel fits a fresh risk model from stored detections.
func (h *Handler) TrainModel(c *gin.Context) {
	result, err := h.predictionSvc.Train(c.Request.Context())
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type generateRequest struct {
	LatMin   float64 `json:"lat_min"`
	LatMax   float64 `json:"lat_max"`
	LonMin   float64 `json:"lon_min"`
	LonMax   float64 `json:"lon_max"`
	GridSize float64 `json:"grid_size"`
}

// GeneratePredictions runs the model over a grid and stores the results. An
// empty body uses the configured region and default grid size.
func (h *Handler) GeneratePredictions(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", errMessage(err), err))
			return
		}
	}

	summary, err := h.predictionSvc.Generate(c.Request.Context(), prediction.GenerateRequest{
		Bounds: prediction.Bounds{
			LatMin: req.LatMin,
			LatMax: req.LatMax,
			LonMin: req.LonMin,
			LonMax: req.LonMax,
		},
		GridSize: req.GridSize,
	})
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, generateResponse{Status: "success", GenerateSummary: summary})
}

type generateResponse struct {
	Status string `json:"status"`
	prediction.GenerateSummary
}

// ListPredictions returns stored risk predictions.
func (h *Handler) ListPredictions(c *gin.Context) {
	filter := prediction.Filter{ModelVersion: c.Query("model_version")}

	if raw := c.Query("risk_level"); raw != "" {
		level, ok := prediction.ParseRiskLevel(strings.ToUpper(raw))
		if !ok {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", "unknown risk_level "+strconv.Quote(raw), nil))
			return
		}
		filter.RiskLevel = &level
	}

	var err error
	if filter.MinProbability, err = queryFloat(c, "min_probability"); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", errMessage(err), err))
		return
	}
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", errMessage(err), err))
		return
	}
	region, err := queryRegion(c)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "validation_error", errMessage(err), err))
		return
	}
	if region != nil {
		filter.Bounds = &prediction.Bounds{
			LatMin: region.LatMin,
			LatMax: region.LatMax,
			LonMin: region.LonMin,
			LonMax: region.LonMax,
		}
	}

	predictions, err := h.predictionSvc.Query(c.Request.Context(), filter)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(predictions), "predictions": predictions})
}

// abortDomainError translates domain error codes into HTTP statuses.
func abortDomainError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := apperrors.Code(err)
	switch code {
	case apperrors.CodeValidation:
		status = http.StatusBadRequest
	case apperrors.CodeFeedUnavailable:
		status = http.StatusBadGateway
	case apperrors.CodeInsufficientData:
		status = http.StatusUnprocessableEntity
	case apperrors.CodeModelNotTrained:
		status = http.StatusConflict
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	default:
		code = "internal_error"
	}
	abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("malformed %s %q", name, raw)
	}
	return v, nil
}

func queryFloat(c *gin.Context, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed %s %q", name, raw)
	}
	return v, nil
}

// queryRegion parses the optional lat_min/lat_max/lon_min/lon_max quartet.
// Either all four are present or none.
func queryRegion(c *gin.Context) (*detection.Region, error) {
	names := []string{"lat_min", "lat_max", "lon_min", "lon_max"}
	present := 0
	values := make([]float64, len(names))
	for i, name := range names {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed %s %q", name, raw)
		}
		values[i] = v
		present++
	}
	if present == 0 {
		return nil, nil
	}
	if present != len(names) {
		return nil, fmt.Errorf("bounding box requires all of %s", strings.Join(names, ", "))
	}
	return &detection.Region{LatMin: values[0], LatMax: values[1], LonMin: values[2], LonMax: values[3]}, nil
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
