package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldlens/fieldlens/internal/api/dto"
	"github.com/fieldlens/fieldlens/internal/api/storage"
	"github.com/fieldlens/fieldlens/internal/results"
	"github.com/gin-gonic/gin"
)

// GetSeries handles GET /api/v1/farms/:farm_id/series
// Returns the computed time series of a farm, optionally narrowed by
// variable and date range.
func (h *FarmHandler) GetSeries(c *gin.Context) {
	farmID := c.Param("farm_id")

	var req dto.SeriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	filter := storage.SeriesFilter{Variable: req.Variable}

	if req.From != "" {
		from, err := time.Parse(dateLayout, req.From)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "from must be formatted as YYYY-MM-DD",
			})
			return
		}
		filter.From = &from
	}

	if req.To != "" {
		to, err := time.Parse(dateLayout, req.To)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "to must be formatted as YYYY-MM-DD",
			})
			return
		}
		filter.To = &to
	}

	points, err := h.store.Series(c.Request.Context(), farmID, filter)
	if err != nil {
		h.logger.Error("Failed to query series",
			slog.String("farm_id", farmID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to query series",
		})
		return
	}

	c.JSON(http.StatusOK, dto.SeriesResponse{
		FarmID: farmID,
		Points: toPointDTOs(points),
	})
}

// GetLatest handles GET /api/v1/farms/:farm_id/latest
// Returns the most recent point per variable.
func (h *FarmHandler) GetLatest(c *gin.Context) {
	farmID := c.Param("farm_id")

	points, err := h.store.Latest(c.Request.Context(), farmID)
	if err != nil {
		h.logger.Error("Failed to query latest points",
			slog.String("farm_id", farmID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to query latest points",
		})
		return
	}

	c.JSON(http.StatusOK, dto.LatestResponse{
		FarmID: farmID,
		Latest: toPointDTOs(points),
	})
}

// GetSummary handles GET /api/v1/farms/:farm_id/summary
// Returns per-variable aggregates over the points that carry a value.
func (h *FarmHandler) GetSummary(c *gin.Context) {
	farmID := c.Param("farm_id")
	variable := c.Query("variable")

	summaries, err := h.store.Summary(c.Request.Context(), farmID, variable)
	if err != nil {
		h.logger.Error("Failed to query summary",
			slog.String("farm_id", farmID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to query summary",
		})
		return
	}

	resp := dto.SummaryResponse{
		FarmID:    farmID,
		Variables: make([]dto.VariableSummaryDTO, len(summaries)),
	}
	for i, s := range summaries {
		resp.Variables[i] = dto.VariableSummaryDTO{
			Variable: s.Variable,
			Count:    s.Count,
			Mean:     s.Mean,
			Min:      s.Min,
			Max:      s.Max,
		}
	}

	c.JSON(http.StatusOK, resp)
}

func toPointDTOs(points []results.Point) []dto.PointDTO {
	out := make([]dto.PointDTO, len(points))
	for i, p := range points {
		out[i] = dto.PointDTO{
			Variable:    p.Variable,
			PeriodStart: p.PeriodStart.Format(dateLayout),
			PeriodEnd:   p.PeriodEnd.Format(dateLayout),
			Value:       p.Value,
			QualityFlag: p.Flag,
			ComputedAt:  p.ComputedAt.Format(time.RFC3339),
		}
	}
	return out
}
