package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fieldlens/fieldlens/internal/api/dto"
	"github.com/fieldlens/fieldlens/internal/geometry"
	"github.com/fieldlens/fieldlens/internal/queue"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// SubmitJob handles POST /api/v1/jobs
// Accepts a vegetation-index processing request and enqueues it. Duplicate
// in-flight submissions return the existing job with 200 instead of 202.
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "start_date must be formatted as YYYY-MM-DD",
		})
		return
	}

	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "end_date must be formatted as YYYY-MM-DD",
		})
		return
	}

	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "end_date must not precede start_date",
		})
		return
	}

	if len(req.Variables) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "at least one variable is required",
		})
		return
	}

	boundary, err := parseBoundary(&req)
	if err != nil {
		h.logger.Error("Rejected farm boundary",
			slog.String("farm_id", req.FarmID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	payload := queue.Payload{
		FarmID:    req.FarmID,
		Geometry:  boundary,
		Variables: req.Variables,
		StartDate: start,
		EndDate:   end,
	}

	job, deduped, err := h.queue.Enqueue(c.Request.Context(), payload, queue.EnqueueOptions{
		Priority:    req.Priority,
		MaxAttempts: h.maxAttempts,
	})
	if err != nil {
		h.logger.Error("Failed to enqueue job",
			slog.String("farm_id", req.FarmID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	if !deduped && h.notifier != nil {
		// Best effort: workers poll regardless, the broker only shortens
		// the idle wait.
		if err := h.notifier.PublishJobReady(c.Request.Context(), job.ID); err != nil {
			h.logger.Warn("Failed to publish job-ready notification",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	status := http.StatusAccepted
	if deduped {
		status = http.StatusOK
	}

	c.JSON(status, dto.SubmitJobResponse{
		JobID:        job.ID,
		State:        string(job.State),
		Deduplicated: deduped,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
	})
}

// parseBoundary resolves the request boundary from either the coordinate
// array or the inline KML document.
func parseBoundary(req *dto.SubmitJobRequest) (geometry.Polygon, error) {
	hasPairs := len(req.Boundary) > 0
	hasKML := strings.TrimSpace(req.KML) != ""

	switch {
	case hasPairs && hasKML:
		return geometry.Polygon{}, errors.New("provide either boundary or kml, not both")
	case hasPairs:
		poly, err := geometry.FromPairs(req.Boundary)
		if err != nil {
			return geometry.Polygon{}, err
		}
		return poly, poly.Validate()
	case hasKML:
		poly, err := geometry.ParseKML(strings.NewReader(req.KML))
		if err != nil {
			return geometry.Polygon{}, err
		}
		return poly, poly.Validate()
	default:
		return geometry.Polygon{}, errors.New("a farm boundary is required: set boundary or kml")
	}
}

// GetJobStatus handles GET /api/v1/jobs/:job_id
// Returns the queue-side record of a job.
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.queue.Status(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job status",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job status",
		})
		return
	}

	resp := dto.JobStatusResponse{
		JobID:           job.ID,
		State:           string(job.State),
		Priority:        job.Priority,
		AttemptCount:    job.AttemptCount,
		MaxAttempts:     job.MaxAttempts,
		CancelRequested: job.CancelRequested,
		LastError:       job.LastError,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.Format(time.RFC3339),
	}
	if !job.NextEligibleAt.IsZero() {
		resp.NextEligibleAt = job.NextEligibleAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Cancels a pending job immediately, or flags a leased job so its worker
// aborts at the next heartbeat.
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	err := h.queue.Cancel(c.Request.Context(), jobID)
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	case errors.Is(err, queue.ErrNotCancelable):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Job already reached a terminal state",
		})
		return
	case err != nil:
		h.logger.Error("Failed to cancel job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel job",
		})
		return
	}

	h.logger.Info("Cancellation requested", slog.String("job_id", jobID))

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  jobID,
		"message": "cancellation requested",
	})
}
