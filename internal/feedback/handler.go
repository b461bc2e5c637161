package feedback

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lumen-backend/internal/jobs"
	"lumen-backend/internal/shared/server/respond"
	"lumen-backend/internal/shared/telemetry"
)

const maxCommentLen = 2000

// Handler serves the feedback endpoint.
type Handler struct {
	Feedback FeedbackRepo
	Jobs     jobs.JobsRepo
}

// NewHandler wires a Handler.
func NewHandler(feedbackRepo FeedbackRepo, jobsRepo jobs.JobsRepo) *Handler {
	return &Handler{Feedback: feedbackRepo, Jobs: jobsRepo}
}

// RegisterRoutes mounts the feedback endpoint on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/feedback", h.create)
}

type createRequest struct {
	JobID   string `json:"job_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type createResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	req.JobID = strings.TrimSpace(req.JobID)
	if req.JobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job_id is required", nil)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "rating must be between 1 and 5", nil)
		return
	}
	req.Comment = strings.TrimSpace(req.Comment)
	if len(req.Comment) > maxCommentLen {
		req.Comment = req.Comment[:maxCommentLen]
	}

	if _, err := h.Jobs.GetByID(c.Request.Context(), req.JobID); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load job", nil)
		return
	}

	fb := Feedback{
		ID:        uuid.NewString(),
		JobID:     req.JobID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Feedback.Create(c.Request.Context(), fb); err != nil {
		telemetry.Error("feedback.create_failed", map[string]any{
			"job_id": req.JobID,
			"error":  err.Error(),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save feedback", nil)
		return
	}

	telemetry.Info("feedback.created", map[string]any{
		"job_id": req.JobID,
		"rating": req.Rating,
	})
	respond.JSON(c, http.StatusCreated, createResponse{
		ID:      fb.ID,
		Message: "Thank you for your feedback.",
	})
}
