package jobs

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"lumen-backend/internal/cache"
	"lumen-backend/internal/explain"
	"lumen-backend/internal/queue"
	"lumen-backend/internal/results"
	"lumen-backend/internal/shared/server/respond"
	"lumen-backend/internal/shared/storage/object"
	"lumen-backend/internal/shared/telemetry"
	"lumen-backend/internal/shared/util"
)

const estimatedTimeSec = 40

// Handler serves the job-facing HTTP API: upload, status, result.
type Handler struct {
	Jobs    JobsRepo
	Results results.ResultsRepo
	Cache   cache.ResultCache
	Store   object.ObjectStore
	Queue   queue.Queue

	MaxFileSizeBytes  int64
	AllowedExtensions map[string]struct{}
	CacheTTL          time.Duration
}

// NewHandler wires a Handler. allowedExts entries are lowercase
// extensions including the dot, e.g. ".pdf".
func NewHandler(jobsRepo JobsRepo, resultsRepo results.ResultsRepo, resultCache cache.ResultCache, store object.ObjectStore, q queue.Queue, maxFileSizeBytes int64, allowedExts []string, cacheTTL time.Duration) *Handler {
	extSet := make(map[string]struct{}, len(allowedExts))
	for _, ext := range allowedExts {
		extSet[strings.ToLower(strings.TrimSpace(ext))] = struct{}{}
	}
	return &Handler{
		Jobs:              jobsRepo,
		Results:           resultsRepo,
		Cache:             resultCache,
		Store:             store,
		Queue:             q,
		MaxFileSizeBytes:  maxFileSizeBytes,
		AllowedExtensions: extSet,
		CacheTTL:          cacheTTL,
	}
}

// RegisterRoutes mounts the job endpoints on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/upload", h.upload)
	rg.GET("/status/:job_id", h.status)
	rg.GET("/result/:job_id", h.result)
}

type uploadResponse struct {
	JobID            string `json:"job_id"`
	Status           string `json:"status"`
	Message          string `json:"message"`
	EstimatedTimeSec int    `json:"estimated_time_sec"`
}

func (h *Handler) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}

	name, err := util.SanitizeFileName(fileHeader.Filename)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid file name", nil)
		return
	}
	ext := util.FileExt(name)
	if _, ok := h.AllowedExtensions[ext]; !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file type is not allowed", nil)
		return
	}
	if fileHeader.Size > h.MaxFileSizeBytes {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file exceeds size limit", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read upload", nil)
		return
	}
	defer file.Close()

	head := make([]byte, 8)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read upload", nil)
		return
	}
	head = head[:n]
	if !magicBytesMatch(ext, head) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file content does not match its extension", nil)
		return
	}

	jobID := NewJobID()
	storageKey := "uploads/" + jobID + ext
	body := io.MultiReader(bytes.NewReader(head), file)
	contentType := fileHeader.Header.Get("Content-Type")
	if _, err := h.Store.SaveWithKey(c.Request.Context(), storageKey, contentType, body); err != nil {
		telemetry.Error("upload.store_failed", map[string]any{
			"job_id": jobID,
			"error":  err.Error(),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store file", nil)
		return
	}

	now := time.Now().UTC()
	job := Job{
		ID:        jobID,
		FilePath:  storageKey,
		Locale:    strings.TrimSpace(c.PostForm("locale")),
		Context:   strings.TrimSpace(c.PostForm("context")),
		Status:    StatusQueued,
		Stage:     StageUploading,
		Progress:  ProgressByStage[StageUploading],
		CreatedAt: now,
		UpdatedAt: now,
	}
	if job.Locale == "" {
		job.Locale = "en-IN"
	}
	if job.Context == "" {
		job.Context = "auto"
	}
	if err := h.Jobs.Create(c.Request.Context(), job); err != nil {
		telemetry.Error("upload.job_create_failed", map[string]any{
			"job_id": jobID,
			"error":  err.Error(),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create job", nil)
		return
	}

	pushed, err := h.Queue.Push(c.Request.Context(), jobID)
	if err != nil || !pushed {
		telemetry.Error("upload.enqueue_failed", map[string]any{
			"job_id": jobID,
			"pushed": pushed,
			"error":  errString(err),
		})
		// Nothing will ever pop this job, so fail it rather than leave
		// the client polling a queued row forever.
		msg := ErrorKindInternal + ": processing queue is full"
		if uerr := h.Jobs.UpdateState(c.Request.Context(), jobID, StatusFailed, StageFailed, ProgressByStage[StageFailed], &msg); uerr != nil {
			telemetry.Error("upload.fail_state_update_failed", map[string]any{
				"job_id": jobID,
				"error":  uerr.Error(),
			})
		}
		respond.Error(c, http.StatusServiceUnavailable, "queue_full", "service is busy, please retry shortly", nil)
		return
	}

	telemetry.Info("upload.accepted", map[string]any{
		"job_id":     jobID,
		"file_name":  name,
		"size_bytes": fileHeader.Size,
	})
	respond.JSON(c, http.StatusOK, uploadResponse{
		JobID:            jobID,
		Status:           StatusQueued,
		Message:          "File uploaded. Processing has started.",
		EstimatedTimeSec: estimatedTimeSec,
	})
}

type statusResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Stage     string    `json:"stage"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *Handler) status(c *gin.Context) {
	jobID := c.Param("job_id")
	job, err := h.Jobs.GetByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load job", nil)
		return
	}
	respond.JSON(c, http.StatusOK, statusResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Stage:     job.Stage,
		UpdatedAt: job.UpdatedAt,
	})
}

func (h *Handler) result(c *gin.Context) {
	jobID := c.Param("job_id")
	job, err := h.Jobs.GetByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load job", nil)
		return
	}

	switch job.Status {
	case StatusExpired:
		respond.Error(c, http.StatusGone, "expired", "job result has expired", nil)
		return
	case StatusFailed:
		msg := "processing failed"
		if job.ErrorMessage != nil && *job.ErrorMessage != "" {
			msg = *job.ErrorMessage
		}
		respond.Error(c, http.StatusBadRequest, "processing_failed", msg, nil)
		return
	case StatusQueued, StatusProcessing:
		respond.JSON(c, http.StatusAccepted, statusResponse{
			JobID:     job.ID,
			Status:    job.Status,
			Progress:  job.Progress,
			Stage:     job.Stage,
			UpdatedAt: job.UpdatedAt,
		})
		return
	}

	if h.Cache != nil {
		cached, ok, err := h.Cache.Get(c.Request.Context(), jobID)
		if err != nil {
			telemetry.Warn("cache.get_failed", map[string]any{
				"job_id": jobID,
				"error":  err.Error(),
			})
		}
		if ok {
			markCached(cached)
			respond.JSON(c, http.StatusOK, cached)
			return
		}
	}

	rec, err := h.Results.GetByJobID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, results.ErrNotFound) || errors.Is(err, results.ErrCorrupt) {
			// Completed job with a vanished or unreadable result row.
			// Serve a usable shell instead of a 500.
			respond.JSON(c, http.StatusOK, explain.Sanitize(map[string]any{
				"job_id":          jobID,
				"status":          job.Status,
				"overall_summary": "Result is no longer available. Please upload the report again.",
			}))
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load result", nil)
		return
	}

	result := explain.Sanitize(rec.Result)
	if h.Cache != nil {
		if err := h.Cache.Set(c.Request.Context(), jobID, result, h.CacheTTL); err != nil {
			telemetry.Warn("cache.set_failed", map[string]any{
				"job_id": jobID,
				"error":  err.Error(),
			})
		}
	}
	respond.JSON(c, http.StatusOK, result)
}

// markCached flips metadata.cached so clients can tell a cache hit from
// a fresh read.
func markCached(result map[string]any) {
	meta, _ := result["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["cached"] = true
	result["metadata"] = meta
}

func magicBytesMatch(ext string, head []byte) bool {
	switch ext {
	case ".pdf":
		return bytes.HasPrefix(head, []byte("%PDF"))
	case ".jpg", ".jpeg":
		return bytes.HasPrefix(head, []byte{0xFF, 0xD8, 0xFF})
	case ".png":
		return bytes.HasPrefix(head, []byte{0x89, 'P', 'N', 'G'})
	default:
		return false
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
