package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"lumen-backend/internal/cache"
	"lumen-backend/internal/queue"
	"lumen-backend/internal/results"
	"lumen-backend/internal/shared/storage/object/local"
)

type handlerFixture struct {
	handler *Handler
	router  *gin.Engine
	jobs    *MemoryRepo
	results *results.MemoryRepo
	cache   *cache.Memory
	queue   *queue.Memory
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jobsRepo := NewMemoryRepo()
	resultsRepo := results.NewMemoryRepo()
	resultCache := cache.NewMemory()
	q := queue.NewMemory()
	store := local.New(t.TempDir())

	h := NewHandler(jobsRepo, resultsRepo, resultCache, store, q,
		1<<20, []string{".pdf", ".jpg", ".jpeg", ".png"}, time.Hour)

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))

	return &handlerFixture{
		handler: h,
		router:  router,
		jobs:    jobsRepo,
		results: resultsRepo,
		cache:   resultCache,
		queue:   q,
	}
}

func multipartUpload(t *testing.T, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func doUpload(t *testing.T, fx *handlerFixture, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, fileName, content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func TestUploadAcceptsPDF(t *testing.T) {
	fx := newHandlerFixture(t)
	rec := doUpload(t, fx, "report.pdf", []byte("%PDF-1.4 fake report body"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.JobID == "" || resp.Status != StatusQueued {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.EstimatedTimeSec != estimatedTimeSec {
		t.Fatalf("estimated_time_sec = %d", resp.EstimatedTimeSec)
	}

	job, err := fx.jobs.GetByID(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("job not created: %v", err)
	}
	if job.Locale != "en-IN" || job.Context != "auto" {
		t.Fatalf("defaults not applied: %+v", job)
	}

	queued, err := fx.queue.Pop(context.Background(), 1)
	if err != nil || queued != resp.JobID {
		t.Fatalf("queued = %q, %v", queued, err)
	}
}

func TestUploadRejectsDisallowedExtension(t *testing.T) {
	fx := newHandlerFixture(t)
	rec := doUpload(t, fx, "report.docx", []byte("PK\x03\x04"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUploadRejectsMismatchedMagicBytes(t *testing.T) {
	fx := newHandlerFixture(t)
	rec := doUpload(t, fx, "report.pdf", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	fx := newHandlerFixture(t)
	big := append([]byte("%PDF-1.4"), bytes.Repeat([]byte{'a'}, 2<<20)...)
	rec := doUpload(t, fx, "report.pdf", big)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUploadReturns503WhenQueueFull(t *testing.T) {
	fx := newHandlerFixture(t)
	for i := 0; i < queue.MaxQueueSize; i++ {
		if ok, err := fx.queue.Push(context.Background(), fmt.Sprintf("job_%d", i)); err != nil || !ok {
			t.Fatalf("seed push %d: %v %v", i, ok, err)
		}
	}

	rec := doUpload(t, fx, "report.pdf", []byte("%PDF-1.4 fake"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// The job row is failed rather than stranded in queued.
	listed, err := fx.jobs.ListCreatedBefore(context.Background(), time.Now().UTC().Add(time.Minute), 10)
	if err != nil || len(listed) != 1 {
		t.Fatalf("jobs = %v, %v", listed, err)
	}
	if listed[0].Status != StatusFailed {
		t.Fatalf("job status = %s, want failed", listed[0].Status)
	}
}

func seedHandlerJob(t *testing.T, fx *handlerFixture, status, stage string, errMsg *string) Job {
	t.Helper()
	now := time.Now().UTC()
	job := Job{
		ID:           NewJobID(),
		FilePath:     "uploads/x.pdf",
		Locale:       "en-IN",
		Context:      "auto",
		Status:       status,
		Stage:        stage,
		Progress:     ProgressByStage[stage],
		ErrorMessage: errMsg,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := fx.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func get(fx *handlerFixture, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func TestStatusReturnsJobState(t *testing.T) {
	fx := newHandlerFixture(t)
	job := seedHandlerJob(t, fx, StatusProcessing, StageGenerating, nil)

	rec := get(fx, "/api/v1/status/"+job.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != StatusProcessing || resp.Stage != StageGenerating || resp.Progress != 70 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	fx := newHandlerFixture(t)
	if rec := get(fx, "/api/v1/status/job_missing"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestResultPendingJobReturns202(t *testing.T) {
	fx := newHandlerFixture(t)
	job := seedHandlerJob(t, fx, StatusQueued, StageUploading, nil)

	rec := get(fx, "/api/v1/result/"+job.ID)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestResultFailedJobReturns400(t *testing.T) {
	fx := newHandlerFixture(t)
	msg := "OCR_EMPTY_TEXT: no text could be extracted from the document"
	job := seedHandlerJob(t, fx, StatusFailed, StageFailed, &msg)

	rec := get(fx, "/api/v1/result/"+job.ID)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("OCR_EMPTY_TEXT")) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestResultExpiredJobReturns410(t *testing.T) {
	fx := newHandlerFixture(t)
	job := seedHandlerJob(t, fx, StatusExpired, StageDone, nil)

	if rec := get(fx, "/api/v1/result/"+job.ID); rec.Code != http.StatusGone {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestResultServedFromCacheMarksCached(t *testing.T) {
	fx := newHandlerFixture(t)
	job := seedHandlerJob(t, fx, StatusCompleted, StageDone, nil)

	err := fx.cache.Set(context.Background(), job.ID, map[string]any{
		"overall_summary":  "All good.",
		"confidence_score": 0.9,
	}, time.Hour)
	if err != nil {
		t.Fatalf("cache Set: %v", err)
	}

	rec := get(fx, "/api/v1/result/"+job.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	meta, _ := resp["metadata"].(map[string]any)
	if meta == nil || meta["cached"] != true {
		t.Fatalf("metadata = %v", resp["metadata"])
	}
}

func TestResultFallsBackToDatabaseAndBackfillsCache(t *testing.T) {
	fx := newHandlerFixture(t)
	job := seedHandlerJob(t, fx, StatusCompleted, StageDone, nil)

	err := fx.results.Insert(context.Background(), results.Record{
		JobID:      job.ID,
		Result:     map[string]any{"overall_summary": "From the database.", "confidence_score": 0.8},
		Confidence: 0.8,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec := get(fx, "/api/v1/result/"+job.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["overall_summary"] != "From the database." {
		t.Fatalf("summary = %v", resp["overall_summary"])
	}

	if _, ok, _ := fx.cache.Get(context.Background(), job.ID); !ok {
		t.Fatalf("expected cache backfill after database read")
	}
}

func TestResultCompletedWithMissingRowServesPlaceholder(t *testing.T) {
	fx := newHandlerFixture(t)
	job := seedHandlerJob(t, fx, StatusCompleted, StageDone, nil)

	rec := get(fx, "/api/v1/result/"+job.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["overall_summary"] == "" || resp["overall_summary"] == nil {
		t.Fatalf("placeholder summary missing: %v", resp)
	}
	if resp["job_id"] != job.ID {
		t.Fatalf("placeholder job_id = %v, want %q", resp["job_id"], job.ID)
	}
	if resp["status"] != StatusCompleted {
		t.Fatalf("placeholder status = %v, want %q", resp["status"], StatusCompleted)
	}
}

type corruptResultsRepo struct {
	results.ResultsRepo
}

func (r *corruptResultsRepo) GetByJobID(ctx context.Context, jobID string) (results.Record, error) {
	return results.Record{}, fmt.Errorf("%w: invalid character", results.ErrCorrupt)
}

func TestResultCorruptRowServesPlaceholder(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.handler.Results = &corruptResultsRepo{}
	job := seedHandlerJob(t, fx, StatusCompleted, StageDone, nil)

	rec := get(fx, "/api/v1/result/"+job.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for unreadable stored result", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["job_id"] != job.ID || resp["status"] != StatusCompleted {
		t.Fatalf("placeholder identity = %v/%v", resp["job_id"], resp["status"])
	}
	if resp["overall_summary"] == "" || resp["overall_summary"] == nil {
		t.Fatalf("placeholder summary missing: %v", resp)
	}
}
