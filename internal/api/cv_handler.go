package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"

	"craftcv/internal/api/middleware"
	"craftcv/internal/cvtext"
	"craftcv/internal/database"
	"craftcv/internal/designer"
	"craftcv/internal/metrics"
	"craftcv/internal/storage"
	"craftcv/internal/store"
	"craftcv/internal/tasks"
)

// Enqueuer 投递后台任务，由 *asynq.Client 实现。
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type cvRepository interface {
	Create(ctx context.Context, cv *database.CV) error
	ListByUser(ctx context.Context, userID uint) ([]database.CV, error)
	GetForUser(ctx context.Context, id string, userID uint) (*database.CV, error)
	Update(ctx context.Context, id string, fields map[string]any) error
}

var cvUploadExtensions = map[string]string{
	cvtext.MIMEPDF:   ".pdf",
	cvtext.MIMEDocx:  ".docx",
	cvtext.MIMEPlain: ".txt",
}

// CVHandler 负责简历上传、查询与品牌化请求。
type CVHandler struct {
	cvs       cvRepository
	templates templateReader
	objects   objectStorage
	scanner   VirusScanner
	queue     Enqueuer
	logger    *slog.Logger
	maxBytes  int64
	maxRetry  int
}

func NewCVHandler(cvs cvRepository, templates templateReader, objects objectStorage, scanner VirusScanner, queue Enqueuer, logger *slog.Logger, maxBytes int64, maxRetry int) *CVHandler {
	if scanner == nil {
		scanner = noopScanner{}
	}
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &CVHandler{
		cvs:       cvs,
		templates: templates,
		objects:   objects,
		scanner:   scanner,
		queue:     queue,
		logger:    logger,
		maxBytes:  maxBytes,
		maxRetry:  maxRetry,
	}
}

type cvResponse struct {
	ID               string         `json:"id"`
	OriginalFilename string         `json:"original_filename"`
	ContentType      string         `json:"content_type"`
	Status           string         `json:"status"`
	ParsedData       datatypes.JSON `json:"parsed_data,omitempty"`
	TemplateID       *string        `json:"template_id,omitempty"`
	Branded          bool           `json:"branded"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func newCVResponse(cv database.CV) cvResponse {
	return cvResponse{
		ID:               cv.ID,
		OriginalFilename: cv.OriginalFilename,
		ContentType:      cv.ContentType,
		Status:           cv.Status,
		ParsedData:       cv.ParsedData,
		TemplateID:       cv.TemplateID,
		Branded:          cv.BrandedObjectKey != "",
		CreatedAt:        cv.CreatedAt,
		UpdatedAt:        cv.UpdatedAt,
	}
}

// UploadCV POST /cvs
// 扫描并保存上传的简历，然后投递解析任务，立即返回 202。
func (h *CVHandler) UploadCV(c *gin.Context) {
	userID, org, ok := requestScope(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.String("filename", header.Filename),
	)

	mime := cvtext.DetectMIME(header.Header.Get("Content-Type"), header.Filename)
	ext, supported := cvUploadExtensions[mime]
	if !supported {
		Error(c, http.StatusUnsupportedMediaType, "only pdf, docx and txt files are supported")
		return
	}

	file, err := checkUpload(ctx, h.scanner, header, h.maxBytes)
	if err != nil {
		writeUploadError(c, logger, err)
		return
	}

	cvID := uuid.NewString()
	objectKey := storage.CVKey(userID, cvID, ext)
	if err := storeUpload(ctx, h.objects, objectKey, file); err != nil {
		logger.Error("upload cv failed", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	cv := database.CV{
		ID:               cvID,
		UserID:           userID,
		OrganizationID:   org.ID,
		OriginalFilename: filepath.Base(header.Filename),
		ObjectKey:        objectKey,
		ContentType:      mime,
		Status:           database.CVStatusProcessing,
	}
	if err := h.cvs.Create(ctx, &cv); err != nil {
		logger.Error("create cv record failed", slog.Any("error", err))
		Internal(c, "failed to save cv")
		return
	}

	task, err := tasks.NewCVParseTask(cv.ID, middleware.GetCorrelationID(c))
	if err != nil {
		Internal(c, "failed to create task")
		return
	}
	info, err := h.queue.EnqueueContext(ctx, task, asynq.MaxRetry(h.maxRetry))
	if err != nil {
		logger.Error("enqueue parse task failed", slog.Any("error", err))
		_ = h.cvs.Update(ctx, cv.ID, map[string]any{"status": database.CVStatusFailed})
		Internal(c, "failed to enqueue cv parsing")
		return
	}

	metrics.ObserveCVUpload(mime)
	logger.Info("cv uploaded", slog.String("cv_id", cv.ID), slog.String("task_id", info.ID))
	c.JSON(http.StatusAccepted, gin.H{
		"cv":      newCVResponse(cv),
		"task_id": info.ID,
	})
}

// ListCVs GET /cvs
func (h *CVHandler) ListCVs(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	cvs, err := h.cvs.ListByUser(c.Request.Context(), userID)
	if err != nil {
		loggerFor(c, h.logger).Error("list cvs failed", slog.Any("error", err))
		Internal(c, "failed to list cvs")
		return
	}
	items := make([]cvResponse, 0, len(cvs))
	for _, cv := range cvs {
		items = append(items, newCVResponse(cv))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetCV GET /cvs/:id
func (h *CVHandler) GetCV(c *gin.Context) {
	cv, ok := h.loadCV(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newCVResponse(*cv))
}

type updateCVStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus PATCH /cvs/:id/status
func (h *CVHandler) UpdateStatus(c *gin.Context) {
	var req updateCVStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch status {
	case database.CVStatusProcessing, database.CVStatusParsed, database.CVStatusBranded, database.CVStatusFailed:
	default:
		BadRequest(c, "unknown status")
		return
	}

	cv, ok := h.loadCV(c)
	if !ok {
		return
	}
	if err := h.cvs.Update(c.Request.Context(), cv.ID, map[string]any{"status": status}); err != nil {
		loggerFor(c, h.logger).Error("update cv status failed", slog.Any("error", err))
		Internal(c, "failed to update cv")
		return
	}
	cv.Status = status
	c.JSON(http.StatusOK, newCVResponse(*cv))
}

type brandCVRequest struct {
	TemplateID string `json:"template_id"`
}

// BrandCV POST /cvs/:id/brand
// 投递品牌化 PDF 任务。template_id 省略时使用组织默认模板。
func (h *CVHandler) BrandCV(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	var req brandCVRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}

	cv, ok := h.loadCV(c)
	if !ok {
		return
	}
	if len(cv.ParsedData) == 0 || cv.Status == database.CVStatusProcessing || cv.Status == database.CVStatusFailed {
		Conflict(c, "cv has not been parsed")
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.String("cv_id", cv.ID))

	if req.TemplateID != "" {
		if _, err := h.templates.Get(ctx, org.ID, req.TemplateID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				NotFound(c, "template not found")
				return
			}
			logger.Error("lookup template failed", slog.Any("error", err))
			designerError(c, &designer.PersistenceError{Op: "get", Err: err})
			return
		}
	}

	task, err := tasks.NewCVBrandTask(cv.ID, req.TemplateID, middleware.GetCorrelationID(c))
	if err != nil {
		Internal(c, "failed to create task")
		return
	}
	info, err := h.queue.EnqueueContext(ctx, task, asynq.MaxRetry(h.maxRetry))
	if err != nil {
		logger.Error("enqueue brand task failed", slog.Any("error", err))
		Internal(c, "failed to enqueue branding")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "branding request accepted",
		"task_id": info.ID,
	})
}

// GetDownloadLink GET /cvs/:id/download-link
func (h *CVHandler) GetDownloadLink(c *gin.Context) {
	cv, ok := h.loadCV(c)
	if !ok {
		return
	}
	if cv.BrandedObjectKey == "" {
		Conflict(c, "pdf not ready")
		return
	}

	name := strings.TrimSuffix(cv.OriginalFilename, filepath.Ext(cv.OriginalFilename))
	if name == "" {
		name = cv.ID
	}
	params := map[string]string{
		"response-content-disposition": fmt.Sprintf("attachment; filename=%q", name+"-branded.pdf"),
	}
	signedURL, err := h.objects.GeneratePresignedURLWithParams(c.Request.Context(), cv.BrandedObjectKey, 5*time.Minute, params)
	if err != nil {
		loggerFor(c, h.logger).Error("generate download link failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

func (h *CVHandler) loadCV(c *gin.Context) (*database.CV, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}
	cv, err := h.cvs.GetForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "cv not found")
			return nil, false
		}
		loggerFor(c, h.logger).Error("query cv failed", slog.Any("error", err))
		Internal(c, "failed to query cv")
		return nil, false
	}
	return cv, true
}
