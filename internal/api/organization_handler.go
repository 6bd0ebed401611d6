package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"craftcv/internal/database"
	"craftcv/internal/storage"
	"craftcv/internal/store"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

var logoExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

var templateFileExtensions = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".html": "text/html",
}

type organizationRepository interface {
	ByID(ctx context.Context, id uint) (*database.Organization, error)
	Update(ctx context.Context, id uint, fields map[string]any) error
}

// OrganizationHandler 负责组织品牌设置与上传的模板文件。
type OrganizationHandler struct {
	orgs     organizationRepository
	objects  objectStorage
	scanner  VirusScanner
	logger   *slog.Logger
	maxBytes int64
}

func NewOrganizationHandler(orgs organizationRepository, objects objectStorage, scanner VirusScanner, logger *slog.Logger, maxBytes int64) *OrganizationHandler {
	if scanner == nil {
		scanner = noopScanner{}
	}
	return &OrganizationHandler{
		orgs:     orgs,
		objects:  objects,
		scanner:  scanner,
		logger:   logger,
		maxBytes: maxBytes,
	}
}

type organizationResponse struct {
	ID                uint   `json:"id"`
	Name              string `json:"name"`
	PrimaryColor      string `json:"primary_color"`
	SecondaryColor    string `json:"secondary_color"`
	Font              string `json:"font"`
	LogoURL           string `json:"logo_url,omitempty"`
	HasCVTemplate     bool   `json:"has_cv_template"`
	CVTemplateFileURL string `json:"cv_template_url,omitempty"`
}

func (h *OrganizationHandler) respond(c *gin.Context, status int, org *database.Organization) {
	ctx := c.Request.Context()
	resp := organizationResponse{
		ID:             org.ID,
		Name:           org.Name,
		PrimaryColor:   org.PrimaryColor,
		SecondaryColor: org.SecondaryColor,
		Font:           org.Font,
		HasCVTemplate:  org.CVTemplateObjectKey != "",
	}
	if org.LogoObjectKey != "" {
		if url, err := h.objects.GeneratePresignedURL(ctx, org.LogoObjectKey, 15*time.Minute); err == nil {
			resp.LogoURL = url
		} else {
			loggerFor(c, h.logger).Warn("presign logo failed", slog.Any("error", err))
		}
	}
	if org.CVTemplateObjectKey != "" {
		if url, err := h.objects.GeneratePresignedURL(ctx, org.CVTemplateObjectKey, 15*time.Minute); err == nil {
			resp.CVTemplateFileURL = url
		}
	}
	c.JSON(status, resp)
}

// GetOrganization GET /organization
func (h *OrganizationHandler) GetOrganization(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, org)
}

type updateOrganizationRequest struct {
	Name           *string `json:"name" binding:"omitempty,max=128"`
	PrimaryColor   *string `json:"primary_color"`
	SecondaryColor *string `json:"secondary_color"`
	Font           *string `json:"font" binding:"omitempty,max=64"`
}

// UpdateOrganization PATCH /organization
// 只更新请求中出现的字段，颜色必须是 #rrggbb。
func (h *OrganizationHandler) UpdateOrganization(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	var req updateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	for column, value := range map[string]*string{
		"primary_color":   req.PrimaryColor,
		"secondary_color": req.SecondaryColor,
	} {
		if value == nil {
			continue
		}
		if !hexColorPattern.MatchString(*value) {
			BadRequest(c, fmt.Sprintf("%s must be a #rrggbb color", column))
			return
		}
		fields[column] = strings.ToLower(*value)
	}
	if req.Font != nil {
		font := strings.TrimSpace(*req.Font)
		if font == "" {
			BadRequest(c, "font must not be empty")
			return
		}
		fields["font"] = font
	}

	h.applyUpdate(c, org.ID, fields)
}

// UploadLogo POST /organization/logo
func (h *OrganizationHandler) UploadLogo(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	ext, supported := logoExtensions[contentType]
	if !supported {
		Error(c, http.StatusUnsupportedMediaType, "logo must be png, jpeg, webp or svg")
		return
	}

	objectKey := storage.LogoKey(org.ID, ext)
	if !h.storeFile(c, header, objectKey) {
		return
	}
	h.replaceObject(c, org.LogoObjectKey)
	h.applyUpdate(c, org.ID, map[string]any{"logo_object_key": objectKey})
}

// UploadCVTemplate POST /organization/cv-template
// 上传一个非设计器生成的模板文件，设计器会话可切换到它。
func (h *OrganizationHandler) UploadCVTemplate(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, supported := templateFileExtensions[ext]
	if !supported {
		Error(c, http.StatusUnsupportedMediaType, "template must be pdf, docx or html")
		return
	}
	header.Header.Set("Content-Type", contentType)

	objectKey := storage.CVTemplateKey(org.ID, ext)
	if !h.storeFile(c, header, objectKey) {
		return
	}
	h.replaceObject(c, org.CVTemplateObjectKey)
	h.applyUpdate(c, org.ID, map[string]any{"cv_template_object_key": objectKey})
}

// DeleteCVTemplate DELETE /organization/cv-template
func (h *OrganizationHandler) DeleteCVTemplate(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	if org.CVTemplateObjectKey == "" {
		NotFound(c, "organization has no uploaded template")
		return
	}
	h.replaceObject(c, org.CVTemplateObjectKey)
	h.applyUpdate(c, org.ID, map[string]any{"cv_template_object_key": ""})
}

func (h *OrganizationHandler) storeFile(c *gin.Context, header *multipart.FileHeader, objectKey string) bool {
	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.String("object_key", objectKey))

	file, err := checkUpload(ctx, h.scanner, header, h.maxBytes)
	if err != nil {
		writeUploadError(c, logger, err)
		return false
	}
	if err := storeUpload(ctx, h.objects, objectKey, file); err != nil {
		logger.Error("upload file failed", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return false
	}
	return true
}

// replaceObject 尽力删除被替换的旧对象，失败只记日志。
func (h *OrganizationHandler) replaceObject(c *gin.Context, oldKey string) {
	if oldKey == "" {
		return
	}
	if err := h.objects.DeleteObject(c.Request.Context(), oldKey); err != nil {
		loggerFor(c, h.logger).Warn("delete replaced object failed", slog.String("object_key", oldKey), slog.Any("error", err))
	}
}

func (h *OrganizationHandler) applyUpdate(c *gin.Context, orgID uint, fields map[string]any) {
	ctx := c.Request.Context()
	if err := h.orgs.Update(ctx, orgID, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "organization not found")
			return
		}
		loggerFor(c, h.logger).Error("update organization failed", slog.Any("error", err))
		Internal(c, "failed to update organization")
		return
	}
	org, err := h.orgs.ByID(ctx, orgID)
	if err != nil {
		loggerFor(c, h.logger).Error("reload organization failed", slog.Any("error", err))
		Internal(c, "failed to load organization")
		return
	}
	h.respond(c, http.StatusOK, org)
}
