package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"craftcv/internal/designer"
)

type templateReader interface {
	Get(ctx context.Context, orgID uint, id string) (designer.Template, error)
}

// TemplateHandler 负责组织模板集合的 API。
type TemplateHandler struct {
	gateway   *designer.Gateway
	templates templateReader
	logger    *slog.Logger
}

func NewTemplateHandler(gateway *designer.Gateway, templates templateReader, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{gateway: gateway, templates: templates, logger: logger}
}

// ListTemplates GET /templates
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	items, err := h.gateway.List(c.Request.Context(), org.ID)
	if err != nil {
		loggerFor(c, h.logger).Error("list templates failed", slog.Any("error", err))
		designerError(c, err)
		return
	}
	if items == nil {
		items = []designer.Template{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetTemplate GET /templates/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	tpl, err := h.templates.Get(c.Request.Context(), org.ID, c.Param("id"))
	if err != nil {
		designerError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

type createTemplateRequest struct {
	Name     string             `json:"name" binding:"required"`
	Layout   designer.Layout    `json:"layout" binding:"required"`
	Sections []designer.Section `json:"sections" binding:"required"`
}

// CreateTemplate POST /templates
// 不经过设计器会话直接创建模板，区块需满足与草稿相同的放置规则。
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := designer.ValidateSections(req.Layout, req.Sections); err != nil {
		designerError(c, err)
		return
	}

	tpl, err := h.gateway.Save(c.Request.Context(), org.ID, req.Layout, req.Sections, req.Name)
	if err != nil {
		loggerFor(c, h.logger).Warn("create template failed", slog.Any("error", err))
		designerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// SetDefault PATCH /templates/:id/default
func (h *TemplateHandler) SetDefault(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	if err := h.gateway.SetDefault(c.Request.Context(), org.ID, c.Param("id")); err != nil {
		loggerFor(c, h.logger).Warn("set default template failed", slog.Any("error", err))
		designerError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteTemplate DELETE /templates/:id
// 删除默认模板后不会自动指定新的默认模板。
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	if err := h.gateway.Remove(c.Request.Context(), org.ID, c.Param("id")); err != nil {
		loggerFor(c, h.logger).Warn("delete template failed", slog.Any("error", err))
		designerError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
