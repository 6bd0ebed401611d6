package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"craftcv/internal/designer"
	"craftcv/internal/metrics"
	"craftcv/internal/store"
)

// editorSessions 保存每个用户的设计器会话，并提供保存互斥。
type editorSessions interface {
	Load(ctx context.Context, userID uint) (*designer.Editor, error)
	Store(ctx context.Context, userID uint, editor *designer.Editor) error
	AcquireSave(ctx context.Context, userID uint) (store.SaveLease, bool, error)
	ReleaseSave(ctx context.Context, userID uint, lease store.SaveLease) error
}

type templateFileSource interface {
	CVTemplateURL(ctx context.Context, orgID uint) (string, error)
}

// DesignerHandler 暴露模板设计器的会话操作。
type DesignerHandler struct {
	sessions editorSessions
	gateway  *designer.Gateway
	orgs     templateFileSource
	objects  objectStorage
	logger   *slog.Logger
}

func NewDesignerHandler(sessions editorSessions, gateway *designer.Gateway, orgs templateFileSource, objects objectStorage, logger *slog.Logger) *DesignerHandler {
	return &DesignerHandler{
		sessions: sessions,
		gateway:  gateway,
		orgs:     orgs,
		objects:  objects,
		logger:   logger,
	}
}

type designerView struct {
	State              designer.State                `json:"state"`
	Layout             designer.Layout               `json:"layout,omitempty"`
	Sections           []designer.Section            `json:"sections"`
	Addable            map[designer.SectionType]bool `json:"addable"`
	Generation         uint64                        `json:"generation"`
	UploadedTemplate   bool                          `json:"uploaded_template"`
	UploadedPreviewURL string                        `json:"uploaded_template_preview_url,omitempty"`
}

func (h *DesignerHandler) view(ctx context.Context, e *designer.Editor) designerView {
	d := e.Current()
	v := designerView{
		State:            d.CurrentState(),
		Layout:           d.SelectedLayout(),
		Sections:         d.SectionList(),
		Addable:          d.AddableSections(),
		Generation:       e.Generation,
		UploadedTemplate: e.UploadedTemplateURL != "",
	}
	if v.Sections == nil {
		v.Sections = []designer.Section{}
	}
	if e.UploadedTemplateURL != "" && h.objects != nil {
		if url, err := h.objects.GeneratePresignedURL(ctx, e.UploadedTemplateURL, 15*time.Minute); err == nil {
			v.UploadedPreviewURL = url
		}
	}
	return v
}

// GetSession 返回当前草稿。
func (h *DesignerHandler) GetSession(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	editor, err := h.sessions.Load(ctx, userID)
	if err != nil {
		loggerFor(c, h.logger).Error("load designer session failed", slog.Any("error", err))
		Internal(c, "failed to load designer session")
		return
	}
	c.JSON(http.StatusOK, h.view(ctx, editor))
}

// GetCatalog 返回区块目录与布局预设。
func (h *DesignerHandler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sections": designer.Catalog(),
		"layouts":  designer.Layouts(),
	})
}

type chooseLayoutRequest struct {
	Layout designer.Layout `json:"layout" binding:"required"`
}

// ChooseLayout POST /designer/layout
func (h *DesignerHandler) ChooseLayout(c *gin.Context) {
	var req chooseLayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	h.mutate(c, http.StatusOK, func(e *designer.Editor) (any, error) {
		return nil, e.ChooseLayout(req.Layout)
	})
}

type addSectionRequest struct {
	Type   designer.SectionType `json:"type" binding:"required"`
	Column designer.Column      `json:"column"`
}

// AddSection POST /designer/sections
// column 省略时取该区块在当前布局下第一个允许的栏位。
func (h *DesignerHandler) AddSection(c *gin.Context) {
	var req addSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	h.mutate(c, http.StatusCreated, func(e *designer.Editor) (any, error) {
		column := req.Column
		if column == "" {
			column = firstAllowedColumn(e.Current().SelectedLayout(), req.Type)
		}
		s, err := e.Current().AddSection(req.Type, column)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func firstAllowedColumn(layout designer.Layout, t designer.SectionType) designer.Column {
	desc, ok := designer.Lookup(t)
	if !ok {
		return ""
	}
	for _, col := range desc.AllowedColumns {
		if designer.ColumnAllowedInLayout(layout, t, col) {
			return col
		}
	}
	return ""
}

// RemoveSection DELETE /designer/sections/:sectionID
func (h *DesignerHandler) RemoveSection(c *gin.Context) {
	id := c.Param("sectionID")
	h.mutate(c, http.StatusOK, func(e *designer.Editor) (any, error) {
		e.Current().RemoveSection(id)
		return nil, nil
	})
}

type moveSectionRequest struct {
	Column designer.Column `json:"column"`
	Index  *int            `json:"index" binding:"required"`
}

// MoveSection POST /designer/sections/:sectionID/move
func (h *DesignerHandler) MoveSection(c *gin.Context) {
	var req moveSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	id := c.Param("sectionID")
	h.mutate(c, http.StatusOK, func(e *designer.Editor) (any, error) {
		return nil, e.Current().MoveSection(id, req.Column, *req.Index)
	})
}

type dropRequest struct {
	DraggedID string              `json:"dragged_id" binding:"required"`
	Target    designer.DropTarget `json:"target"`
}

// Drop POST /designer/drop
func (h *DesignerHandler) Drop(c *gin.Context) {
	var req dropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.Target.SectionID == "" && req.Target.Column == "" {
		BadRequest(c, "drop target requires section_id or column")
		return
	}
	h.mutate(c, http.StatusOK, func(e *designer.Editor) (any, error) {
		return nil, e.Current().Drop(req.DraggedID, req.Target)
	})
}

// UseUploadedTemplate POST /designer/uploaded-template
// 切换到组织上传的模板文件并丢弃草稿。
func (h *DesignerHandler) UseUploadedTemplate(c *gin.Context) {
	_, org, ok := requestScope(c)
	if !ok {
		return
	}
	key, err := h.orgs.CVTemplateURL(c.Request.Context(), org.ID)
	if err != nil {
		loggerFor(c, h.logger).Error("load uploaded template failed", slog.Any("error", err))
		Internal(c, "failed to load organization template")
		return
	}
	if key == "" {
		Conflict(c, "organization has no uploaded template")
		return
	}
	h.mutate(c, http.StatusOK, func(e *designer.Editor) (any, error) {
		e.UseUploadedTemplate(key)
		return nil, nil
	})
}

// Reset DELETE /designer
func (h *DesignerHandler) Reset(c *gin.Context) {
	h.mutate(c, http.StatusOK, func(e *designer.Editor) (any, error) {
		e.Reset()
		return nil, nil
	})
}

type saveDesignRequest struct {
	Name string `json:"name"`
}

// Save POST /designer/save
// 同一用户同时只允许一个保存；保存期间会话被重置时，结果不再回写会话。
func (h *DesignerHandler) Save(c *gin.Context) {
	userID, org, ok := requestScope(c)
	if !ok {
		return
	}
	var req saveDesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	lease, acquired, err := h.sessions.AcquireSave(ctx, userID)
	if err != nil {
		logger.Error("acquire save lock failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if !acquired {
		designerError(c, designer.ErrSaveInProgress)
		return
	}
	defer func() {
		if err := h.sessions.ReleaseSave(context.WithoutCancel(ctx), userID, lease); err != nil {
			logger.Warn("release save lock failed", slog.Any("error", err))
		}
	}()

	editor, err := h.sessions.Load(ctx, userID)
	if err != nil {
		logger.Error("load designer session failed", slog.Any("error", err))
		Internal(c, "failed to load designer session")
		return
	}
	if editor.UploadedTemplateURL != "" {
		designerError(c, designer.ErrUploadedTemplateActive)
		return
	}
	ticket, err := editor.BeginSave(req.Name)
	if err != nil {
		designerError(c, err)
		return
	}

	saveCtx, cancel := context.WithTimeout(ctx, lease.Budget())
	tpl, saveErr := h.gateway.Save(saveCtx, org.ID, ticket.Layout, ticket.Sections, ticket.Name)
	cancel()

	// 保存期间会话可能已被其他请求修改，基于最新会话应用结果。
	stale := false
	latest, err := h.sessions.Load(ctx, userID)
	if err != nil {
		logger.Error("reload designer session failed", slog.Any("error", err))
	} else if latest.FinishSave(ticket, saveErr) {
		if err := h.sessions.Store(ctx, userID, latest); err != nil {
			logger.Error("store designer session failed", slog.Any("error", err))
		}
	} else {
		stale = true
		logger.Info("designer session changed during save, result not applied")
	}
	metrics.ObserveTemplateSave(saveErr, stale)

	if saveErr != nil {
		logger.Warn("save template failed", slog.Any("error", saveErr))
		designerError(c, saveErr)
		return
	}

	logger.Info("template saved", slog.String("template_id", tpl.ID))
	c.JSON(http.StatusCreated, tpl)
}

// mutate 加载会话、执行变更并写回。变更返回错误时会话不落盘。
func (h *DesignerHandler) mutate(c *gin.Context, status int, fn func(e *designer.Editor) (any, error)) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	editor, err := h.sessions.Load(ctx, userID)
	if err != nil {
		logger.Error("load designer session failed", slog.Any("error", err))
		Internal(c, "failed to load designer session")
		return
	}

	result, err := fn(editor)
	if err != nil {
		designerError(c, err)
		return
	}

	if err := h.sessions.Store(ctx, userID, editor); err != nil {
		logger.Error("store designer session failed", slog.Any("error", err))
		Internal(c, "failed to store designer session")
		return
	}

	body := gin.H{"draft": h.view(ctx, editor)}
	if result != nil {
		body["section"] = result
	}
	c.JSON(status, body)
}
