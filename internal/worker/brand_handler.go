package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"craftcv/internal/database"
	"craftcv/internal/designer"
	"craftcv/internal/errcode"
	"craftcv/internal/pdf"
	"craftcv/internal/resume"
	"craftcv/internal/storage"
	"craftcv/internal/store"
	"craftcv/internal/tasks"
)

type objectWriter interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// PDFPrinter 把 HTML 打印成 PDF。
type PDFPrinter func(ctx context.Context, html string) ([]byte, error)

// CVBrandHandler 负责把解析后的简历按组织模板与品牌设置渲染成 PDF。
type CVBrandHandler struct {
	cvs       *store.CVStore
	orgs      *store.OrganizationStore
	templates *store.TemplateStore
	objects   objectWriter
	printer   PDFPrinter
	notifier  *Notifier
	logger    *slog.Logger
}

// NewCVBrandHandler 创建品牌化任务处理器。
func NewCVBrandHandler(
	cvs *store.CVStore,
	orgs *store.OrganizationStore,
	templates *store.TemplateStore,
	objects objectWriter,
	printer PDFPrinter,
	notifier *Notifier,
	logger *slog.Logger,
) *CVBrandHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CVBrandHandler{
		cvs:       cvs,
		orgs:      orgs,
		templates: templates,
		objects:   objects,
		printer:   printer,
		notifier:  notifier,
		logger:    logger,
	}
}

// ProcessTask 实现 asynq.Handler。失败不会改变简历的解析状态。
func (h *CVBrandHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	payload, err := tasks.Decode[tasks.CVBrandPayload](t)
	if err != nil {
		log.Error("decode task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("cv_id", payload.CVID),
	)
	log.Info("cv brand task started")

	cv, err := h.cvs.Get(ctx, payload.CVID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("cv not found, skipping task")
			return nil
		}
		return err
	}
	log = log.With(slog.Uint64("user_id", uint64(cv.UserID)))

	code := errcode.SystemError
	defer func() {
		if retErr == nil || !tasks.IsFinalAttempt(ctx, retErr) {
			return
		}
		notify := NotifyMessage{
			Type:          NotifyCVBranded,
			Status:        "error",
			CVID:          cv.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     code,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.notifier.Publish(context.WithoutCancel(ctx), cv.UserID, notify); err != nil {
			log.Error("publish brand error notification failed", slog.Any("error", err))
		}
	}()

	if len(cv.ParsedData) == 0 {
		code = errcode.ResourceMissing
		return fmt.Errorf("%w: cv %s has no parsed data", asynq.SkipRetry, cv.ID)
	}
	var parsed resume.Parsed
	if err := json.Unmarshal(cv.ParsedData, &parsed); err != nil {
		return fmt.Errorf("%w: decode parsed data: %v", asynq.SkipRetry, err)
	}

	tpl, err := h.resolveTemplate(ctx, cv.OrganizationID, payload.TemplateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			code = errcode.ResourceMissing
			return fmt.Errorf("%w: template not found", asynq.SkipRetry)
		}
		return err
	}

	branding, err := h.branding(ctx, cv.OrganizationID)
	if err != nil {
		return err
	}

	html, err := pdf.RenderHTML(pdf.Document{
		Layout:   tpl.Layout,
		Sections: tpl.Sections,
		CV:       parsed,
		Branding: branding,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	pdfBytes, err := h.printer(ctx, html)
	if err != nil {
		log.Error("print pdf failed", slog.Any("error", err))
		return err
	}

	objectName := storage.BrandedCVKey(cv.UserID, cv.ID)
	if _, err := h.objects.UploadFile(ctx, objectName, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload pdf to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.cvs.Update(ctx, cv.ID, map[string]any{
		"branded_object_key": objectName,
		"template_id":        tpl.ID,
		"status":             database.CVStatusBranded,
	}); err != nil {
		log.Error("update cv failed", slog.Any("error", err))
		return err
	}

	notify := NotifyMessage{
		Type:          NotifyCVBranded,
		Status:        "completed",
		CVID:          cv.ID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if err := h.notifier.Publish(ctx, cv.UserID, notify); err != nil {
		log.Warn("publish brand notification failed", slog.Any("error", err))
	}

	log.Info("cv brand task completed", slog.String("template_id", tpl.ID))
	return nil
}

func (h *CVBrandHandler) resolveTemplate(ctx context.Context, orgID uint, templateID string) (designer.Template, error) {
	if strings.TrimSpace(templateID) != "" {
		return h.templates.Get(ctx, orgID, templateID)
	}
	return h.templates.Default(ctx, orgID)
}

func (h *CVBrandHandler) branding(ctx context.Context, orgID uint) (pdf.Branding, error) {
	org, err := h.orgs.ByID(ctx, orgID)
	if err != nil {
		return pdf.Branding{}, err
	}
	b := pdf.Branding{
		PrimaryColor:   org.PrimaryColor,
		SecondaryColor: org.SecondaryColor,
		Font:           org.Font,
	}
	if org.LogoObjectKey != "" {
		url, err := h.objects.GeneratePresignedURL(ctx, org.LogoObjectKey, 15*time.Minute)
		if err != nil {
			h.logger.Warn("presign logo failed, rendering without logo", slog.Any("error", err))
		} else {
			b.LogoURL = url
		}
	}
	return b, nil
}
