package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"gorm.io/datatypes"

	"craftcv/internal/cvtext"
	"craftcv/internal/database"
	"craftcv/internal/errcode"
	"craftcv/internal/parser"
	"craftcv/internal/resume"
	"craftcv/internal/storage"
	"craftcv/internal/store"
	"craftcv/internal/tasks"
)

type objectReader interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
}

type cvParser interface {
	Parse(ctx context.Context, text, filename string) (resume.Parsed, error)
}

// CVParseHandler 负责消费简历解析任务。
type CVParseHandler struct {
	cvs      *store.CVStore
	objects  objectReader
	parser   cvParser
	notifier *Notifier
	logger   *slog.Logger
}

// NewCVParseHandler 创建解析任务处理器。
func NewCVParseHandler(cvs *store.CVStore, objects objectReader, p cvParser, notifier *Notifier, logger *slog.Logger) *CVParseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CVParseHandler{
		cvs:      cvs,
		objects:  objects,
		parser:   p,
		notifier: notifier,
		logger:   logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *CVParseHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	payload, err := tasks.Decode[tasks.CVParsePayload](t)
	if err != nil {
		log.Error("decode task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("cv_id", payload.CVID),
	)
	log.Info("cv parse task started")

	cv, err := h.cvs.Get(ctx, payload.CVID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("cv not found, skipping task")
			return nil
		}
		log.Error("query cv failed", slog.Any("error", err))
		return err
	}
	log = log.With(slog.Uint64("user_id", uint64(cv.UserID)))

	code := errcode.SystemError
	defer func() {
		if retErr == nil || !tasks.IsFinalAttempt(ctx, retErr) {
			return
		}
		// 任务超时后 ctx 已结束，失败记录仍需写入。
		cleanupCtx := context.WithoutCancel(ctx)
		if err := h.cvs.Update(cleanupCtx, cv.ID, map[string]any{"status": database.CVStatusFailed}); err != nil {
			log.Error("mark cv failed", slog.Any("error", err))
		}
		notify := NotifyMessage{
			Type:          NotifyCVParsed,
			Status:        "error",
			CVID:          cv.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     code,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.notifier.Publish(cleanupCtx, cv.UserID, notify); err != nil {
			log.Error("publish parse error notification failed", slog.Any("error", err))
		}
	}()

	data, err := h.objects.ReadObject(ctx, cv.ObjectKey)
	if err != nil {
		log.Error("read cv object failed", slog.Any("error", err))
		if storage.IsNotFound(err) {
			code = errcode.ResourceMissing
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}

	mime := cvtext.DetectMIME(cv.ContentType, cv.OriginalFilename)
	text, err := cvtext.Extract(mime, data)
	if err != nil {
		log.Warn("extract cv text failed", slog.String("mime", mime), slog.Any("error", err))
		code = errcode.UnsupportedFile
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	parsed, err := h.parser.Parse(ctx, text, cv.OriginalFilename)
	if err != nil {
		log.Error("parse cv failed", slog.Any("error", err))
		var statusErr *parser.StatusError
		if errors.Is(err, parser.ErrEmptyText) || (errors.As(err, &statusErr) && !statusErr.Retryable()) {
			code = errcode.ParserRejected
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}

	raw, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("encode parsed cv: %w", err)
	}
	if err := h.cvs.Update(ctx, cv.ID, map[string]any{
		"parsed_data": datatypes.JSON(raw),
		"status":      database.CVStatusParsed,
	}); err != nil {
		log.Error("update cv failed", slog.Any("error", err))
		return err
	}

	notify := NotifyMessage{
		Type:          NotifyCVParsed,
		Status:        "completed",
		CVID:          cv.ID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if err := h.notifier.Publish(ctx, cv.UserID, notify); err != nil {
		log.Warn("publish parse notification failed", slog.Any("error", err))
	}

	log.Info("cv parse task completed")
	return nil
}
