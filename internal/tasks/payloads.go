// Package tasks 定义 API 与 worker 之间的异步任务契约。
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeCVParse = "cv:parse"
	TypeCVBrand = "cv:brand"

	QueueDefault = "default"
)

// 单次执行的上限。品牌化需要启动浏览器渲染，比解析慢。
const (
	parseTimeout = 2 * time.Minute
	brandTimeout = 3 * time.Minute
)

// ErrInvalidPayload 包装了 asynq.SkipRetry，坏数据不会被重试。
var ErrInvalidPayload = fmt.Errorf("invalid task payload: %w", asynq.SkipRetry)

type CVParsePayload struct {
	CVID          string `json:"cv_id"`
	CorrelationID string `json:"correlation_id"`
}

// CVBrandPayload 的 TemplateID 为空时使用组织默认模板。
type CVBrandPayload struct {
	CVID          string `json:"cv_id"`
	TemplateID    string `json:"template_id,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

func NewCVParseTask(cvID, correlationID string) (*asynq.Task, error) {
	return newTask(TypeCVParse, CVParsePayload{CVID: cvID, CorrelationID: correlationID}, parseTimeout)
}

func NewCVBrandTask(cvID, templateID, correlationID string) (*asynq.Task, error) {
	return newTask(TypeCVBrand, CVBrandPayload{CVID: cvID, TemplateID: templateID, CorrelationID: correlationID}, brandTimeout)
}

func newTask(typ string, payload any, timeout time.Duration) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return asynq.NewTask(typ, raw, asynq.Queue(QueueDefault), asynq.Timeout(timeout)), nil
}

// Decode 解出任务载荷。缺少 cv_id 同样视为坏数据。
func Decode[P CVParsePayload | CVBrandPayload](t *asynq.Task) (P, error) {
	var p P
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, errors.Join(ErrInvalidPayload, err)
	}
	if cvID(p) == "" {
		return p, fmt.Errorf("%w: cv_id is empty", ErrInvalidPayload)
	}
	return p, nil
}

func cvID(p any) string {
	switch v := p.(type) {
	case CVParsePayload:
		return v.CVID
	case CVBrandPayload:
		return v.CVID
	}
	return ""
}

// IsFinalAttempt 报告 err 之后 asynq 是否还会重试该任务。
func IsFinalAttempt(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	retried, ok1 := asynq.GetRetryCount(ctx)
	limit, ok2 := asynq.GetMaxRetry(ctx)
	return ok1 && ok2 && retried >= limit
}
