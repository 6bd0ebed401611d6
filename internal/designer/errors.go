package designer

import (
	"errors"
	"fmt"
)

// ValidationError 表示可在本地恢复的输入错误，草稿状态保持不变。
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrLimitReached           = &ValidationError{Code: "limit_reached", Message: "section limit reached"}
	ErrIllegalColumn          = &ValidationError{Code: "illegal_column", Message: "section is not allowed in this column"}
	ErrNameRequired           = &ValidationError{Code: "name_required", Message: "template name is required"}
	ErrLayoutRequired         = &ValidationError{Code: "layout_required", Message: "template layout is required"}
	ErrUnknownLayout          = &ValidationError{Code: "unknown_layout", Message: "unknown layout"}
	ErrUnknownSection         = &ValidationError{Code: "unknown_section", Message: "unknown section type"}
	ErrInvalidState           = &ValidationError{Code: "invalid_state", Message: "operation not allowed in current draft state"}
	ErrSaveInProgress         = &ValidationError{Code: "save_in_progress", Message: "template save already in progress"}
	ErrUploadedTemplateActive = &ValidationError{Code: "uploaded_template_active", Message: "an uploaded template is in use for this session"}
	ErrInvalidSections        = &ValidationError{Code: "invalid_sections", Message: "invalid template sections"}
)

// IsValidation 判断错误链中是否包含 ValidationError。
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// PersistenceError 表示模板存储调用失败，调用方可原样重试。
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist template (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// errMalformedRecord 用于存储返回了无法识别的记录。
var errMalformedRecord = errors.New("malformed template record")
