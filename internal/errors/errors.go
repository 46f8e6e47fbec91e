// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeStorage    ErrorType = "storage_error"

	// 播放引擎错误类型
	ErrorTypeGraphParse        ErrorType = "graph_parse_error"
	ErrorTypeDanglingReference ErrorType = "dangling_reference"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewStorageError 创建存储错误
func NewStorageError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeStorage, message, originalError)
}

// GraphParseError 表示故事图文本无法修复和解析。
// RawText 保留原始文本用于诊断，调用方可据此提供“重新导入”操作。
type GraphParseError struct {
	Message string
	RawText string
	Err     error
}

func (e *GraphParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graph parse failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("graph parse failed: %s", e.Message)
}

func (e *GraphParseError) Unwrap() error {
	return e.Err
}

// NewGraphParseError 创建图解析错误，保留原始文本
func NewGraphParseError(message, rawText string, originalError error) *GraphParseError {
	return &GraphParseError{
		Message: message,
		RawText: rawText,
		Err:     originalError,
	}
}

// IsGraphParseError 检查是否为图解析错误
func IsGraphParseError(err error) bool {
	var gpe *GraphParseError
	return errors.As(err, &gpe)
}

// DanglingReferenceError 表示选择指向的场景在图中不存在。
// 会话进入 Faulted 状态；故事绝不被静默截断。
type DanglingReferenceError struct {
	MissingSceneID string
	FromSceneID    string
	ChoiceID       string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("choice %q in scene %q references missing scene %q",
		e.ChoiceID, e.FromSceneID, e.MissingSceneID)
}

// NewDanglingReferenceError 创建悬空引用错误
func NewDanglingReferenceError(missingSceneID, fromSceneID, choiceID string) *DanglingReferenceError {
	return &DanglingReferenceError{
		MissingSceneID: missingSceneID,
		FromSceneID:    fromSceneID,
		ChoiceID:       choiceID,
	}
}

// IsDanglingReferenceError 检查是否为悬空引用错误
func IsDanglingReferenceError(err error) bool {
	var dre *DanglingReferenceError
	return errors.As(err, &dre)
}

// StateMergeWarning 表示增量或条件引用了未知的变量名。
// 非致命：按 0 处理，但记录下来以便作者发现生成图中的笔误。
type StateMergeWarning struct {
	Variable  string
	Namespace string
	Context   string // "delta" 或 "condition"
}

func (w *StateMergeWarning) Error() string {
	return fmt.Sprintf("unknown variable %q (%s) in %s, treated as 0",
		w.Variable, w.Namespace, w.Context)
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == ErrorTypeValidation
	}
	return false
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == ErrorTypeNotFound
	}
	return false
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == ErrorTypeConflict
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeStorage:
		return "STORAGE_ERROR"
	case ErrorTypeGraphParse:
		return "GRAPH_PARSE_ERROR"
	case ErrorTypeDanglingReference:
		return "DANGLING_REFERENCE"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	// 否则创建新的 AppError
	return NewAppError(errType, message, err)
}
