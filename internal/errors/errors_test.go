// internal/errors/errors_test.go
package errors

import (
	"errors"
	"fmt"
	"testing"
)

// TestAppErrorTypeDetection 各类型错误的判定函数互不串扰
func TestAppErrorTypeDetection(t *testing.T) {
	validation := NewValidationError("输入不合法", nil)
	notFound := NewNotFoundError("剧本图不存在", nil)
	conflict := NewConflictError("回合进行中", nil)

	if !IsValidationError(validation) || IsValidationError(notFound) {
		t.Error("校验错误判定不对")
	}
	if !IsNotFoundError(notFound) || IsNotFoundError(conflict) {
		t.Error("未找到错误判定不对")
	}
	if !IsConflictError(conflict) || IsConflictError(validation) {
		t.Error("冲突错误判定不对")
	}
	if IsValidationError(nil) || IsValidationError(errors.New("plain")) {
		t.Error("普通错误不应命中任何判定")
	}
}

// TestAppErrorUnwrap 包装的原始错误可以通过 errors.Is 追溯
func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("磁盘满了")
	wrapped := NewStorageError("保存失败", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("应能追溯到原始错误")
	}
	if wrapped.Code == "" {
		t.Error("错误码不应为空")
	}
}

// TestWrapError 透明包装保留类型信息
func TestWrapError(t *testing.T) {
	if WrapError(nil, "无事发生", ErrorTypeError) != nil {
		t.Error("nil 错误包装后应仍为 nil")
	}

	inner := NewNotFoundError("会话不存在", nil)
	wrapped := WrapError(inner, "加载会话失败", ErrorTypeError)
	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("包装结果应为 AppError")
	}
}

// TestGraphParseErrorKeepsRawText 解析错误保留原始文本
func TestGraphParseErrorKeepsRawText(t *testing.T) {
	cause := fmt.Errorf("unexpected token")
	err := NewGraphParseError("解析失败", "{broken", cause)

	if err.RawText != "{broken" {
		t.Errorf("原始文本丢失: %q", err.RawText)
	}
	if !IsGraphParseError(err) {
		t.Error("类型判定失败")
	}
	if !errors.Is(err, cause) {
		t.Error("应能追溯到原始解析错误")
	}

	// 经过 fmt.Errorf 包装后仍能识别
	wrapped := fmt.Errorf("导入失败: %w", err)
	if !IsGraphParseError(wrapped) {
		t.Error("包装后的解析错误应仍可识别")
	}
}

// TestDanglingReferenceError 悬空引用错误携带定位信息
func TestDanglingReferenceError(t *testing.T) {
	err := NewDanglingReferenceError("ghost", "1-1", "go")

	if err.MissingSceneID != "ghost" || err.FromSceneID != "1-1" || err.ChoiceID != "go" {
		t.Errorf("定位信息不对: %+v", err)
	}
	if !IsDanglingReferenceError(fmt.Errorf("wrap: %w", err)) {
		t.Error("包装后的悬空引用应仍可识别")
	}
}

// TestStateMergeWarning 合并警告描述变量与上下文
func TestStateMergeWarning(t *testing.T) {
	w := &StateMergeWarning{Variable: "ghost", Namespace: "relationships", Context: "delta"}
	if w.Error() == "" {
		t.Error("警告信息不应为空")
	}
}
