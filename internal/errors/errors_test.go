// internal/errors/errors_test.go
package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	inner := fmt.Errorf("底层故障")
	err := NewSegmentationError("场景切分失败", inner)

	if err.Error() != "场景切分失败: 底层故障" {
		t.Errorf("错误消息格式不正确: %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("错误链应该保留底层错误")
	}

	bare := NewNotFoundError("作业不存在", nil)
	if bare.Error() != "作业不存在" {
		t.Errorf("无底层错误时只输出消息: %q", bare.Error())
	}
}

func TestErrorPredicates(t *testing.T) {
	cases := []struct {
		err       error
		predicate func(error) bool
		name      string
	}{
		{NewSegmentationError("x", nil), IsSegmentationError, "segmentation"},
		{NewExtractionError("x", nil), IsExtractionError, "extraction"},
		{NewInterpretationError("x", nil), IsInterpretationError, "interpretation"},
		{NewCompositionError("x", nil), IsCompositionError, "composition"},
		{NewNotFoundError("x", nil), IsNotFoundError, "not_found"},
		{NewValidationError("x", nil), IsValidationError, "validation"},
	}

	for _, tc := range cases {
		if !tc.predicate(tc.err) {
			t.Errorf("%s错误的判定函数应该返回true", tc.name)
		}
	}

	if IsSegmentationError(NewNotFoundError("x", nil)) {
		t.Error("不同类型的错误不应该互相匹配")
	}
	if IsNotFoundError(fmt.Errorf("普通错误")) {
		t.Error("普通错误不应该匹配任何类型")
	}
	if IsNotFoundError(nil) {
		t.Error("nil不应该匹配任何类型")
	}
}

func TestPredicatesThroughWrapping(t *testing.T) {
	inner := NewSegmentationError("检测失败", nil)
	wrapped := fmt.Errorf("流水线终止: %w", inner)

	if !IsSegmentationError(wrapped) {
		t.Error("判定函数应该穿透标准错误包装")
	}
}

func TestWrapErrorPreservesType(t *testing.T) {
	inner := NewNotFoundError("清单不存在", nil)
	wrapped := WrapError(inner, "读取作业结果", ErrorTypeValidation)

	// 已有的AppError类型优先于新指定的类型
	if !IsNotFoundError(wrapped) {
		t.Error("包装应该保留原有的错误类型")
	}

	plain := WrapError(fmt.Errorf("磁盘故障"), "保存失败", ErrorTypeExtraction)
	if !IsExtractionError(plain) {
		t.Error("普通错误包装后应该使用指定类型")
	}

	if WrapError(nil, "x", ErrorTypeExtraction) != nil {
		t.Error("包装nil应该返回nil")
	}
}

func TestErrorCode(t *testing.T) {
	if code := NewSegmentationError("x", nil).Code; code != "SEGMENTATION_FAILURE" {
		t.Errorf("错误代码不正确: %s", code)
	}
	if code := NewValidationError("x", nil).Code; code != "VALIDATION_ERROR" {
		t.Errorf("错误代码不正确: %s", code)
	}
}
