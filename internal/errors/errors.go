// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 流水线错误类型
	ErrorTypeSegmentation   ErrorType = "segmentation_failure"   // 致命：场景切分失败，作业终止
	ErrorTypeExtraction     ErrorType = "extraction_failure"     // 场景级：记录后跳过
	ErrorTypeInterpretation ErrorType = "interpretation_failure" // 场景级：以错误标记替代故事片段
	ErrorTypeComposition    ErrorType = "composition_failure"    // 作业级但非致命：回退为片段拼接
	ErrorTypePublish        ErrorType = "publish_failure"        // 非致命：回退到本地日志
	ErrorTypeAcquisition    ErrorType = "acquisition_failure"    // 远程视频获取失败
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeValidation     ErrorType = "validation_error"
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

// NewSegmentationError 创建场景切分错误（致命）
func NewSegmentationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSegmentation, message, originalError)
}

// NewExtractionError 创建媒体抽取错误（场景级）
func NewExtractionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeExtraction, message, originalError)
}

// NewInterpretationError 创建内容解读错误（场景级）
func NewInterpretationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeInterpretation, message, originalError)
}

// NewCompositionError 创建故事合成错误（非致命）
func NewCompositionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeComposition, message, originalError)
}

// NewPublishError 创建队列发布错误（非致命）
func NewPublishError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypePublish, message, originalError)
}

// NewAcquisitionError 创建远程获取错误
func NewAcquisitionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeAcquisition, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// isType 检查错误链中是否包含指定类型的 AppError
func isType(err error, t ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == t
	}
	return false
}

// IsSegmentationError 检查是否为场景切分错误
func IsSegmentationError(err error) bool { return isType(err, ErrorTypeSegmentation) }

// IsExtractionError 检查是否为媒体抽取错误
func IsExtractionError(err error) bool { return isType(err, ErrorTypeExtraction) }

// IsInterpretationError 检查是否为内容解读错误
func IsInterpretationError(err error) bool { return isType(err, ErrorTypeInterpretation) }

// IsCompositionError 检查是否为故事合成错误
func IsCompositionError(err error) bool { return isType(err, ErrorTypeComposition) }

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeSegmentation:
		return "SEGMENTATION_FAILURE"
	case ErrorTypeExtraction:
		return "EXTRACTION_FAILURE"
	case ErrorTypeInterpretation:
		return "INTERPRETATION_FAILURE"
	case ErrorTypeComposition:
		return "COMPOSITION_FAILURE"
	case ErrorTypePublish:
		return "PUBLISH_FAILURE"
	case ErrorTypeAcquisition:
		return "ACQUISITION_FAILURE"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误，保留链中已有的 AppError 类型
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
