// Package apperr 定义核心错误分类。
//
// 五类错误对应不同的调用方处理策略：
//   - VALIDATION / AUTHORIZATION：本地拒绝，不可重试，原样上抛；
//   - NOT_FOUND：引用的实体不存在；
//   - ANALYZER_FAULT：分析器自身缺陷（非单个工具的 success=false）；
//   - PERSISTENCE：存储不可用或写冲突。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 表示错误分类码，直接进入 API 错误响应。
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeAuthorization Code = "AUTHORIZATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeAnalyzerFault Code = "ANALYZER_FAULT"
	CodePersistence   Code = "PERSISTENCE_ERROR"
)

// Error 是带分类码的结构化错误。
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus 返回分类码对应的 HTTP 状态码，供 API 层映射响应。
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Validation 构造输入校验错误。
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Authorization 构造权限拒绝错误。
// 与 Validation 分开，调用方才能映射到正确的拒绝响应（403 而非 400）。
func Authorization(format string, args ...any) *Error {
	return &Error{Code: CodeAuthorization, Message: fmt.Sprintf(format, args...)}
}

// NotFound 构造实体不存在错误。
func NotFound(entity, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id)}
}

// AnalyzerFault 包装分析器自身抛出的缺陷。
func AnalyzerFault(err error) *Error {
	return &Error{Code: CodeAnalyzerFault, Message: "analyzer fault", Err: err}
}

// Persistence 包装存储层错误。
func Persistence(err error, format string, args ...any) *Error {
	return &Error{Code: CodePersistence, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf 提取错误的分类码；非本包错误返回空串。
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is 判断错误是否属于指定分类。
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
