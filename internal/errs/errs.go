// 包 errs：领地引擎的错误分类（校验、未找到、持久化、部分落库），供引擎与传输层统一判定
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code：机器可读的错误码，传输层据此映射状态码
type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeNotFound           Code = "NOT_FOUND"
	CodePersistence        Code = "PERSISTENCE"
	CodePartialApplication Code = "PARTIAL_APPLICATION"
	CodeUnknown            Code = "UNKNOWN"
)

// ValidationError：输入缺失或格式错误；快速失败，不修改任何状态
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return "validation: " + e.Field + ": " + e.Reason
}

func (e *ValidationError) Code() Code { return CodeValidation }

// Invalid：构造校验错误的快捷方式
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError：查询对象不存在（区别于“存在但为空”）
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return e.Kind + " not found: " + e.ID }

func (e *NotFoundError) Code() Code { return CodeNotFound }

// PersistenceError：底层存储不可用或写入被拒绝
// 约束：Region 为空表示与具体分片无关（如画像写入）
type PersistenceError struct {
	Op     string
	Region string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Region != "" {
		return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.Region, e.Err)
	}
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Code() Code { return CodePersistence }

// PartialApplicationError：跨分片提交时部分分片成功、部分失败
// 约束：Committed 与 Applied 只包含确实落库的分片与格子数，调用方以此为准
type PartialApplicationError struct {
	Committed []string
	Failed    []string
	Applied   int
	Err       error
}

func (e *PartialApplicationError) Error() string {
	return fmt.Sprintf("partial application: committed=[%s] failed=[%s] applied=%d: %v",
		strings.Join(e.Committed, ","), strings.Join(e.Failed, ","), e.Applied, e.Err)
}

func (e *PartialApplicationError) Unwrap() error { return e.Err }

func (e *PartialApplicationError) Code() Code { return CodePartialApplication }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var v *NotFoundError
	return errors.As(err, &v)
}

func IsPersistence(err error) bool {
	var v *PersistenceError
	return errors.As(err, &v)
}

func IsPartial(err error) bool {
	var v *PartialApplicationError
	return errors.As(err, &v)
}

// CodeOf：提取错误码；部分落库优先于其内部包装的持久化错误
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case IsPartial(err):
		return CodePartialApplication
	case IsValidation(err):
		return CodeValidation
	case IsNotFound(err):
		return CodeNotFound
	case IsPersistence(err):
		return CodePersistence
	}
	return CodeUnknown
}
