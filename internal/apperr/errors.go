// Package apperr 定义入库链路使用的错误分类：
// NotFound / InvalidArgument 直接拒绝整份报告，TransientInfra 只在缓存和发布路径上出现并被吞掉。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind int

const (
	// KindInternal 未分类错误
	KindInternal Kind = iota
	// KindNotFound 机器人、商品、仓库等不存在
	KindNotFound
	// KindInvalidArgument 坐标越界、报告格式错误
	KindInvalidArgument
	// KindTransientInfra 缓存或发布通道暂时不可用
	KindTransientInfra
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindTransientInfra:
		return "transient_infra"
	default:
		return "internal"
	}
}

// 与 errors.Is 配合使用的哨兵错误
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTransientInfra  = errors.New("transient infrastructure failure")
)

// Error 带分类的错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 允许 errors.Is(err, ErrNotFound) 这类判断
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrInvalidArgument:
		return e.Kind == KindInvalidArgument
	case ErrTransientInfra:
		return e.Kind == KindTransientInfra
	}
	return false
}

// NotFound 构造 NotFound 错误
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument 构造 InvalidArgument 错误
func InvalidArgument(format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// Transient 包装基础设施错误
func Transient(err error, format string, args ...any) error {
	return &Error{Kind: KindTransientInfra, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 取出错误链上的第一个分类；没有分类时返回 KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
