package service

import (
	"errors"
	"fmt"

	"voxtro/internal/ai"
)

// Kind 业务错误种类，handler 层据此映射 HTTP 状态码
type Kind string

const (
	KindChatbotNotFound        Kind = "ChatbotNotFound"
	KindChatbotInactive        Kind = "ChatbotInactive"
	KindConversationNotFound   Kind = "ConversationNotFound"
	KindTokenBudgetExceeded    Kind = "TokenBudgetExceeded"
	KindUpstreamTimeout        Kind = "UpstreamTimeout"
	KindUpstreamRateLimited    Kind = "UpstreamRateLimited"
	KindUpstreamRejected       Kind = "UpstreamRejected"
	KindCacheComputationFailed Kind = "CacheComputationFailed"
	KindValidationFailed       Kind = "ValidationFailed"
)

// Error 携带错误种类的业务错误
// Message 面向调用方；预算/上游类错误不向访客泄露细节
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("service: %s (%s)", e.Kind, e.Message)
	}
	return fmt.Sprintf("service: %s (%s): %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// 访客可见的通用失败文案，不泄露计费与上游细节
const genericUnavailableMessage = "The assistant is temporarily unavailable. Please try again."

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf 提取错误种类
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// fromUpstream 把 LLM 网关错误映射到业务错误种类
// 计算失败统一使用非泄露文案
func fromUpstream(err error) *Error {
	switch {
	case errors.Is(err, ai.ErrTimeout):
		return newError(KindUpstreamTimeout, genericUnavailableMessage, err)
	case errors.Is(err, ai.ErrRateLimited):
		return newError(KindUpstreamRateLimited, genericUnavailableMessage, err)
	case errors.Is(err, ai.ErrRejected):
		return newError(KindUpstreamRejected, genericUnavailableMessage, err)
	default:
		return newError(KindCacheComputationFailed, genericUnavailableMessage, err)
	}
}
