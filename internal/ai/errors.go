package ai

import (
	"context"
	"errors"
	"strings"
)

// 上游错误分类，Orchestrator 据此决定回退行为
var (
	ErrTimeout     = errors.New("ai: upstream timeout")
	ErrRateLimited = errors.New("ai: upstream rate limited")
	ErrRejected    = errors.New("ai: upstream rejected request")
)

// errClass 错误分类结果
type errClass int

const (
	classTransient errClass = iota // 网络错误、5xx，可重试
	classTimeout                   // 超时，可重试
	classRateLimit                 // 限流，退避后可重试
	classRejected                  // 请求非法（4xx），不重试
)

// classify 对上游错误做粗粒度分类
// provider SDK 不暴露结构化错误类型，按错误文本和 context 状态判断
func classify(err error) errClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return classTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit"):
		return classRateLimit
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return classTimeout
	case strings.Contains(msg, "400") || strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") || strings.Contains(msg, "404") ||
		strings.Contains(msg, "invalid request") || strings.Contains(msg, "invalid model"):
		return classRejected
	default:
		return classTransient
	}
}

// terminal 把分类映射到对外暴露的错误种类
func (c errClass) terminal() error {
	switch c {
	case classTimeout, classTransient:
		return ErrTimeout
	case classRateLimit:
		return ErrRateLimited
	default:
		return ErrRejected
	}
}

// retryable 该类错误是否允许重试
func (c errClass) retryable() bool {
	return c != classRejected
}
