package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"voxtro/internal/model"
	"voxtro/internal/service"
)

// writeError 把业务错误映射为 HTTP 响应
// 未识别的错误一律 500，细节只进日志不出响应
func writeError(c *gin.Context, err error) {
	kind, ok := service.KindOf(err)
	if !ok {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			ErrorKind: "InternalError",
			Message:   "Internal Server Error",
		})
		return
	}

	message := ""
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}

	c.JSON(statusFor(kind), model.ErrorResponse{
		ErrorKind: string(kind),
		Message:   message,
	})
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindChatbotNotFound, service.KindConversationNotFound:
		return http.StatusNotFound
	case service.KindChatbotInactive, service.KindTokenBudgetExceeded:
		return http.StatusConflict
	case service.KindUpstreamTimeout, service.KindUpstreamRateLimited,
		service.KindUpstreamRejected, service.KindCacheComputationFailed:
		return http.StatusServiceUnavailable
	case service.KindValidationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeBindError 请求体解析失败响应
func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{
		ErrorKind: string(service.KindValidationFailed),
		Message:   "Invalid request body: " + err.Error(),
	})
}
