package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voxtro/internal/model"
	"voxtro/internal/service"
)

// ChatHandler 对话处理器
type ChatHandler struct {
	svc *service.ChatService
}

// NewChatHandler 创建对话处理器
func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// ChatMessage 对话消息接口（认证路径，支持 preview_mode）
// @Summary 发送对话消息
// @Tags chat
// @Accept json
// @Produce json
// @Param request body model.ChatMessageRequest true "消息"
// @Success 200 {object} model.ChatMessageResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /api/v1/chat-message [post]
func (h *ChatHandler) ChatMessage(c *gin.Context) {
	var req model.ChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	resp, err := h.svc.HandleMessage(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// EndConversation 结束对话接口
// @Summary 结束对话
// @Tags chat
// @Accept json
// @Produce json
// @Param id path string true "对话 ID"
// @Param request body model.EndConversationRequest true "访客"
// @Success 200 {object} gin.H
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/conversations/{id}/end [post]
func (h *ChatHandler) EndConversation(c *gin.Context) {
	var req model.EndConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	if err := h.svc.EndConversation(c.Request.Context(), c.Param("id"), req.VisitorID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}
