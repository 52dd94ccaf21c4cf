package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voxtro/internal/model"
	"voxtro/internal/service"
)

// WidgetHandler widget 公开接口处理器
type WidgetHandler struct {
	chatSvc   *service.ChatService
	widgetSvc *service.WidgetService
}

// NewWidgetHandler 创建 widget 处理器
func NewWidgetHandler(chatSvc *service.ChatService, widgetSvc *service.WidgetService) *WidgetHandler {
	return &WidgetHandler{chatSvc: chatSvc, widgetSvc: widgetSvc}
}

// Message widget 消息接口（公开，preview 固定为 false）
// @Summary widget 发送消息
// @Tags widget
// @Accept json
// @Produce json
// @Param chatbot_id path string true "机器人 ID"
// @Param request body model.WidgetMessageRequest true "消息"
// @Success 200 {object} model.ChatMessageResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /api/v1/widget/{chatbot_id}/message [post]
func (h *WidgetHandler) Message(c *gin.Context) {
	var req model.WidgetMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	resp, err := h.chatSvc.HandleMessage(c.Request.Context(), &model.ChatMessageRequest{
		ChatbotID:      c.Param("chatbot_id"),
		ConversationID: req.ConversationID,
		VisitorID:      req.VisitorID,
		Message:        req.Message,
		MessageID:      req.MessageID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Config widget 配置接口
// @Summary widget 启动配置
// @Tags widget
// @Produce json
// @Param chatbot_id path string true "机器人 ID"
// @Success 200 {object} model.WidgetConfigResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Router /api/v1/widget/{chatbot_id}/config [get]
func (h *WidgetHandler) Config(c *gin.Context) {
	resp, err := h.widgetSvc.Config(c.Request.Context(), c.Param("chatbot_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
