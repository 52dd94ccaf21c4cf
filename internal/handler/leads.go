package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voxtro/internal/model"
	"voxtro/internal/service"
)

// LeadHandler 线索提取处理器
type LeadHandler struct {
	chatSvc *service.ChatService
}

// NewLeadHandler 创建线索处理器
func NewLeadHandler(chatSvc *service.ChatService) *LeadHandler {
	return &LeadHandler{chatSvc: chatSvc}
}

// Extract 批量线索提取接口（后台任务入口）
// @Summary 批量提取线索
// @Tags leads
// @Accept json
// @Produce json
// @Param request body model.LeadExtractRequest true "对话列表"
// @Success 200 {object} model.LeadExtractResponse
// @Security BearerAuth
// @Router /api/v1/leads/extract [post]
func (h *LeadHandler) Extract(c *gin.Context) {
	var req model.LeadExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	found, err := h.chatSvc.ExtractLeads(c.Request.Context(), req.ConversationIDs)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.LeadExtractResponse{LeadsFound: found})
}
