package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voxtro/internal/model"
	"voxtro/internal/service"
)

// FormHandler 表单提交处理器
type FormHandler struct {
	widgetSvc *service.WidgetService
}

// NewFormHandler 创建表单处理器
func NewFormHandler(widgetSvc *service.WidgetService) *FormHandler {
	return &FormHandler{widgetSvc: widgetSvc}
}

// Submit 表单提交接口
// @Summary 提交表单
// @Tags forms
// @Accept json
// @Produce json
// @Param request body model.FormSubmitRequest true "提交内容"
// @Success 200 {object} model.FormSubmitResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 422 {object} model.ErrorResponse
// @Router /api/v1/forms/submit [post]
func (h *FormHandler) Submit(c *gin.Context) {
	var req model.FormSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	sub, err := h.widgetSvc.SubmitForm(c.Request.Context(), req.ChatbotID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.FormSubmitResponse{
		SubmissionID: sub.ID,
		Success:      true,
	})
}
