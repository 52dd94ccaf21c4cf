package model

// ChatMessageRequest 对话消息请求（认证路径，支持 preview_mode）
type ChatMessageRequest struct {
	ChatbotID      string `json:"chatbot_id" binding:"required"`
	ConversationID string `json:"conversation_id,omitempty"`
	VisitorID      string `json:"visitor_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
	PreviewMode    bool   `json:"preview_mode,omitempty"`
	// MessageID 可选的客户端消息 ID，重试时携带同一 ID 可保证动作不重复执行
	MessageID string `json:"message_id,omitempty"`
}

// WidgetMessageRequest widget 消息请求（公开路径，无 preview 语义）
type WidgetMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	VisitorID      string `json:"visitor_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
	MessageID      string `json:"message_id,omitempty"`
}

// EndConversationRequest 结束对话请求
type EndConversationRequest struct {
	VisitorID string `json:"visitor_id" binding:"required"`
}

// FormSubmitRequest 表单提交请求
type FormSubmitRequest struct {
	ChatbotID      string         `json:"chatbot_id" binding:"required"`
	FormID         string         `json:"form_id" binding:"required"`
	SubmittedData  map[string]any `json:"submitted_data" binding:"required"`
	ConversationID string         `json:"conversation_id,omitempty"`
	VisitorID      string         `json:"visitor_id,omitempty"`
}

// LeadExtractRequest 线索提取请求（批处理入口）
type LeadExtractRequest struct {
	ConversationIDs []string `json:"conversation_ids" binding:"required"`
}
