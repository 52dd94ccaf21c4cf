package model

// ChatMessageResponse 对话消息响应
type ChatMessageResponse struct {
	ConversationID string         `json:"conversation_id"`
	Message        string         `json:"message"`
	Actions        []ActionResult `json:"actions"`
	Usage          *TokenUsage    `json:"usage,omitempty"`
	CacheHit       bool           `json:"cache_hit,omitempty"`
}

// ActionResult 单个动作的执行结果（随响应返回，失败不影响对话本身）
type ActionResult struct {
	Identifier string `bson:"identifier" json:"identifier"`
	Name       string `bson:"name" json:"name"`
	Outcome    string `bson:"outcome" json:"outcome"` // executed / skipped / failed
	FormID     string `bson:"form_id,omitempty" json:"form_id,omitempty"`
}

// ErrorResponse 错误响应信封
type ErrorResponse struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// WidgetConfigResponse widget 配置投影（公开，不含租户敏感字段）
type WidgetConfigResponse struct {
	ChatbotID    string        `json:"chatbot_id"`
	Name         string        `json:"name"`
	Theme        ChatbotTheme  `json:"theme"`
	FirstMessage string        `json:"first_message"`
	Placeholder  string        `json:"placeholder_text"`
	Forms        []ChatbotForm `json:"forms"`
	FAQs         []FAQ         `json:"faqs"`
}

// FormSubmitResponse 表单提交响应
type FormSubmitResponse struct {
	SubmissionID string `json:"submission_id"`
	Success      bool   `json:"success"`
}

// LeadExtractResponse 线索提取响应
type LeadExtractResponse struct {
	LeadsFound int `json:"leads_found"`
}
