package model

import "time"

// 动作执行结果
const (
	InvocationOutcomeExecuted = "executed"
	InvocationOutcomeSkipped  = "skipped"
	InvocationOutcomeFailed   = "failed"
)

// ActionInvocation 动作执行记录
// (message_id, action_id) 上有唯一索引，重复投递同一消息时第二次写入被拒绝
type ActionInvocation struct {
	ID         string         `bson:"_id" json:"id"`
	MessageID  string         `bson:"message_id" json:"message_id"`
	ActionID   string         `bson:"action_id" json:"action_id"`
	ActionName string         `bson:"action_name" json:"action_name"`
	Input      map[string]any `bson:"input,omitempty" json:"input,omitempty"`
	Outcome    string         `bson:"outcome" json:"outcome"`
	Error      string         `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt  time.Time      `bson:"created_at" json:"created_at"`
}

// Lead 从对话中提取到的线索
type Lead struct {
	ID             string    `bson:"_id" json:"id"`
	ChatbotID      string    `bson:"chatbot_id" json:"chatbot_id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	Email          string    `bson:"email,omitempty" json:"email,omitempty"`
	Phone          string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Name           string    `bson:"name,omitempty" json:"name,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}

// FormSubmission 表单提交记录
type FormSubmission struct {
	ID             string         `bson:"_id" json:"id"`
	ChatbotID      string         `bson:"chatbot_id" json:"chatbot_id"`
	FormID         string         `bson:"form_id" json:"form_id"`
	ConversationID string         `bson:"conversation_id,omitempty" json:"conversation_id,omitempty"`
	VisitorID      string         `bson:"visitor_id,omitempty" json:"visitor_id,omitempty"`
	Data           map[string]any `bson:"data" json:"data"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
}
