package model

import "time"

// TokenUsage Token 使用统计
type TokenUsage struct {
	PromptTokens     int `bson:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int `bson:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int `bson:"total_tokens" json:"total_tokens"`
}

// TokenUsageRecord token 使用流水，追加写入，只做窗口求和
type TokenUsageRecord struct {
	ID             string    `bson:"_id" json:"id"`
	ChatbotID      string    `bson:"chatbot_id" json:"chatbot_id"`
	ConversationID string    `bson:"conversation_id,omitempty" json:"conversation_id,omitempty"`
	InputTokens    int64     `bson:"input_tokens" json:"input_tokens"`
	OutputTokens   int64     `bson:"output_tokens" json:"output_tokens"`
	TotalTokens    int64     `bson:"total_tokens" json:"total_tokens"`
	Model          string    `bson:"model" json:"model"`
	Cost           float64   `bson:"cost" json:"cost"`
	CacheHit       bool      `bson:"cache_hit" json:"cache_hit"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}
