package model

import "time"

// 对话状态
const (
	ConversationStatusActive = "active"
	ConversationStatusEnded  = "ended"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation 对话实体
// 消息单独存放在 messages 集合，按 seq 升序即为对话顺序
type Conversation struct {
	ID             string     `bson:"_id" json:"id"`
	ChatbotID      string     `bson:"chatbot_id" json:"chatbot_id"`
	VisitorID      string     `bson:"visitor_id" json:"visitor_id"`
	Status         string     `bson:"status" json:"status"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	EndedAt        *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	LastActivityAt time.Time  `bson:"last_activity_at" json:"last_activity_at"`
	// MessageSeq 已分配的消息序号水位，追加消息时自增
	MessageSeq int64 `bson:"message_seq" json:"-"`
}

// Message 消息，追加后不可变
// 助手消息携带该回合触发的动作结果，重复投递时据此回放
type Message struct {
	ID             string         `bson:"_id" json:"id"`
	ConversationID string         `bson:"conversation_id" json:"conversation_id"`
	Role           string         `bson:"role" json:"role"`
	Content        string         `bson:"content" json:"content"`
	Actions        []ActionResult `bson:"actions,omitempty" json:"actions,omitempty"`
	Seq            int64          `bson:"seq" json:"seq"`
	TokenUsage     *TokenUsage    `bson:"token_usage,omitempty" json:"token_usage,omitempty"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
}

// ContextSnapshot 单轮对话的上下文快照（仅存在于内存，不落库）
// Version 只依赖机器人配置的修订标记，与对话历史无关
type ContextSnapshot struct {
	SystemPrompt     string
	KnowledgeExcerpt string
	FAQExcerpt       string
	History          []Message
	UserText         string
	Version          string
}
