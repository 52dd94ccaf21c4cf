package model

import "time"

// 动作类型
const (
	ActionTypeShowForm    = "show_form"    // 在会话中弹出表单
	ActionTypeCaptureLead = "capture_lead" // 从回复中提取线索
	ActionTypeWebhook     = "webhook"      // 通知外部 webhook
)

// Chatbot 机器人配置实体（租户所有）
type Chatbot struct {
	ID           string `bson:"_id" json:"id"`
	UserID       string `bson:"user_id" json:"user_id"` // 所属租户
	Name         string `bson:"name" json:"name"`
	SystemPrompt string `bson:"system_prompt" json:"system_prompt"`
	FirstMessage string `bson:"first_message" json:"first_message"`
	Placeholder  string `bson:"placeholder_text" json:"placeholder_text"`
	IsActive     bool   `bson:"is_active" json:"is_active"`

	// 模型参数
	Model       string  `bson:"model" json:"model"`
	Temperature float64 `bson:"temperature" json:"temperature"`
	MaxTokens   int     `bson:"max_tokens" json:"max_tokens"`

	// 缓存与预算
	CacheEnabled       bool  `bson:"cache_enabled" json:"cache_enabled"`
	CacheDurationHours int   `bson:"cache_duration_hours" json:"cache_duration_hours"`
	DailyTokenLimit    int64 `bson:"daily_token_limit" json:"daily_token_limit"`
	MonthlyTokenLimit  int64 `bson:"monthly_token_limit" json:"monthly_token_limit"`
	HistoryLimit       int   `bson:"history_limit" json:"history_limit"`

	// 外观（widget config 投影用）
	Theme ChatbotTheme `bson:"theme" json:"theme"`

	Actions   []ChatbotAction   `bson:"actions" json:"actions"`
	Forms     []ChatbotForm     `bson:"forms" json:"forms"`
	FAQs      []FAQ             `bson:"faqs" json:"faqs"`
	Knowledge []KnowledgeSource `bson:"knowledge" json:"knowledge"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ChatbotTheme widget 外观配置
type ChatbotTheme struct {
	PrimaryColor string `bson:"primary_color" json:"primary_color"`
	Position     string `bson:"position" json:"position"`
	AvatarURL    string `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	ButtonText   string `bson:"button_text,omitempty" json:"button_text,omitempty"`
	HideBranding bool   `bson:"hide_branding" json:"hide_branding"`
}

// ChatbotAction 机器人声明的动作
type ChatbotAction struct {
	ID              string   `bson:"id" json:"id"`
	Name            string   `bson:"name" json:"name"`
	Description     string   `bson:"description" json:"description"`
	Type            string   `bson:"type" json:"type"` // show_form / capture_lead / webhook
	FormID          string   `bson:"form_id,omitempty" json:"form_id,omitempty"`
	WebhookURL      string   `bson:"webhook_url,omitempty" json:"webhook_url,omitempty"`
	TriggerKeywords []string `bson:"trigger_keywords,omitempty" json:"trigger_keywords,omitempty"`
	IsActive        bool     `bson:"is_active" json:"is_active"`
}

// ChatbotForm 机器人表单定义
type ChatbotForm struct {
	ID         string      `bson:"id" json:"id"`
	Name       string      `bson:"name" json:"name"`
	Fields     []FormField `bson:"fields" json:"fields"`
	WebhookURL string      `bson:"webhook_url,omitempty" json:"webhook_url,omitempty"`
}

// FormField 表单字段
type FormField struct {
	Name     string `bson:"name" json:"name"`
	Label    string `bson:"label" json:"label"`
	Type     string `bson:"type" json:"type"`
	Required bool   `bson:"required" json:"required"`
}

// FAQ 常见问题条目
type FAQ struct {
	ID        string `bson:"id" json:"id"`
	Question  string `bson:"question" json:"question"`
	Answer    string `bson:"answer" json:"answer"`
	SortOrder int    `bson:"sort_order" json:"sort_order"`
	IsActive  bool   `bson:"is_active" json:"is_active"`
	Revision  string `bson:"revision" json:"revision"` // 内容修订标记，参与 context version 计算
}

// KnowledgeSource 知识库来源（由外部爬虫填充，此处只读）
type KnowledgeSource struct {
	ID        string    `bson:"id" json:"id"`
	Title     string    `bson:"title" json:"title"`
	Content   string    `bson:"content" json:"content"`
	Revision  string    `bson:"revision" json:"revision"` // 内容修订标记，参与 context version 计算
	Relevance float64   `bson:"relevance,omitempty" json:"relevance,omitempty"`
	CrawledAt time.Time `bson:"crawled_at" json:"crawled_at"`
}
