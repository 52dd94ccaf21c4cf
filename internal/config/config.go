package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	AI     AIConfig     `mapstructure:"ai"`
	Chat   ChatConfig   `mapstructure:"chat"`
	Log    LogConfig    `mapstructure:"log"`
	Mongo  MongoConfig  `mapstructure:"mongo"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Auth   AuthConfig   `mapstructure:"auth"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AIConfig AI 服务配置
type AIConfig struct {
	Provider     string          `mapstructure:"provider"`
	APIKey       string          `mapstructure:"api_key"`
	Model        string          `mapstructure:"model"`
	BaseURL      string          `mapstructure:"base_url"`
	Timeout      time.Duration   `mapstructure:"timeout"`       // 单次调用硬超时
	MaxRetries   int             `mapstructure:"max_retries"`   // 瞬时错误重试次数
	RetryBackoff time.Duration   `mapstructure:"retry_backoff"` // 重试初始退避
	Options      AIOptionsConfig `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// ChatConfig 对话编排配置
type ChatConfig struct {
	HistoryLimit             int           `mapstructure:"history_limit"`               // 上下文携带的最近消息数
	ContextCharBudget        int           `mapstructure:"context_char_budget"`         // 上下文总字符预算
	KnowledgeCharBudget      int           `mapstructure:"knowledge_char_budget"`       // 知识库摘录字符预算
	CacheTTL                 time.Duration `mapstructure:"cache_ttl"`                   // 响应缓存默认 TTL
	ConversationIdleTimeout  time.Duration `mapstructure:"conversation_idle_timeout"`   // 超过该时长未活动的对话视为已结束
	DefaultDailyTokenLimit   int64         `mapstructure:"default_daily_token_limit"`   // 机器人未配置时的日 token 上限
	DefaultMonthlyTokenLimit int64         `mapstructure:"default_monthly_token_limit"` // 机器人未配置时的月 token 上限
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`          // JWT密钥
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"` // Access Token过期时间
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.Chat.HistoryLimit < 0 {
		return errors.New("chat.history_limit must be >= 0")
	}
	if c.Chat.ContextCharBudget <= 0 {
		return errors.New("chat.context_char_budget must be > 0")
	}

	return nil
}
