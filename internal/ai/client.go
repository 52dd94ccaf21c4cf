package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"voxtro/internal/ai/component"
	"voxtro/internal/config"
	vmodel "voxtro/internal/model"
)

// Client LLM 网关
// 职责: 封装上游补全调用，带硬超时与瞬时错误重试
type Client struct {
	chatModel    model.BaseChatModel
	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
}

// ModelParams 单次调用的模型参数（来自机器人配置）
type ModelParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Completion 补全结果
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Usage     vmodel.TokenUsage
}

// ToolCall 上游返回的工具调用
type ToolCall struct {
	Name      string
	Arguments string
}

// NewClient 创建 LLM 网关
func NewClient(ctx context.Context, cfg *config.AIConfig) (*Client, error) {
	chatModel, err := component.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewClientWithModel(chatModel, cfg), nil
}

// NewClientWithModel 用已有 ChatModel 创建网关（测试注入用）
func NewClientWithModel(chatModel model.BaseChatModel, cfg *config.AIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Client{
		chatModel:    chatModel,
		timeout:      timeout,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: backoff,
	}
}

// Complete 执行一次补全
// 上下文快照在此转换为消息序列；瞬时失败按指数退避重试，请求非法不重试
func (c *Client) Complete(ctx context.Context, snapshot *vmodel.ContextSnapshot, params ModelParams) (*Completion, error) {
	messages := buildMessages(snapshot)
	opts := buildOptions(params)

	var lastClass errClass
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.chatModel.Generate(callCtx, messages, opts...)
		cancel()

		if err == nil {
			return toCompletion(resp), nil
		}

		lastClass = classify(err)
		if !lastClass.retryable() {
			log.Warn().Err(err).Str("model", params.Model).Msg("upstream rejected request")
			return nil, fmt.Errorf("%w: %v", ErrRejected, err)
		}

		log.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", c.maxRetries).
			Msg("upstream call failed, will retry")
	}

	return nil, fmt.Errorf("%w: retries exhausted", lastClass.terminal())
}

// buildOptions 机器人级模型参数转换为单次调用选项，零值不覆盖全局配置
func buildOptions(params ModelParams) []model.Option {
	var opts []model.Option
	if params.Model != "" {
		opts = append(opts, model.WithModel(params.Model))
	}
	if params.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(params.Temperature)))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(params.MaxTokens))
	}
	return opts
}

// buildMessages 把上下文快照转换为模型消息序列
// 固定顺序: system prompt(+知识库+FAQ) -> 历史 -> 当前用户消息
func buildMessages(snapshot *vmodel.ContextSnapshot) []*schema.Message {
	var sb strings.Builder
	sb.WriteString(snapshot.SystemPrompt)
	if snapshot.KnowledgeExcerpt != "" {
		sb.WriteString("\n\n## Knowledge base\n")
		sb.WriteString(snapshot.KnowledgeExcerpt)
	}
	if snapshot.FAQExcerpt != "" {
		sb.WriteString("\n\n## FAQ\n")
		sb.WriteString(snapshot.FAQExcerpt)
	}

	messages := make([]*schema.Message, 0, len(snapshot.History)+2)
	messages = append(messages, schema.SystemMessage(sb.String()))

	for _, msg := range snapshot.History {
		switch msg.Role {
		case vmodel.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		case vmodel.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Content))
		}
	}

	messages = append(messages, schema.UserMessage(snapshot.UserText))
	return messages
}

// toCompletion 提取回复文本、工具调用与 token 使用量
func toCompletion(resp *schema.Message) *Completion {
	completion := &Completion{Text: resp.Content}

	for _, tc := range resp.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, ToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		completion.Usage = vmodel.TokenUsage{
			PromptTokens:     resp.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: resp.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      resp.ResponseMeta.Usage.TotalTokens,
		}
	}
	return completion
}
