package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"voxtro/internal/ai"
	"voxtro/internal/model"
	"voxtro/internal/repository"
)

// InvocationStore 动作执行记录的持久化接口
// Insert 对重复的 (message_id, action_id) 返回 repository.ErrDuplicateInvocation
type InvocationStore interface {
	Insert(ctx context.Context, inv *model.ActionInvocation) error
	SetOutcome(ctx context.Context, messageID, actionID, outcome, errMsg string) error
}

// LeadStore 线索持久化接口
type LeadStore interface {
	Insert(ctx context.Context, lead *model.Lead) error
	ExistsForConversation(ctx context.Context, convID string) (bool, error)
}

// ActionDispatcher 动作分发器
// 对每条助手回复评估机器人声明的动作；执行以 (message_id, action_id)
// 唯一键落库，同一消息重试时第二次评估是 no-op；
// 动作失败只记录并随响应返回，绝不使对话回合失败
type ActionDispatcher struct {
	invocations InvocationStore
	leads       LeadStore
}

// NewActionDispatcher 创建动作分发器
func NewActionDispatcher(invocations InvocationStore, leads LeadStore) *ActionDispatcher {
	return &ActionDispatcher{
		invocations: invocations,
		leads:       leads,
	}
}

// Dispatch 评估并执行匹配的动作
// persist=false（预览模式）时只评估不执行，返回 skipped
func (d *ActionDispatcher) Dispatch(
	ctx context.Context,
	bot *model.Chatbot,
	conv *model.Conversation,
	messageID string,
	replyText string,
	toolCalls []ai.ToolCall,
	persist bool,
) []model.ActionResult {
	var results []model.ActionResult

	for _, action := range bot.Actions {
		if !action.IsActive {
			continue
		}
		if !actionMatches(action, replyText, toolCalls) {
			continue
		}

		result := model.ActionResult{
			Identifier: action.ID,
			Name:       action.Name,
			FormID:     action.FormID,
		}

		if !persist {
			result.Outcome = model.InvocationOutcomeSkipped
			results = append(results, result)
			continue
		}

		result.Outcome = d.execute(ctx, bot, conv, messageID, action, toolCalls)
		results = append(results, result)
	}

	return results
}

// execute 执行单个动作
// 先以唯一键占位，占位失败说明此消息已执行过该动作
func (d *ActionDispatcher) execute(
	ctx context.Context,
	bot *model.Chatbot,
	conv *model.Conversation,
	messageID string,
	action model.ChatbotAction,
	toolCalls []ai.ToolCall,
) string {
	inv := &model.ActionInvocation{
		MessageID:  messageID,
		ActionID:   action.ID,
		ActionName: action.Name,
		Input:      toolCallInput(action, toolCalls),
		Outcome:    model.InvocationOutcomeExecuted,
	}

	if err := d.invocations.Insert(ctx, inv); err != nil {
		if errors.Is(err, repository.ErrDuplicateInvocation) {
			return model.InvocationOutcomeSkipped
		}
		log.Error().Err(err).
			Str("message_id", messageID).
			Str("action_id", action.ID).
			Msg("failed to claim action invocation")
		return model.InvocationOutcomeFailed
	}

	if err := d.runEffect(ctx, bot, conv, action); err != nil {
		log.Warn().Err(err).
			Str("action_id", action.ID).
			Str("action_type", action.Type).
			Msg("action effect failed")
		// 占位记录写的是 executed，落库结果必须改成真实的 failed
		if updErr := d.invocations.SetOutcome(ctx, messageID, action.ID, model.InvocationOutcomeFailed, err.Error()); updErr != nil {
			log.Error().Err(updErr).
				Str("message_id", messageID).
				Str("action_id", action.ID).
				Msg("failed to record action failure")
		}
		return model.InvocationOutcomeFailed
	}
	return model.InvocationOutcomeExecuted
}

// runEffect 执行动作的副作用
func (d *ActionDispatcher) runEffect(ctx context.Context, bot *model.Chatbot, conv *model.Conversation, action model.ChatbotAction) error {
	switch action.Type {
	case model.ActionTypeShowForm:
		// 表单由前端根据返回的 form_id 渲染，服务端只记录触发
		return nil
	case model.ActionTypeCaptureLead:
		if conv == nil {
			return nil
		}
		lead := &model.Lead{
			ChatbotID:      bot.ID,
			ConversationID: conv.ID,
		}
		return d.leads.Insert(ctx, lead)
	case model.ActionTypeWebhook:
		// 外部 webhook 投递由独立的通知组件完成，这里记录触发即可
		log.Info().Str("webhook_url", action.WebhookURL).Str("action_id", action.ID).Msg("webhook action triggered")
		return nil
	default:
		return nil
	}
}

// actionMatches 动作是否命中：工具调用同名，或回复命中触发关键词
func actionMatches(action model.ChatbotAction, replyText string, toolCalls []ai.ToolCall) bool {
	for _, tc := range toolCalls {
		if tc.Name == action.Name {
			return true
		}
	}

	normalized := NormalizeText(replyText)
	for _, kw := range action.TriggerKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(normalized, NormalizeText(kw)) {
			return true
		}
	}
	return false
}

// toolCallInput 提取与动作同名的工具调用参数
func toolCallInput(action model.ChatbotAction, toolCalls []ai.ToolCall) map[string]any {
	for _, tc := range toolCalls {
		if tc.Name == action.Name && tc.Arguments != "" {
			return map[string]any{"arguments": tc.Arguments}
		}
	}
	return nil
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-\s()]{7,}[0-9]`)
)

// ExtractLeads 从对话文本中提取线索（批处理入口，定时任务复用）
// 已有线索的对话直接跳过，重复调用是 no-op
func (d *ActionDispatcher) ExtractLeads(ctx context.Context, chatbotID, conversationID string, messages []model.Message) (int, error) {
	exists, err := d.leads.ExistsForConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	var email, phone string
	for _, msg := range messages {
		if msg.Role != model.RoleUser {
			continue
		}
		if email == "" {
			email = emailPattern.FindString(msg.Content)
		}
		if phone == "" {
			phone = phonePattern.FindString(msg.Content)
		}
	}

	if email == "" && phone == "" {
		return 0, nil
	}

	lead := &model.Lead{
		ChatbotID:      chatbotID,
		ConversationID: conversationID,
		Email:          email,
		Phone:          phone,
	}
	if err := d.leads.Insert(ctx, lead); err != nil {
		return 0, err
	}
	return 1, nil
}
