package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"voxtro/internal/ai"
	"voxtro/internal/config"
	"voxtro/internal/model"
	"voxtro/internal/pkg/id"
	"voxtro/internal/repository"
)

// ChatbotStore 机器人配置读取接口
type ChatbotStore interface {
	FindByID(ctx context.Context, chatbotID string) (*model.Chatbot, error)
}

// ConversationStore 对话与消息的持久化接口
type ConversationStore interface {
	Create(ctx context.Context, conv *model.Conversation) error
	FindByID(ctx context.Context, convID string) (*model.Conversation, error)
	FindOpen(ctx context.Context, chatbotID, visitorID string) (*model.Conversation, error)
	AppendMessage(ctx context.Context, msg *model.Message) error
	ReplyTo(ctx context.Context, convID, userMessageID string) (*model.Message, error)
	History(ctx context.Context, convID string, limit int) ([]model.Message, error)
	End(ctx context.Context, convID string) error
}

// Completer LLM 补全接口
type Completer interface {
	Complete(ctx context.Context, snapshot *model.ContextSnapshot, params ai.ModelParams) (*ai.Completion, error)
}

// previewConversationID 预览模式不落库，返回固定对话 ID
const previewConversationID = "preview"

// ChatService 对话编排服务
// 业务流程: 解析对话 -> 获取对话锁 -> 追加用户消息 -> 组装上下文 ->
// 查缓存/预算预留/调用模型 -> 分发动作 -> 追加助手消息
type ChatService struct {
	bots       ChatbotStore
	convs      ConversationStore
	assembler  *ContextAssembler
	cache      *ResponseCache
	ledger     *TokenLedger
	llm        Completer
	dispatcher *ActionDispatcher
	locks      *conversationLocks
	cfg        config.ChatConfig
}

// NewChatService 创建对话编排服务
func NewChatService(
	bots ChatbotStore,
	convs ConversationStore,
	assembler *ContextAssembler,
	cache *ResponseCache,
	ledger *TokenLedger,
	llm Completer,
	dispatcher *ActionDispatcher,
	cfg config.ChatConfig,
) *ChatService {
	return &ChatService{
		bots:       bots,
		convs:      convs,
		assembler:  assembler,
		cache:      cache,
		ledger:     ledger,
		llm:        llm,
		dispatcher: dispatcher,
		locks:      newConversationLocks(),
		cfg:        cfg,
	}
}

// HandleMessage 处理一条入站消息，产出一条 AI 响应
// 结构性错误（机器人/对话不存在、预算超限）在任何 LLM 调用前返回
func (s *ChatService) HandleMessage(ctx context.Context, req *model.ChatMessageRequest) (*model.ChatMessageResponse, error) {
	bot, err := s.bots.FindByID(ctx, req.ChatbotID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindChatbotNotFound, "chatbot not found", err)
	}
	if err != nil {
		return nil, err
	}
	// 预览模式允许访问未启用的机器人（建站器内测试路径）
	if !bot.IsActive && !req.PreviewMode {
		return nil, newError(KindChatbotInactive, "chatbot is inactive", nil)
	}

	if req.PreviewMode {
		return s.handlePreview(ctx, bot, req)
	}

	conv, err := s.resolveConversation(ctx, bot, req)
	if err != nil {
		return nil, err
	}

	// 同一对话严格串行：后到的消息在锁上排队，绝不交错
	release, err := s.locks.Acquire(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	logger := log.With().
		Str("chatbot_id", bot.ID).
		Str("conversation_id", conv.ID).
		Logger()

	messageID := req.MessageID
	if messageID == "" {
		messageID = id.New()
	}

	// 历史在追加当前消息之前读取，当前消息单独进入快照
	history, err := s.convs.History(ctx, conv.ID, s.historyLimit(bot))
	if err != nil {
		return nil, err
	}

	userMsg := &model.Message{
		ID:             messageID,
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        req.Message,
	}
	if err := s.convs.AppendMessage(ctx, userMsg); err != nil {
		if !errors.Is(err, repository.ErrDuplicateMessage) {
			return nil, err
		}
		// 重复投递：回合已经落库过，回放记录的回复，不再产生第二份结果
		reply, replayErr := s.convs.ReplyTo(ctx, conv.ID, messageID)
		if replayErr == nil {
			logger.Info().Str("message_id", messageID).Msg("redelivered message, replaying recorded reply")
			return &model.ChatMessageResponse{
				ConversationID: conv.ID,
				Message:        reply.Content,
				Actions:        orEmpty(reply.Actions),
				Usage:          reply.TokenUsage,
			}, nil
		}
		if !errors.Is(replayErr, repository.ErrNotFound) {
			return nil, replayErr
		}
		// 上一次回合在助手消息落库前中断，重跑本回合补齐记录
	}

	snapshot := s.assembler.Build(bot, history, req.Message)

	entry, cacheHit, err := s.respond(ctx, bot, conv, snapshot, false)
	if err != nil {
		return nil, err
	}
	if cacheHit {
		logger.Info().Msg("served from response cache")
	}

	actions := s.dispatcher.Dispatch(ctx, bot, conv, messageID, entry.Message, entry.ToolCalls, true)

	assistantMsg := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        entry.Message,
		TokenUsage:     &entry.Usage,
	}
	if len(actions) > 0 {
		assistantMsg.Actions = actions
	}
	if err := s.convs.AppendMessage(ctx, assistantMsg); err != nil {
		// 回复已经产生，落库失败只能记录
		logger.Error().Err(err).Msg("failed to save assistant message")
	}

	logger.Info().
		Bool("cache_hit", cacheHit).
		Int("prompt_tokens", entry.Usage.PromptTokens).
		Int("completion_tokens", entry.Usage.CompletionTokens).
		Msg("chat turn completed")

	return &model.ChatMessageResponse{
		ConversationID: conv.ID,
		Message:        entry.Message,
		Actions:        orEmpty(actions),
		Usage:          &entry.Usage,
		CacheHit:       cacheHit,
	}, nil
}

// handlePreview 预览回合：不落消息、不落动作、不记账，
// 但完整走上下文组装、缓存查询与模型调用；指纹含 preview 标记，
// 预览写入的缓存条目不会泄漏给正式流量
func (s *ChatService) handlePreview(ctx context.Context, bot *model.Chatbot, req *model.ChatMessageRequest) (*model.ChatMessageResponse, error) {
	snapshot := s.assembler.Build(bot, nil, req.Message)

	entry, cacheHit, err := s.respond(ctx, bot, nil, snapshot, true)
	if err != nil {
		return nil, err
	}

	actions := s.dispatcher.Dispatch(ctx, bot, nil, "", entry.Message, entry.ToolCalls, false)

	return &model.ChatMessageResponse{
		ConversationID: previewConversationID,
		Message:        entry.Message,
		Actions:        orEmpty(actions),
		Usage:          &entry.Usage,
		CacheHit:       cacheHit,
	}, nil
}

// respond 产出回复：缓存命中直接返回，否则预算预留 -> 模型调用 -> 记账 -> 写缓存
func (s *ChatService) respond(ctx context.Context, bot *model.Chatbot, conv *model.Conversation, snapshot *model.ContextSnapshot, preview bool) (*CacheEntry, bool, error) {
	compute := func(ctx context.Context) (*CacheEntry, error) {
		return s.computeTurn(ctx, bot, conv, snapshot, preview)
	}

	if !bot.CacheEnabled {
		entry, err := compute(ctx)
		return entry, false, err
	}

	fingerprint := Fingerprint(bot.ID, snapshot.Version, snapshot.UserText, preview)
	return s.cache.GetOrCompute(ctx, fingerprint, s.cacheTTL(bot), compute)
}

// computeTurn 一次真实的模型调用，带预算预留与结算
// 预览回合不记账（原样透传模型结果）
func (s *ChatService) computeTurn(ctx context.Context, bot *model.Chatbot, conv *model.Conversation, snapshot *model.ContextSnapshot, preview bool) (*CacheEntry, error) {
	params := ai.ModelParams{
		Model:       bot.Model,
		Temperature: bot.Temperature,
		MaxTokens:   bot.MaxTokens,
	}

	var reservation *Reservation
	if !preview {
		estimated := estimateSnapshot(snapshot) + int64(bot.MaxTokens)
		budget := Budget{Daily: bot.DailyTokenLimit, Monthly: bot.MonthlyTokenLimit}

		var err error
		reservation, err = s.ledger.Reserve(ctx, bot.ID, budget, estimated)
		if err != nil {
			return nil, err
		}
	}

	completion, err := s.llm.Complete(ctx, snapshot, params)
	if err != nil {
		s.ledger.Release(reservation)
		return nil, fromUpstream(err)
	}

	usage := completion.Usage
	if usage.TotalTokens == 0 {
		// 上游未返回用量时按文本估算
		usage.PromptTokens = int(estimateSnapshot(snapshot))
		usage.CompletionTokens = int(EstimateTokens(completion.Text))
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	if !preview {
		rec := &model.TokenUsageRecord{
			ChatbotID:    bot.ID,
			InputTokens:  int64(usage.PromptTokens),
			OutputTokens: int64(usage.CompletionTokens),
			Model:        bot.Model,
			Cost:         CostFor(bot.Model, int64(usage.PromptTokens), int64(usage.CompletionTokens)),
		}
		if conv != nil {
			rec.ConversationID = conv.ID
		}
		_ = s.ledger.Commit(ctx, reservation, rec)
	}

	return &CacheEntry{
		Message:   completion.Text,
		ToolCalls: completion.ToolCalls,
		Usage:     usage,
		Model:     bot.Model,
		CreatedAt: time.Now(),
	}, nil
}

// resolveConversation 解析或创建对话
// 显式 conversation_id 必须属于该机器人；已结束或闲置超时的对话开新对话
func (s *ChatService) resolveConversation(ctx context.Context, bot *model.Chatbot, req *model.ChatMessageRequest) (*model.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := s.convs.FindByID(ctx, req.ConversationID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindConversationNotFound, "conversation not found", err)
		}
		if err != nil {
			return nil, err
		}
		if conv.ChatbotID != bot.ID {
			return nil, newError(KindConversationNotFound, "conversation not found", nil)
		}
		if conv.Status == model.ConversationStatusEnded {
			return s.createConversation(ctx, bot.ID, req.VisitorID)
		}
		return conv, nil
	}

	conv, err := s.convs.FindOpen(ctx, bot.ID, req.VisitorID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.createConversation(ctx, bot.ID, req.VisitorID)
	}
	if err != nil {
		return nil, err
	}

	// 闲置超时的对话视为已结束，开新对话
	if s.cfg.ConversationIdleTimeout > 0 && time.Since(conv.LastActivityAt) > s.cfg.ConversationIdleTimeout {
		if err := s.convs.End(ctx, conv.ID); err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to end idle conversation")
		}
		return s.createConversation(ctx, bot.ID, req.VisitorID)
	}
	return conv, nil
}

func (s *ChatService) createConversation(ctx context.Context, chatbotID, visitorID string) (*model.Conversation, error) {
	conv := &model.Conversation{
		ChatbotID: chatbotID,
		VisitorID: visitorID,
	}
	if err := s.convs.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// EndConversation 显式结束对话（访客关闭会话）
func (s *ChatService) EndConversation(ctx context.Context, convID, visitorID string) error {
	conv, err := s.convs.FindByID(ctx, convID)
	if errors.Is(err, repository.ErrNotFound) {
		return newError(KindConversationNotFound, "conversation not found", err)
	}
	if err != nil {
		return err
	}
	if conv.VisitorID != visitorID {
		return newError(KindConversationNotFound, "conversation not found", nil)
	}
	if conv.Status == model.ConversationStatusEnded {
		return nil
	}
	return s.convs.End(ctx, conv.ID)
}

// ExtractLeads 批量提取线索（定时任务/后台入口，复用分发器原语）
func (s *ChatService) ExtractLeads(ctx context.Context, conversationIDs []string) (int, error) {
	found := 0
	for _, convID := range conversationIDs {
		conv, err := s.convs.FindByID(ctx, convID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return found, err
		}

		msgs, err := s.convs.History(ctx, convID, s.cfg.HistoryLimit*4)
		if err != nil {
			return found, err
		}

		n, err := s.dispatcher.ExtractLeads(ctx, conv.ChatbotID, convID, msgs)
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", convID).Msg("lead extraction failed")
			continue
		}
		found += n
	}
	return found, nil
}

func (s *ChatService) historyLimit(bot *model.Chatbot) int {
	if bot.HistoryLimit > 0 {
		return bot.HistoryLimit
	}
	return s.cfg.HistoryLimit
}

func (s *ChatService) cacheTTL(bot *model.Chatbot) time.Duration {
	if bot.CacheDurationHours > 0 {
		return time.Duration(bot.CacheDurationHours) * time.Hour
	}
	return s.cfg.CacheTTL
}

// estimateSnapshot 估算快照的 prompt token 数
func estimateSnapshot(snapshot *model.ContextSnapshot) int64 {
	chars := len(snapshot.SystemPrompt) + len(snapshot.KnowledgeExcerpt) + len(snapshot.FAQExcerpt) + len(snapshot.UserText)
	for _, msg := range snapshot.History {
		chars += len(msg.Content)
	}
	return int64(chars / 4)
}

func orEmpty(actions []model.ActionResult) []model.ActionResult {
	if actions == nil {
		return []model.ActionResult{}
	}
	return actions
}
