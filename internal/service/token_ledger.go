package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"voxtro/internal/model"
)

// UsageStore token 使用流水的持久化接口
type UsageStore interface {
	Insert(ctx context.Context, rec *model.TokenUsageRecord) error
	SumSince(ctx context.Context, chatbotID string, since time.Time) (int64, error)
}

// Budget 滚动窗口预算上限
type Budget struct {
	Daily   int64
	Monthly int64
}

// Reservation 预留凭证，调用结束后 Commit 或 Release
type Reservation struct {
	chatbotID string
	tokens    int64
}

// TokenLedger token 账本
// 已落库用量按窗口求和，进行中的预留在进程内累计，
// 检查与预留在同一把锁内完成，并发回合不会合谋超限
type TokenLedger struct {
	store    UsageStore
	defaults Budget

	mu      sync.Mutex
	pending map[string]int64 // chatbotID -> 预留中的 token
}

// NewTokenLedger 创建 token 账本
func NewTokenLedger(store UsageStore, defaults Budget) *TokenLedger {
	return &TokenLedger{
		store:    store,
		defaults: defaults,
		pending:  make(map[string]int64),
	}
}

// Reserve 预留预算，超限返回 TokenBudgetExceeded
// budget 字段为 0 时回落到默认上限
func (l *TokenLedger) Reserve(ctx context.Context, chatbotID string, budget Budget, estimated int64) (*Reservation, error) {
	daily := budget.Daily
	if daily <= 0 {
		daily = l.defaults.Daily
	}
	monthly := budget.Monthly
	if monthly <= 0 {
		monthly = l.defaults.Monthly
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	dailyUsed, err := l.store.SumSince(ctx, chatbotID, dayStart)
	if err != nil {
		return nil, err
	}
	monthlyUsed, err := l.store.SumSince(ctx, chatbotID, monthStart)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	inFlight := l.pending[chatbotID]
	if dailyUsed+inFlight+estimated > daily || monthlyUsed+inFlight+estimated > monthly {
		return nil, newError(KindTokenBudgetExceeded, genericUnavailableMessage, nil)
	}

	l.pending[chatbotID] += estimated
	return &Reservation{chatbotID: chatbotID, tokens: estimated}, nil
}

// Commit 以实际用量结算预留并落库
func (l *TokenLedger) Commit(ctx context.Context, res *Reservation, rec *model.TokenUsageRecord) error {
	l.removePending(res)

	if err := l.store.Insert(ctx, rec); err != nil {
		// 流水写入失败不影响已经完成的回合
		log.Error().Err(err).Str("chatbot_id", rec.ChatbotID).Msg("failed to record token usage")
		return err
	}
	return nil
}

// Release 调用失败时释放预留，不记录用量
func (l *TokenLedger) Release(res *Reservation) {
	l.removePending(res)
}

func (l *TokenLedger) removePending(res *Reservation) {
	if res == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending[res.chatbotID] -= res.tokens
	if l.pending[res.chatbotID] <= 0 {
		delete(l.pending, res.chatbotID)
	}
}

// EstimateTokens 粗略估算 token 数：约 4 字符 1 token
func EstimateTokens(text string) int64 {
	return int64(len(text) / 4)
}

// modelPricing 每千 token 的美元价格
var modelPricing = map[string]struct{ input, output float64 }{
	"gpt-4o-mini":   {0.00015, 0.0006},
	"gpt-4o":        {0.0025, 0.01},
	"gpt-4":         {0.03, 0.06},
	"gpt-3.5-turbo": {0.0015, 0.002},
}

// CostFor 按模型与 token 用量计算成本，未知模型按最便宜档计
func CostFor(modelName string, inputTokens, outputTokens int64) float64 {
	rates, ok := modelPricing[modelName]
	if !ok {
		rates = modelPricing["gpt-4o-mini"]
	}
	return (float64(inputTokens)*rates.input + float64(outputTokens)*rates.output) / 1000
}
