package service

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"voxtro/internal/model"
)

// AssemblerConfig 上下文组装预算
type AssemblerConfig struct {
	HistoryLimit        int // 默认携带的最近消息数（机器人可覆盖）
	ContextCharBudget   int // system prompt + 知识库 + FAQ + 历史 + 当前消息 的总字符预算
	KnowledgeCharBudget int // 知识库摘录的字符预算
}

// ContextAssembler 上下文组装器
// 按固定顺序拼装: system prompt -> 知识库摘录 -> FAQ 摘录 -> 最近历史 -> 当前消息
// 超出预算时先裁历史（最旧优先），再裁知识库，最后裁 FAQ；
// system prompt 和当前用户消息永不裁剪
type ContextAssembler struct {
	cfg AssemblerConfig
}

// NewContextAssembler 创建上下文组装器
func NewContextAssembler(cfg AssemblerConfig) *ContextAssembler {
	return &ContextAssembler{cfg: cfg}
}

// Build 组装一轮对话的上下文快照
func (a *ContextAssembler) Build(bot *model.Chatbot, history []model.Message, userText string) *model.ContextSnapshot {
	systemPrompt := bot.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = "You are a helpful assistant."
	}

	knowledge := a.knowledgeExcerpt(bot)
	faq := faqExcerpt(bot, userText)

	limit := bot.HistoryLimit
	if limit <= 0 {
		limit = a.cfg.HistoryLimit
	}
	trimmed := trailingHistory(history, limit)

	// 预算裁剪: 历史(最旧优先) -> 知识库 -> FAQ
	fixed := len(systemPrompt) + len(userText)
	budget := a.cfg.ContextCharBudget

	for total(fixed, knowledge, faq, trimmed) > budget && len(trimmed) > 0 {
		trimmed = trimmed[1:]
	}
	if over := total(fixed, knowledge, faq, trimmed) - budget; over > 0 {
		knowledge = truncateRunes(knowledge, max(0, len(knowledge)-over))
	}
	if over := total(fixed, knowledge, faq, trimmed) - budget; over > 0 {
		faq = truncateRunes(faq, max(0, len(faq)-over))
	}

	return &model.ContextSnapshot{
		SystemPrompt:     systemPrompt,
		KnowledgeExcerpt: knowledge,
		FAQExcerpt:       faq,
		History:          trimmed,
		UserText:         userText,
		Version:          ContextVersion(bot),
	}
}

// ContextVersion 机器人配置的稳定版本标记
// 只依赖 prompt / 模型参数 / 知识库修订 / FAQ 修订，与对话历史无关：
// 历史增长不会使缓存失效，任何配置编辑都会
func ContextVersion(bot *model.Chatbot) string {
	h := sha256.New()
	h.Write([]byte(bot.SystemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(bot.FirstMessage))
	h.Write([]byte{0})
	h.Write([]byte(bot.Model))
	h.Write([]byte{0})

	for _, ks := range bot.Knowledge {
		h.Write([]byte(ks.ID))
		h.Write([]byte{1})
		h.Write([]byte(ks.Revision))
		h.Write([]byte{0})
	}
	for _, faq := range bot.FAQs {
		h.Write([]byte(faq.ID))
		h.Write([]byte{1})
		h.Write([]byte(faq.Revision))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}

// knowledgeExcerpt 组装知识库摘录
// 有相关性分数时按分数降序，否则按抓取时间降序（最新优先）
func (a *ContextAssembler) knowledgeExcerpt(bot *model.Chatbot) string {
	if len(bot.Knowledge) == 0 {
		return ""
	}

	sources := make([]model.KnowledgeSource, len(bot.Knowledge))
	copy(sources, bot.Knowledge)

	scored := false
	for _, ks := range sources {
		if ks.Relevance > 0 {
			scored = true
			break
		}
	}

	sort.SliceStable(sources, func(i, j int) bool {
		if scored {
			return sources[i].Relevance > sources[j].Relevance
		}
		return sources[i].CrawledAt.After(sources[j].CrawledAt)
	})

	var sb strings.Builder
	for _, ks := range sources {
		if sb.Len() >= a.cfg.KnowledgeCharBudget {
			break
		}
		if ks.Title != "" {
			sb.WriteString("### ")
			sb.WriteString(ks.Title)
			sb.WriteString("\n")
		}
		sb.WriteString(ks.Content)
		sb.WriteString("\n\n")
	}
	return truncateRunes(strings.TrimSpace(sb.String()), a.cfg.KnowledgeCharBudget)
}

// faqExcerpt 组装 FAQ 摘录，精确/近似命中的条目排在前面
func faqExcerpt(bot *model.Chatbot, userText string) string {
	var matched, rest []model.FAQ
	normalized := NormalizeText(userText)
	queryTokens := strings.Fields(normalized)

	for _, faq := range bot.FAQs {
		if !faq.IsActive {
			continue
		}
		if faqMatches(faq.Question, normalized, queryTokens) {
			matched = append(matched, faq)
		} else {
			rest = append(rest, faq)
		}
	}

	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].SortOrder < rest[j].SortOrder
	})

	var sb strings.Builder
	for _, faq := range append(matched, rest...) {
		sb.WriteString("Q: ")
		sb.WriteString(faq.Question)
		sb.WriteString("\nA: ")
		sb.WriteString(faq.Answer)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// faqMatches 精确或近似匹配：归一化后相等，或问句 token 重叠过半
func faqMatches(question, normalizedQuery string, queryTokens []string) bool {
	normalizedQuestion := NormalizeText(question)
	if normalizedQuestion == normalizedQuery {
		return true
	}
	if len(queryTokens) == 0 {
		return false
	}

	questionTokens := make(map[string]bool)
	for _, tok := range strings.Fields(normalizedQuestion) {
		questionTokens[tok] = true
	}

	overlap := 0
	for _, tok := range queryTokens {
		if questionTokens[tok] {
			overlap++
		}
	}
	return overlap*2 >= len(queryTokens)
}

// trailingHistory 取最近 limit 条非 system 消息
func trailingHistory(history []model.Message, limit int) []model.Message {
	var msgs []model.Message
	for _, msg := range history {
		if msg.Role == model.RoleSystem {
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

func total(fixed int, knowledge, faq string, history []model.Message) int {
	sum := fixed + len(knowledge) + len(faq)
	for _, msg := range history {
		sum += len(msg.Content)
	}
	return sum
}

// truncateRunes 按 rune 边界截断到近似 n 字节
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && len(string(runes)) > n {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}
