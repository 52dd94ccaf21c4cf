package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"voxtro/internal/ai"
	"voxtro/internal/model"
	"voxtro/internal/pkg/cache"
)

// CacheEntry 缓存的响应
type CacheEntry struct {
	Message   string           `json:"message"`
	ToolCalls []ai.ToolCall    `json:"tool_calls,omitempty"`
	Usage     model.TokenUsage `json:"usage"`
	Model     string           `json:"model"`
	CreatedAt time.Time        `json:"created_at"`
}

// CacheStore 缓存后端
// Redis 可用时走 Redis，否则使用进程内存储（与 Redis 的可选性保持一致）
type CacheStore interface {
	Get(ctx context.Context, key string) (*CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry *CacheEntry, ttl time.Duration) error
}

// ResponseCache 响应缓存
// 指纹相同的并发请求共享一次计算（single-flight），失败不落缓存
type ResponseCache struct {
	store CacheStore
	group singleflight.Group
}

// NewResponseCache 创建响应缓存
func NewResponseCache(store CacheStore) *ResponseCache {
	return &ResponseCache{store: store}
}

// GetOrCompute 查缓存，未命中时通过 compute 计算并写入
// 返回值 hit 表示结果来自缓存或共享了他人正在进行的计算
func (c *ResponseCache) GetOrCompute(
	ctx context.Context,
	fingerprint string,
	ttl time.Duration,
	compute func(ctx context.Context) (*CacheEntry, error),
) (*CacheEntry, bool, error) {
	if entry, ok, err := c.store.Get(ctx, fingerprint); err == nil && ok {
		return entry, true, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("cache lookup failed, computing fresh")
	}

	// shared 只说明结果来自他人的在途计算；
	// 二次查缓存命中的情况由 storeHit 单独上报
	var storeHit bool
	v, err, shared := c.group.Do(fingerprint, func() (any, error) {
		// 进入 single-flight 后再查一次，前一轮计算可能刚写入
		if entry, ok, err := c.store.Get(ctx, fingerprint); err == nil && ok {
			storeHit = true
			return entry, nil
		}

		entry, err := compute(ctx)
		if err != nil {
			// 失败不缓存，等待者共享同一个失败
			return nil, err
		}

		if storeErr := c.store.Set(ctx, fingerprint, entry, ttl); storeErr != nil {
			log.Warn().Err(storeErr).Msg("failed to store cache entry")
		}
		return entry, nil
	})
	if err != nil {
		return nil, false, err
	}

	return v.(*CacheEntry), shared || storeHit, nil
}

// NormalizeText 归一化用户文本：小写并折叠空白
// 让仅有排版差异的消息命中同一缓存条目
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Fingerprint 计算缓存指纹
// 输入: 机器人 ID、context version、归一化消息、preview 标记
// preview 进入指纹，预览产生的条目绝不会命中正式流量
func Fingerprint(chatbotID, contextVersion, userText string, preview bool) string {
	h := sha256.New()
	h.Write([]byte(chatbotID))
	h.Write([]byte{0})
	h.Write([]byte(contextVersion))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeText(userText)))
	h.Write([]byte{0})
	if preview {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// redisCacheStore Redis 缓存后端
type redisCacheStore struct {
	rc *cache.RedisCache
}

// NewRedisCacheStore 创建 Redis 缓存后端
func NewRedisCacheStore(rc *cache.RedisCache) CacheStore {
	return &redisCacheStore{rc: rc}
}

func (s *redisCacheStore) Get(ctx context.Context, key string) (*CacheEntry, bool, error) {
	var entry CacheEntry
	err := s.rc.Get(ctx, cache.ResponseCacheKey(key), &entry)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// 命中计数，仅用于观测
	if err := s.rc.IncrBy(ctx, cache.CacheHitCountKey(key), 1); err != nil {
		log.Debug().Err(err).Msg("failed to bump cache hit count")
	}
	return &entry, true, nil
}

func (s *redisCacheStore) Set(ctx context.Context, key string, entry *CacheEntry, ttl time.Duration) error {
	return s.rc.Set(ctx, cache.ResponseCacheKey(key), entry, ttl)
}

// memoryCacheStore 进程内缓存后端
// TTL 到期后惰性删除
type memoryCacheStore struct {
	mu      sync.Mutex
	entries map[string]memoryCacheItem
}

type memoryCacheItem struct {
	entry     *CacheEntry
	expiresAt time.Time
}

// NewMemoryCacheStore 创建进程内缓存后端
func NewMemoryCacheStore() CacheStore {
	return &memoryCacheStore{
		entries: make(map[string]memoryCacheItem),
	}
}

func (s *memoryCacheStore) Get(_ context.Context, key string) (*CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(item.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return item.entry, true, nil
}

func (s *memoryCacheStore) Set(_ context.Context, key string, entry *CacheEntry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryCacheItem{
		entry:     entry,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
