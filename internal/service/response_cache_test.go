package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"voxtro/internal/model"
)

func TestNormalizeText(t *testing.T) {
	Convey("文本归一化", t, func() {
		Convey("小写并折叠空白", func() {
			So(NormalizeText("  What is   Your\tPRICING? "), ShouldEqual, "what is your pricing?")
		})

		Convey("仅排版差异的文本归一化后相同", func() {
			a := NormalizeText("How do I reset my password")
			b := NormalizeText("how do  i reset my PASSWORD")
			So(a, ShouldEqual, b)
		})

		Convey("空文本", func() {
			So(NormalizeText("   "), ShouldEqual, "")
		})
	})
}

func TestFingerprint(t *testing.T) {
	Convey("缓存指纹", t, func() {
		fp := Fingerprint("bot-1", "v1", "hello world", false)

		Convey("相同输入产生相同指纹", func() {
			So(Fingerprint("bot-1", "v1", "Hello   WORLD", false), ShouldEqual, fp)
		})

		Convey("机器人不同指纹不同", func() {
			So(Fingerprint("bot-2", "v1", "hello world", false), ShouldNotEqual, fp)
		})

		Convey("context version 变化指纹不同", func() {
			So(Fingerprint("bot-1", "v2", "hello world", false), ShouldNotEqual, fp)
		})

		Convey("预览标记隔离指纹", func() {
			So(Fingerprint("bot-1", "v1", "hello world", true), ShouldNotEqual, fp)
		})
	})
}

// delayedHitStore 前 misses 次 Get 未命中，之后命中
type delayedHitStore struct {
	mu     sync.Mutex
	misses int
	entry  *CacheEntry
}

func (s *delayedHitStore) Get(_ context.Context, _ string) (*CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.misses > 0 {
		s.misses--
		return nil, false, nil
	}
	return s.entry, true, nil
}

func (s *delayedHitStore) Set(_ context.Context, _ string, _ *CacheEntry, _ time.Duration) error {
	return nil
}

func TestResponseCacheGetOrCompute(t *testing.T) {
	Convey("响应缓存 GetOrCompute", t, func() {
		ctx := context.Background()
		rc := NewResponseCache(NewMemoryCacheStore())

		entry := &CacheEntry{Message: "cached answer", Usage: model.TokenUsage{TotalTokens: 30}}

		Convey("未命中时计算并写入", func() {
			var calls int32
			got, hit, err := rc.GetOrCompute(ctx, "fp-1", time.Minute, func(ctx context.Context) (*CacheEntry, error) {
				atomic.AddInt32(&calls, 1)
				return entry, nil
			})
			So(err, ShouldBeNil)
			So(hit, ShouldBeFalse)
			So(got.Message, ShouldEqual, "cached answer")
			So(atomic.LoadInt32(&calls), ShouldEqual, 1)

			Convey("第二次直接命中，不再计算", func() {
				got2, hit2, err2 := rc.GetOrCompute(ctx, "fp-1", time.Minute, func(ctx context.Context) (*CacheEntry, error) {
					atomic.AddInt32(&calls, 1)
					return nil, errors.New("should not be called")
				})
				So(err2, ShouldBeNil)
				So(hit2, ShouldBeTrue)
				So(got2.Message, ShouldEqual, "cached answer")
				So(atomic.LoadInt32(&calls), ShouldEqual, 1)
			})
		})

		Convey("计算失败不写缓存", func() {
			boom := errors.New("upstream down")
			_, _, err := rc.GetOrCompute(ctx, "fp-2", time.Minute, func(ctx context.Context) (*CacheEntry, error) {
				return nil, boom
			})
			So(err, ShouldEqual, boom)

			var calls int32
			got, hit, err := rc.GetOrCompute(ctx, "fp-2", time.Minute, func(ctx context.Context) (*CacheEntry, error) {
				atomic.AddInt32(&calls, 1)
				return entry, nil
			})
			So(err, ShouldBeNil)
			So(hit, ShouldBeFalse)
			So(got, ShouldNotBeNil)
			So(atomic.LoadInt32(&calls), ShouldEqual, 1)
		})

		Convey("并发相同指纹只计算一次", func() {
			var calls int32
			started := make(chan struct{})
			release := make(chan struct{})

			compute := func(ctx context.Context) (*CacheEntry, error) {
				atomic.AddInt32(&calls, 1)
				close(started)
				<-release
				return entry, nil
			}

			var wg sync.WaitGroup
			hits := make([]bool, 4)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, h, _ := rc.GetOrCompute(ctx, "fp-3", time.Minute, compute)
				hits[0] = h
			}()

			<-started
			for i := 1; i < 4; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, h, _ := rc.GetOrCompute(ctx, "fp-3", time.Minute, func(ctx context.Context) (*CacheEntry, error) {
						atomic.AddInt32(&calls, 1)
						return entry, nil
					})
					hits[i] = h
				}(i)
			}

			// 等待其余 goroutine 挂在 single-flight 上
			time.Sleep(50 * time.Millisecond)
			close(release)
			wg.Wait()

			So(atomic.LoadInt32(&calls), ShouldEqual, 1)
			hitCount := 0
			for _, h := range hits {
				if h {
					hitCount++
				}
			}
			// 发起计算的那个是 miss，等待者共享结果算 hit
			So(hitCount, ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("single-flight 内二次检查命中同样上报 hit", func() {
			// 首次查询未命中、进入 single-flight 后刚好被写入的窗口
			store := &delayedHitStore{misses: 1, entry: entry}
			rcLate := NewResponseCache(store)

			var calls int32
			got, hit, err := rcLate.GetOrCompute(ctx, "fp-5", time.Minute, func(ctx context.Context) (*CacheEntry, error) {
				atomic.AddInt32(&calls, 1)
				return nil, errors.New("should not be called")
			})
			So(err, ShouldBeNil)
			So(hit, ShouldBeTrue)
			So(got.Message, ShouldEqual, "cached answer")
			So(atomic.LoadInt32(&calls), ShouldEqual, 0)
		})

		Convey("TTL 过期后重新计算", func() {
			var calls int32
			compute := func(ctx context.Context) (*CacheEntry, error) {
				atomic.AddInt32(&calls, 1)
				return entry, nil
			}

			_, _, err := rc.GetOrCompute(ctx, "fp-4", 10*time.Millisecond, compute)
			So(err, ShouldBeNil)

			time.Sleep(20 * time.Millisecond)

			_, hit, err := rc.GetOrCompute(ctx, "fp-4", time.Minute, compute)
			So(err, ShouldBeNil)
			So(hit, ShouldBeFalse)
			So(atomic.LoadInt32(&calls), ShouldEqual, 2)
		})
	})
}
