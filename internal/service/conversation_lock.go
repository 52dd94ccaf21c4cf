package service

import (
	"context"
	"sync"
)

// conversationLocks 按对话 ID 的互斥锁表
// 同一对话的消息处理严格串行，不同对话互不阻塞
// 锁用容量为 1 的 channel 实现：阻塞的获取方按到达顺序被唤醒，
// 等待可被 context 取消；引用计数归零后回收条目，锁表不随对话数膨胀
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	ch   chan struct{}
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{
		locks: make(map[string]*convLock),
	}
}

// Acquire 获取对话锁，返回释放函数
// ctx 取消时放弃等待并返回 ctx.Err()
func (l *conversationLocks) Acquire(ctx context.Context, convID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[convID]
	if !ok {
		entry = &convLock{ch: make(chan struct{}, 1)}
		l.locks[convID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return func() { l.release(convID, entry) }, nil
	case <-ctx.Done():
		l.unref(convID, entry)
		return nil, ctx.Err()
	}
}

func (l *conversationLocks) release(convID string, entry *convLock) {
	<-entry.ch
	l.unref(convID, entry)
}

func (l *conversationLocks) unref(convID string, entry *convLock) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, convID)
	}
	l.mu.Unlock()
}
