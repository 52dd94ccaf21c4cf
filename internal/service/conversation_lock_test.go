package service

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestConversationLocks(t *testing.T) {
	Convey("对话锁", t, func() {
		locks := newConversationLocks()
		ctx := context.Background()

		Convey("同一对话严格串行", func() {
			release1, err := locks.Acquire(ctx, "conv-1")
			So(err, ShouldBeNil)

			acquired := make(chan struct{})
			go func() {
				release2, err := locks.Acquire(ctx, "conv-1")
				if err == nil {
					close(acquired)
					release2()
				}
			}()

			select {
			case <-acquired:
				t.Fatal("second acquire should block while lock is held")
			case <-time.After(50 * time.Millisecond):
			}

			release1()

			select {
			case <-acquired:
			case <-time.After(time.Second):
				t.Fatal("second acquire should proceed after release")
			}
		})

		Convey("不同对话互不阻塞", func() {
			release1, err := locks.Acquire(ctx, "conv-1")
			So(err, ShouldBeNil)
			defer release1()

			done := make(chan struct{})
			go func() {
				release2, err := locks.Acquire(ctx, "conv-2")
				if err == nil {
					release2()
					close(done)
				}
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("different conversation should not block")
			}
		})

		Convey("等待可被 context 取消", func() {
			release1, err := locks.Acquire(ctx, "conv-1")
			So(err, ShouldBeNil)
			defer release1()

			cancelCtx, cancel := context.WithCancel(ctx)
			errCh := make(chan error, 1)
			go func() {
				_, err := locks.Acquire(cancelCtx, "conv-1")
				errCh <- err
			}()

			cancel()

			select {
			case err := <-errCh:
				So(err, ShouldEqual, context.Canceled)
			case <-time.After(time.Second):
				t.Fatal("cancelled acquire should return")
			}
		})

		Convey("引用计数归零后回收锁条目", func() {
			release, err := locks.Acquire(ctx, "conv-1")
			So(err, ShouldBeNil)
			release()

			locks.mu.Lock()
			_, exists := locks.locks["conv-1"]
			locks.mu.Unlock()
			So(exists, ShouldBeFalse)
		})

		Convey("并发获取全部依次完成", func() {
			var wg sync.WaitGroup
			counter := 0
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release, err := locks.Acquire(ctx, "conv-1")
					if err != nil {
						return
					}
					counter++
					release()
				}()
			}
			wg.Wait()
			So(counter, ShouldEqual, 20)
		})
	})
}
