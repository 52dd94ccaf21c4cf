package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	. "github.com/smartystreets/goconvey/convey"

	"voxtro/internal/config"
	vmodel "voxtro/internal/model"
)

// fakeChatModel 脚本化的 ChatModel: 先按 errs 顺序失败，之后返回 resp
type fakeChatModel struct {
	calls    int
	errs     []error
	resp     *schema.Message
	lastMsgs []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.lastMsgs = input
	m.calls++
	if m.calls <= len(m.errs) {
		return nil, m.errs[m.calls-1]
	}
	return m.resp, nil
}

func (m *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func testClient(fake *fakeChatModel, maxRetries int) *Client {
	return NewClientWithModel(fake, &config.AIConfig{
		Timeout:      time.Second,
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
	})
}

func testSnapshot() *vmodel.ContextSnapshot {
	return &vmodel.ContextSnapshot{
		SystemPrompt:     "You are a support assistant.",
		KnowledgeExcerpt: "Acme costs $10/mo.",
		FAQExcerpt:       "Q: Pricing?\nA: $10/mo.",
		History: []vmodel.Message{
			{Role: vmodel.RoleUser, Content: "hi"},
			{Role: vmodel.RoleAssistant, Content: "hello"},
		},
		UserText: "what is your pricing?",
	}
}

func okResponse(text string) *schema.Message {
	msg := schema.AssistantMessage(text, nil)
	msg.ResponseMeta = &schema.ResponseMeta{
		Usage: &schema.TokenUsage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30},
	}
	return msg
}

func TestClientComplete(t *testing.T) {
	Convey("LLM 网关补全", t, func() {
		ctx := context.Background()

		Convey("成功返回文本与用量", func() {
			fake := &fakeChatModel{resp: okResponse("The price is $10/mo.")}
			client := testClient(fake, 3)

			completion, err := client.Complete(ctx, testSnapshot(), ModelParams{Model: "gpt-4o-mini"})
			So(err, ShouldBeNil)
			So(completion.Text, ShouldEqual, "The price is $10/mo.")
			So(completion.Usage.TotalTokens, ShouldEqual, 30)
			So(fake.calls, ShouldEqual, 1)
		})

		Convey("消息序列: system(含知识库/FAQ) -> 历史 -> 当前消息", func() {
			fake := &fakeChatModel{resp: okResponse("ok")}
			client := testClient(fake, 0)

			_, err := client.Complete(ctx, testSnapshot(), ModelParams{})
			So(err, ShouldBeNil)
			So(len(fake.lastMsgs), ShouldEqual, 4)
			So(fake.lastMsgs[0].Role, ShouldEqual, schema.System)
			So(fake.lastMsgs[0].Content, ShouldContainSubstring, "## Knowledge base")
			So(fake.lastMsgs[0].Content, ShouldContainSubstring, "## FAQ")
			So(fake.lastMsgs[1].Role, ShouldEqual, schema.User)
			So(fake.lastMsgs[2].Role, ShouldEqual, schema.Assistant)
			So(fake.lastMsgs[3].Content, ShouldEqual, "what is your pricing?")
		})

		Convey("瞬时错误重试后成功", func() {
			fake := &fakeChatModel{
				errs: []error{errors.New("connection reset"), errors.New("503 service unavailable")},
				resp: okResponse("recovered"),
			}
			client := testClient(fake, 3)

			completion, err := client.Complete(ctx, testSnapshot(), ModelParams{})
			So(err, ShouldBeNil)
			So(completion.Text, ShouldEqual, "recovered")
			So(fake.calls, ShouldEqual, 3)
		})

		Convey("请求非法不重试", func() {
			fake := &fakeChatModel{
				errs: []error{errors.New("400 invalid request")},
				resp: okResponse("should not reach"),
			}
			client := testClient(fake, 3)

			_, err := client.Complete(ctx, testSnapshot(), ModelParams{})
			So(errors.Is(err, ErrRejected), ShouldBeTrue)
			So(fake.calls, ShouldEqual, 1)
		})

		Convey("限流重试耗尽映射为 ErrRateLimited", func() {
			rateErr := errors.New("429 rate limit exceeded")
			fake := &fakeChatModel{errs: []error{rateErr, rateErr, rateErr}}
			client := testClient(fake, 2)

			_, err := client.Complete(ctx, testSnapshot(), ModelParams{})
			So(errors.Is(err, ErrRateLimited), ShouldBeTrue)
			So(fake.calls, ShouldEqual, 3)
		})

		Convey("超时重试耗尽映射为 ErrTimeout", func() {
			fake := &fakeChatModel{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded}}
			client := testClient(fake, 1)

			_, err := client.Complete(ctx, testSnapshot(), ModelParams{})
			So(errors.Is(err, ErrTimeout), ShouldBeTrue)
		})

		Convey("调用方 context 取消时停止重试", func() {
			cancelledCtx, cancel := context.WithCancel(ctx)
			cancel()
			fake := &fakeChatModel{errs: []error{errors.New("connection reset")}}
			client := testClient(fake, 3)

			_, err := client.Complete(cancelledCtx, testSnapshot(), ModelParams{})
			So(err, ShouldNotBeNil)
			So(fake.calls, ShouldBeLessThanOrEqualTo, 1)
		})

		Convey("工具调用透传", func() {
			msg := schema.AssistantMessage("", []schema.ToolCall{
				{Function: schema.FunctionCall{Name: "show_form", Arguments: `{"form":"contact"}`}},
			})
			fake := &fakeChatModel{resp: msg}
			client := testClient(fake, 0)

			completion, err := client.Complete(ctx, testSnapshot(), ModelParams{})
			So(err, ShouldBeNil)
			So(len(completion.ToolCalls), ShouldEqual, 1)
			So(completion.ToolCalls[0].Name, ShouldEqual, "show_form")
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("上游错误分类", t, func() {
		Convey("429/限流", func() {
			So(classify(errors.New("429 Too Many Requests")), ShouldEqual, classRateLimit)
			So(classify(errors.New("rate limit reached")), ShouldEqual, classRateLimit)
		})

		Convey("超时", func() {
			So(classify(context.DeadlineExceeded), ShouldEqual, classTimeout)
			So(classify(errors.New("request timeout")), ShouldEqual, classTimeout)
		})

		Convey("请求非法", func() {
			So(classify(errors.New("401 unauthorized")), ShouldEqual, classRejected)
			So(classify(errors.New("invalid model name")), ShouldEqual, classRejected)
		})

		Convey("其余按瞬时错误处理", func() {
			So(classify(errors.New("connection refused")), ShouldEqual, classTransient)
		})
	})
}
