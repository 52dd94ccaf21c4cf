package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"voxtro/internal/ai"
	"voxtro/internal/model"
	"voxtro/internal/repository"
)

// fakeInvocationStore 以 (message_id, action_id) 为唯一键的占位表
// outcomes 记录每条占位记录落库的最终结果
type fakeInvocationStore struct {
	mu       sync.Mutex
	claimed  map[string]bool
	outcomes map[string]string
	failing  bool
}

func newFakeInvocationStore() *fakeInvocationStore {
	return &fakeInvocationStore{
		claimed:  make(map[string]bool),
		outcomes: make(map[string]string),
	}
}

func (s *fakeInvocationStore) Insert(_ context.Context, inv *model.ActionInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("store unavailable")
	}
	key := inv.MessageID + "/" + inv.ActionID
	if s.claimed[key] {
		return repository.ErrDuplicateInvocation
	}
	s.claimed[key] = true
	s.outcomes[key] = inv.Outcome
	return nil
}

func (s *fakeInvocationStore) SetOutcome(_ context.Context, messageID, actionID, outcome, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[messageID+"/"+actionID] = outcome
	return nil
}

type fakeLeadStore struct {
	mu       sync.Mutex
	leads    []*model.Lead
	failing  bool
	existing map[string]bool
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{existing: make(map[string]bool)}
}

func (s *fakeLeadStore) Insert(_ context.Context, lead *model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("store unavailable")
	}
	s.leads = append(s.leads, lead)
	s.existing[lead.ConversationID] = true
	return nil
}

func (s *fakeLeadStore) ExistsForConversation(_ context.Context, convID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing[convID], nil
}

func dispatchBot() *model.Chatbot {
	return &model.Chatbot{
		ID: "bot-1",
		Actions: []model.ChatbotAction{
			{ID: "act-form", Name: "show_contact_form", Type: model.ActionTypeShowForm, FormID: "form-1", TriggerKeywords: []string{"contact form"}, IsActive: true},
			{ID: "act-lead", Name: "capture_lead", Type: model.ActionTypeCaptureLead, TriggerKeywords: []string{"email"}, IsActive: true},
			{ID: "act-off", Name: "disabled_action", Type: model.ActionTypeWebhook, TriggerKeywords: []string{"contact form"}, IsActive: false},
		},
	}
}

func TestActionDispatcherDispatch(t *testing.T) {
	Convey("动作分发", t, func() {
		ctx := context.Background()
		invocations := newFakeInvocationStore()
		leads := newFakeLeadStore()
		dispatcher := NewActionDispatcher(invocations, leads)

		bot := dispatchBot()
		conv := &model.Conversation{ID: "conv-1", ChatbotID: "bot-1"}

		Convey("触发关键词命中执行动作", func() {
			results := dispatcher.Dispatch(ctx, bot, conv, "msg-1", "Please fill in the Contact Form below.", nil, true)
			So(len(results), ShouldEqual, 1)
			So(results[0].Identifier, ShouldEqual, "act-form")
			So(results[0].Outcome, ShouldEqual, model.InvocationOutcomeExecuted)
			So(results[0].FormID, ShouldEqual, "form-1")
		})

		Convey("工具调用同名命中执行动作", func() {
			results := dispatcher.Dispatch(ctx, bot, conv, "msg-1", "Sure, one moment.",
				[]ai.ToolCall{{Name: "show_contact_form", Arguments: `{"reason":"requested"}`}}, true)
			So(len(results), ShouldEqual, 1)
			So(results[0].Outcome, ShouldEqual, model.InvocationOutcomeExecuted)
		})

		Convey("停用的动作不参与评估", func() {
			results := dispatcher.Dispatch(ctx, bot, conv, "msg-1", "contact form", nil, true)
			for _, r := range results {
				So(r.Identifier, ShouldNotEqual, "act-off")
			}
		})

		Convey("同一消息重复分发第二次是 no-op", func() {
			first := dispatcher.Dispatch(ctx, bot, conv, "msg-1", "contact form", nil, true)
			So(first[0].Outcome, ShouldEqual, model.InvocationOutcomeExecuted)

			second := dispatcher.Dispatch(ctx, bot, conv, "msg-1", "contact form", nil, true)
			So(second[0].Outcome, ShouldEqual, model.InvocationOutcomeSkipped)
		})

		Convey("不同消息各自执行", func() {
			_ = dispatcher.Dispatch(ctx, bot, conv, "msg-1", "contact form", nil, true)
			results := dispatcher.Dispatch(ctx, bot, conv, "msg-2", "contact form", nil, true)
			So(results[0].Outcome, ShouldEqual, model.InvocationOutcomeExecuted)
		})

		Convey("预览模式只评估不执行", func() {
			results := dispatcher.Dispatch(ctx, bot, nil, "", "contact form", nil, false)
			So(len(results), ShouldEqual, 1)
			So(results[0].Outcome, ShouldEqual, model.InvocationOutcomeSkipped)
			So(len(invocations.claimed), ShouldEqual, 0)
		})

		Convey("capture_lead 动作写入线索", func() {
			results := dispatcher.Dispatch(ctx, bot, conv, "msg-1", "Could you share your email?", nil, true)
			So(len(results), ShouldEqual, 1)
			So(results[0].Outcome, ShouldEqual, model.InvocationOutcomeExecuted)
			So(len(leads.leads), ShouldEqual, 1)
			So(leads.leads[0].ConversationID, ShouldEqual, "conv-1")
		})

		Convey("副作用失败返回 failed，不影响其余动作", func() {
			leads.failing = true
			results := dispatcher.Dispatch(ctx, bot, conv, "msg-1", "share your email via the contact form", nil, true)
			So(len(results), ShouldEqual, 2)

			outcomes := map[string]string{}
			for _, r := range results {
				outcomes[r.Identifier] = r.Outcome
			}
			So(outcomes["act-form"], ShouldEqual, model.InvocationOutcomeExecuted)
			So(outcomes["act-lead"], ShouldEqual, model.InvocationOutcomeFailed)

			Convey("落库的执行记录同样是 failed", func() {
				So(invocations.outcomes["msg-1/act-lead"], ShouldEqual, model.InvocationOutcomeFailed)
				So(invocations.outcomes["msg-1/act-form"], ShouldEqual, model.InvocationOutcomeExecuted)
			})
		})

		Convey("未命中任何动作返回空", func() {
			results := dispatcher.Dispatch(ctx, bot, conv, "msg-1", "The weather is nice.", nil, true)
			So(len(results), ShouldEqual, 0)
		})
	})
}

func TestActionDispatcherExtractLeads(t *testing.T) {
	Convey("批量线索提取", t, func() {
		ctx := context.Background()
		leads := newFakeLeadStore()
		dispatcher := NewActionDispatcher(newFakeInvocationStore(), leads)

		messages := []model.Message{
			{Role: model.RoleUser, Content: "hi, reach me at jane.doe@example.com"},
			{Role: model.RoleAssistant, Content: "noted, thanks"},
			{Role: model.RoleUser, Content: "or call +1 (555) 123-4567"},
		}

		Convey("从用户消息中提取邮箱和电话", func() {
			n, err := dispatcher.ExtractLeads(ctx, "bot-1", "conv-1", messages)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(leads.leads[0].Email, ShouldEqual, "jane.doe@example.com")
			So(leads.leads[0].Phone, ShouldNotBeEmpty)
		})

		Convey("助手消息中的联系方式不计", func() {
			n, err := dispatcher.ExtractLeads(ctx, "bot-1", "conv-2", []model.Message{
				{Role: model.RoleAssistant, Content: "contact us at support@acme.com"},
			})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("已有线索的对话跳过", func() {
			_, err := dispatcher.ExtractLeads(ctx, "bot-1", "conv-1", messages)
			So(err, ShouldBeNil)

			n, err := dispatcher.ExtractLeads(ctx, "bot-1", "conv-1", messages)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
			So(len(leads.leads), ShouldEqual, 1)
		})

		Convey("无联系方式不产生线索", func() {
			n, err := dispatcher.ExtractLeads(ctx, "bot-1", "conv-3", []model.Message{
				{Role: model.RoleUser, Content: "just browsing"},
			})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})
}
