package service

import (
	"context"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"voxtro/internal/model"
)

type fakeFormStore struct {
	mu   sync.Mutex
	subs []*model.FormSubmission
}

func (s *fakeFormStore) Insert(_ context.Context, sub *model.FormSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = "sub-1"
	}
	s.subs = append(s.subs, sub)
	return nil
}

func widgetBot() *model.Chatbot {
	return &model.Chatbot{
		ID:           "bot-1",
		UserID:       "tenant-1",
		Name:         "Support Bot",
		SystemPrompt: "secret internal prompt",
		FirstMessage: "Hi! How can I help?",
		Placeholder:  "Type a message...",
		IsActive:     true,
		Theme:        model.ChatbotTheme{PrimaryColor: "#336699", Position: "bottom-right"},
		Forms: []model.ChatbotForm{
			{ID: "form-1", Name: "Contact", Fields: []model.FormField{
				{Name: "email", Label: "Email", Type: "email", Required: true},
				{Name: "note", Label: "Note", Type: "text"},
			}},
		},
		FAQs: []model.FAQ{
			{ID: "faq-2", Question: "How do I cancel?", Answer: "Account page.", IsActive: true, SortOrder: 2},
			{ID: "faq-1", Question: "Pricing?", Answer: "$10/mo.", IsActive: true, SortOrder: 1},
			{ID: "faq-3", Question: "Hidden?", Answer: "no", IsActive: false},
		},
	}
}

func TestWidgetServiceConfig(t *testing.T) {
	Convey("widget 配置投影", t, func() {
		ctx := context.Background()
		bot := widgetBot()
		svc := NewWidgetService(&fakeChatbotStore{bots: map[string]*model.Chatbot{"bot-1": bot}}, &fakeFormStore{})

		Convey("返回公开字段", func() {
			cfg, err := svc.Config(ctx, "bot-1")
			So(err, ShouldBeNil)
			So(cfg.ChatbotID, ShouldEqual, "bot-1")
			So(cfg.Name, ShouldEqual, "Support Bot")
			So(cfg.FirstMessage, ShouldEqual, "Hi! How can I help?")
			So(cfg.Theme.PrimaryColor, ShouldEqual, "#336699")
			So(len(cfg.Forms), ShouldEqual, 1)
		})

		Convey("FAQ 只含启用的且按 sort_order 排序", func() {
			cfg, err := svc.Config(ctx, "bot-1")
			So(err, ShouldBeNil)
			So(len(cfg.FAQs), ShouldEqual, 2)
			So(cfg.FAQs[0].ID, ShouldEqual, "faq-1")
			So(cfg.FAQs[1].ID, ShouldEqual, "faq-2")
		})

		Convey("停用的机器人返回 ChatbotInactive", func() {
			bot.IsActive = false
			_, err := svc.Config(ctx, "bot-1")
			kind, _ := KindOf(err)
			So(kind, ShouldEqual, KindChatbotInactive)
		})

		Convey("未知机器人返回 ChatbotNotFound", func() {
			_, err := svc.Config(ctx, "missing")
			kind, _ := KindOf(err)
			So(kind, ShouldEqual, KindChatbotNotFound)
		})
	})
}

func TestWidgetServiceSubmitForm(t *testing.T) {
	Convey("表单提交", t, func() {
		ctx := context.Background()
		bot := widgetBot()
		forms := &fakeFormStore{}
		svc := NewWidgetService(&fakeChatbotStore{bots: map[string]*model.Chatbot{"bot-1": bot}}, forms)

		Convey("必填字段齐全时落库", func() {
			sub, err := svc.SubmitForm(ctx, "bot-1", &model.FormSubmitRequest{
				FormID:        "form-1",
				SubmittedData: map[string]any{"email": "jane@example.com"},
				VisitorID:     "v-1",
			})
			So(err, ShouldBeNil)
			So(sub.ID, ShouldNotBeEmpty)
			So(sub.ChatbotID, ShouldEqual, "bot-1")
			So(len(forms.subs), ShouldEqual, 1)
		})

		Convey("缺失必填字段返回 ValidationFailed", func() {
			_, err := svc.SubmitForm(ctx, "bot-1", &model.FormSubmitRequest{
				FormID:        "form-1",
				SubmittedData: map[string]any{"note": "hi"},
			})
			kind, _ := KindOf(err)
			So(kind, ShouldEqual, KindValidationFailed)
			So(len(forms.subs), ShouldEqual, 0)
		})

		Convey("必填字段为空串同样拒绝", func() {
			_, err := svc.SubmitForm(ctx, "bot-1", &model.FormSubmitRequest{
				FormID:        "form-1",
				SubmittedData: map[string]any{"email": ""},
			})
			kind, _ := KindOf(err)
			So(kind, ShouldEqual, KindValidationFailed)
		})

		Convey("未知表单返回 ValidationFailed", func() {
			_, err := svc.SubmitForm(ctx, "bot-1", &model.FormSubmitRequest{
				FormID:        "missing",
				SubmittedData: map[string]any{"email": "jane@example.com"},
			})
			kind, _ := KindOf(err)
			So(kind, ShouldEqual, KindValidationFailed)
		})

		Convey("未知机器人返回 ChatbotNotFound", func() {
			_, err := svc.SubmitForm(ctx, "missing", &model.FormSubmitRequest{
				FormID:        "form-1",
				SubmittedData: map[string]any{"email": "jane@example.com"},
			})
			kind, _ := KindOf(err)
			So(kind, ShouldEqual, KindChatbotNotFound)
		})
	})
}
