package service

import (
	"context"
	"errors"
	"sort"

	"voxtro/internal/model"
	"voxtro/internal/repository"
)

// FormStore 表单提交持久化接口
type FormStore interface {
	Insert(ctx context.Context, sub *model.FormSubmission) error
}

// WidgetService widget 公开接口服务
// 只暴露未认证访客需要的投影，租户字段绝不外泄
type WidgetService struct {
	bots  ChatbotStore
	forms FormStore
}

// NewWidgetService 创建 widget 服务
func NewWidgetService(bots ChatbotStore, forms FormStore) *WidgetService {
	return &WidgetService{bots: bots, forms: forms}
}

// Config 返回 widget 启动配置投影，仅对启用的机器人开放
func (s *WidgetService) Config(ctx context.Context, chatbotID string) (*model.WidgetConfigResponse, error) {
	bot, err := s.bots.FindByID(ctx, chatbotID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindChatbotNotFound, "chatbot not found", err)
	}
	if err != nil {
		return nil, err
	}
	if !bot.IsActive {
		return nil, newError(KindChatbotInactive, "chatbot is inactive", nil)
	}

	faqs := make([]model.FAQ, 0, len(bot.FAQs))
	for _, faq := range bot.FAQs {
		if faq.IsActive {
			faqs = append(faqs, faq)
		}
	}
	sort.SliceStable(faqs, func(i, j int) bool {
		return faqs[i].SortOrder < faqs[j].SortOrder
	})

	forms := bot.Forms
	if forms == nil {
		forms = []model.ChatbotForm{}
	}

	return &model.WidgetConfigResponse{
		ChatbotID:    bot.ID,
		Name:         bot.Name,
		Theme:        bot.Theme,
		FirstMessage: bot.FirstMessage,
		Placeholder:  bot.Placeholder,
		Forms:        forms,
		FAQs:         faqs,
	}, nil
}

// SubmitForm 校验并写入表单提交
// 表单必须属于该机器人且必填字段齐全
func (s *WidgetService) SubmitForm(ctx context.Context, chatbotID string, req *model.FormSubmitRequest) (*model.FormSubmission, error) {
	bot, err := s.bots.FindByID(ctx, chatbotID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindChatbotNotFound, "chatbot not found", err)
	}
	if err != nil {
		return nil, err
	}

	form, ok := findForm(bot, req.FormID)
	if !ok {
		return nil, newError(KindValidationFailed, "form not found", nil)
	}

	for _, field := range form.Fields {
		if !field.Required {
			continue
		}
		if v, present := req.SubmittedData[field.Name]; !present || v == "" || v == nil {
			return nil, newError(KindValidationFailed, "missing required field: "+field.Name, nil)
		}
	}

	sub := &model.FormSubmission{
		ChatbotID:      bot.ID,
		FormID:         form.ID,
		ConversationID: req.ConversationID,
		VisitorID:      req.VisitorID,
		Data:           req.SubmittedData,
	}
	if err := s.forms.Insert(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func findForm(bot *model.Chatbot, formID string) (model.ChatbotForm, bool) {
	for _, form := range bot.Forms {
		if form.ID == formID {
			return form, true
		}
	}
	return model.ChatbotForm{}, false
}
