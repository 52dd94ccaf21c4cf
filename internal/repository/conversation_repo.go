package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"voxtro/internal/model"
	"voxtro/internal/pkg/id"
)

// ErrDuplicateMessage 同一消息 ID 已追加过（重试投递）
var ErrDuplicateMessage = errors.New("repository: duplicate message")

// ConversationRepo 对话仓库
// 消息追加写入 messages 集合，seq 由 conversations 上的水位字段分配
type ConversationRepo struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

// NewConversationRepo 创建对话仓库
func NewConversationRepo(db *mongo.Database) *ConversationRepo {
	return &ConversationRepo{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
	}
}

// Create 创建对话
func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	now := time.Now()
	if conv.ID == "" {
		conv.ID = id.New()
	}
	conv.Status = model.ConversationStatusActive
	conv.CreatedAt = now
	conv.LastActivityAt = now

	_, err := r.conversations.InsertOne(ctx, conv)
	return err
}

// FindByID 根据 ID 查询
func (r *ConversationRepo) FindByID(ctx context.Context, convID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.conversations.FindOne(ctx, bson.M{"_id": convID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindOpen 查询 (chatbot, visitor) 最近一个未结束的对话
func (r *ConversationRepo) FindOpen(ctx context.Context, chatbotID, visitorID string) (*model.Conversation, error) {
	opts := options.FindOne().SetSort(bson.D{bson.E{Key: "last_activity_at", Value: -1}})

	var conv model.Conversation
	err := r.conversations.FindOne(ctx, bson.M{
		"chatbot_id": chatbotID,
		"visitor_id": visitorID,
		"status":     model.ConversationStatusActive,
	}, opts).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// AppendMessage 追加消息，分配下一个 seq 并刷新活动时间
// 调用方持有该对话的锁，水位自增与消息插入的间隙不会出现并发追加
func (r *ConversationRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	// 重复投递在水位自增之前拦截，seq 不留空洞、活动时间不被刷新
	if msg.ID != "" {
		n, err := r.messages.CountDocuments(ctx, bson.M{"_id": msg.ID})
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateMessage
		}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var conv model.Conversation
	err := r.conversations.FindOneAndUpdate(ctx,
		bson.M{"_id": msg.ConversationID},
		bson.M{
			"$inc": bson.M{"message_seq": 1},
			"$set": bson.M{"last_activity_at": time.Now()},
		},
		opts,
	).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if msg.ID == "" {
		msg.ID = id.New()
	}
	msg.Seq = conv.MessageSeq
	msg.CreatedAt = time.Now()

	_, err = r.messages.InsertOne(ctx, msg)
	if mongo.IsDuplicateKeyError(err) {
		// 探测与插入之间被抢先写入，把已分配的水位退回去
		if _, decErr := r.conversations.UpdateByID(ctx, msg.ConversationID,
			bson.M{"$inc": bson.M{"message_seq": -1}}); decErr != nil {
			return decErr
		}
		return ErrDuplicateMessage
	}
	return err
}

// ReplyTo 返回某条用户消息之后的第一条助手消息
// 重复投递的消息据此回放已记录的回复，没有则返回 ErrNotFound
func (r *ConversationRepo) ReplyTo(ctx context.Context, convID, userMessageID string) (*model.Message, error) {
	var userMsg model.Message
	err := r.messages.FindOne(ctx, bson.M{"_id": userMessageID, "conversation_id": convID}).Decode(&userMsg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	opts := options.FindOne().SetSort(bson.D{bson.E{Key: "seq", Value: 1}})

	var reply model.Message
	err = r.messages.FindOne(ctx, bson.M{
		"conversation_id": convID,
		"role":            model.RoleAssistant,
		"seq":             bson.M{"$gt": userMsg.Seq},
	}, opts).Decode(&reply)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// History 返回对话最近 limit 条消息，按 seq 升序
func (r *ConversationRepo) History(ctx context.Context, convID string, limit int) ([]model.Message, error) {
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "seq", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.messages.Find(ctx, bson.M{"conversation_id": convID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []model.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}

	// 倒序取出后翻转为时间正序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// End 结束对话
func (r *ConversationRepo) End(ctx context.Context, convID string) error {
	now := time.Now()
	result, err := r.conversations.UpdateByID(ctx, convID, bson.M{
		"$set": bson.M{
			"status":   model.ConversationStatusEnded,
			"ended_at": now,
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
