package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"voxtro/internal/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("repository: not found")

// ChatbotRepo 机器人配置仓库
type ChatbotRepo struct {
	collection *mongo.Collection
}

// NewChatbotRepo 创建机器人仓库
func NewChatbotRepo(db *mongo.Database) *ChatbotRepo {
	return &ChatbotRepo{
		collection: db.Collection("chatbots"),
	}
}

// Upsert 按 ID 写入或覆盖机器人配置（后台/脚本用）
func (r *ChatbotRepo) Upsert(ctx context.Context, bot *model.Chatbot) error {
	now := time.Now()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": bot.ID}, bot, opts)
	return err
}

// FindByID 根据 ID 查询
func (r *ChatbotRepo) FindByID(ctx context.Context, id string) (*model.Chatbot, error) {
	var bot model.Chatbot
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&bot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bot, nil
}
