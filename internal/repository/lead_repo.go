package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"voxtro/internal/model"
	"voxtro/internal/pkg/id"
)

// LeadRepo 线索仓库
type LeadRepo struct {
	collection *mongo.Collection
}

// NewLeadRepo 创建线索仓库
func NewLeadRepo(db *mongo.Database) *LeadRepo {
	return &LeadRepo{
		collection: db.Collection("leads"),
	}
}

// Insert 写入线索
func (r *LeadRepo) Insert(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = id.New()
	}
	lead.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, lead)
	return err
}

// ExistsForConversation 对话是否已有线索（批处理重复调用时跳过）
func (r *LeadRepo) ExistsForConversation(ctx context.Context, convID string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"conversation_id": convID})
	return count > 0, err
}
