package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"voxtro/internal/model"
	"voxtro/internal/pkg/id"
)

// UsageRepo token 使用流水仓库，追加写入
type UsageRepo struct {
	collection *mongo.Collection
}

// NewUsageRepo 创建使用流水仓库
func NewUsageRepo(db *mongo.Database) *UsageRepo {
	return &UsageRepo{
		collection: db.Collection("token_usage"),
	}
}

// Insert 写入一条使用记录
func (r *UsageRepo) Insert(ctx context.Context, rec *model.TokenUsageRecord) error {
	if rec.ID == "" {
		rec.ID = id.New()
	}
	rec.CreatedAt = time.Now()
	rec.TotalTokens = rec.InputTokens + rec.OutputTokens

	_, err := r.collection.InsertOne(ctx, rec)
	return err
}

// SumSince 汇总某机器人自 since 起的 token 总量
func (r *UsageRepo) SumSince(ctx context.Context, chatbotID string, since time.Time) (int64, error) {
	pipeline := mongo.Pipeline{
		bson.D{bson.E{Key: "$match", Value: bson.M{
			"chatbot_id": chatbotID,
			"created_at": bson.M{"$gte": since},
		}}},
		bson.D{bson.E{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$total_tokens"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}
