package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"voxtro/internal/model"
	"voxtro/internal/pkg/id"
)

// ErrDuplicateInvocation 同一 (message_id, action_id) 已有执行记录
var ErrDuplicateInvocation = errors.New("repository: duplicate action invocation")

// InvocationRepo 动作执行记录仓库
// (message_id, action_id) 唯一索引是 at-most-once 语义的落库保障
type InvocationRepo struct {
	collection *mongo.Collection
}

// NewInvocationRepo 创建动作执行记录仓库
func NewInvocationRepo(db *mongo.Database) *InvocationRepo {
	return &InvocationRepo{
		collection: db.Collection("action_invocations"),
	}
}

// Insert 写入执行记录，命中唯一索引时返回 ErrDuplicateInvocation
func (r *InvocationRepo) Insert(ctx context.Context, inv *model.ActionInvocation) error {
	if inv.ID == "" {
		inv.ID = id.New()
	}
	inv.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, inv)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateInvocation
	}
	return err
}

// SetOutcome 修正已占位记录的最终结果
// 副作用执行失败时把占位时写入的 executed 改为真实结果
func (r *InvocationRepo) SetOutcome(ctx context.Context, messageID, actionID, outcome, errMsg string) error {
	update := bson.M{"outcome": outcome}
	if errMsg != "" {
		update["error"] = errMsg
	}

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"message_id": messageID, "action_id": actionID},
		bson.M{"$set": update},
	)
	return err
}
