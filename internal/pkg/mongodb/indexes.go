package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes 创建所有集合的索引
// 应用启动时统一调用
func EnsureIndexes(db *mongo.Database) error {
	ctx := context.Background()

	// conversations 集合索引
	// 对话解析依赖 (chatbot_id, visitor_id, status) 查询最近的未结束对话
	convColl := db.Collection("conversations")
	convIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				bson.E{Key: "chatbot_id", Value: 1},
				bson.E{Key: "visitor_id", Value: 1},
				bson.E{Key: "status", Value: 1},
			},
			Options: options.Index().SetName("idx_chatbot_visitor_status"),
		},
		{
			Keys:    bson.D{bson.E{Key: "last_activity_at", Value: -1}},
			Options: options.Index().SetName("idx_last_activity"),
		},
	}
	if err := createIndexes(ctx, convColl, convIndexes); err != nil {
		return err
	}

	// messages 集合索引
	// 历史回放按 (conversation_id, seq) 升序
	msgColl := db.Collection("messages")
	msgIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				bson.E{Key: "conversation_id", Value: 1},
				bson.E{Key: "seq", Value: 1},
			},
			Options: options.Index().SetName("idx_conversation_seq").SetUnique(true),
		},
	}
	if err := createIndexes(ctx, msgColl, msgIndexes); err != nil {
		return err
	}

	// token_usage 集合索引
	// 预算检查按 (chatbot_id, created_at) 窗口聚合
	usageColl := db.Collection("token_usage")
	usageIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				bson.E{Key: "chatbot_id", Value: 1},
				bson.E{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_chatbot_created"),
		},
	}
	if err := createIndexes(ctx, usageColl, usageIndexes); err != nil {
		return err
	}

	// action_invocations 集合索引
	// 唯一索引保证同一消息对同一动作至多执行一次
	invColl := db.Collection("action_invocations")
	invIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				bson.E{Key: "message_id", Value: 1},
				bson.E{Key: "action_id", Value: 1},
			},
			Options: options.Index().SetName("idx_message_action").SetUnique(true),
		},
	}
	if err := createIndexes(ctx, invColl, invIndexes); err != nil {
		return err
	}

	// leads 集合索引
	leadColl := db.Collection("leads")
	leadIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				bson.E{Key: "chatbot_id", Value: 1},
				bson.E{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_chatbot_created"),
		},
		{
			Keys:    bson.D{bson.E{Key: "conversation_id", Value: 1}},
			Options: options.Index().SetName("idx_conversation"),
		},
	}
	if err := createIndexes(ctx, leadColl, leadIndexes); err != nil {
		return err
	}

	// form_submissions 集合索引
	formColl := db.Collection("form_submissions")
	formIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				bson.E{Key: "form_id", Value: 1},
				bson.E{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_form_created"),
		},
	}
	return createIndexes(ctx, formColl, formIndexes)
}

// createIndexes 辅助函数：创建索引
func createIndexes(ctx context.Context, coll *mongo.Collection, indexes []mongo.IndexModel) error {
	if len(indexes) == 0 {
		return nil
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
