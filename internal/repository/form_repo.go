package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"voxtro/internal/model"
	"voxtro/internal/pkg/id"
)

// FormSubmissionRepo 表单提交仓库
type FormSubmissionRepo struct {
	collection *mongo.Collection
}

// NewFormSubmissionRepo 创建表单提交仓库
func NewFormSubmissionRepo(db *mongo.Database) *FormSubmissionRepo {
	return &FormSubmissionRepo{
		collection: db.Collection("form_submissions"),
	}
}

// Insert 写入表单提交
func (r *FormSubmissionRepo) Insert(ctx context.Context, sub *model.FormSubmission) error {
	if sub.ID == "" {
		sub.ID = id.New()
	}
	sub.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, sub)
	return err
}
