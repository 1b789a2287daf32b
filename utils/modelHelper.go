package utils

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"gorm.io/gorm"
)

/* DB fetching */

// fetch model from db
// (may return RecordNotFound)
func FetchModel[T any](ctx context.Context, id string, associations ...string) (*T, error) {
	return FetchModelTx[T](config.GetDB().WithContext(ctx), id, associations...)
}

// FetchModelTx is FetchModel inside an open transaction.
func FetchModelTx[T any](tx *gorm.DB, id string, associations ...string) (*T, error) {
	q := tx
	for _, field := range associations {
		q = q.Preload(field)
	}
	var result T
	err := q.Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// fetch all models from db, ordered
func FetchAllModels[T any](ctx context.Context, order string) ([]*T, error) {
	db := config.GetDB()
	var results []*T
	q := db.WithContext(ctx)
	if order != "" {
		q = q.Order(order)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
