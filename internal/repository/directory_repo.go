package repository

import (
	"context"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"

	"gorm.io/gorm"
)

// DirectoryRepository 成员与流量的只读查询，列表展示时补全名称用
type DirectoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error) {
	result := make(map[int64]*model.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []*model.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

func (r *DirectoryRepository) GetFlowsByIDs(ctx context.Context, ids []int64) (map[int64]*model.Flow, error) {
	result := make(map[int64]*model.Flow, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var flows []*model.Flow
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&flows).Error
	if err != nil {
		return nil, err
	}
	for _, f := range flows {
		result[f.ID] = f
	}
	return result, nil
}
