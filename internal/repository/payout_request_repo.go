package repository

import (
	"context"
	"errors"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPayoutRequestNotFound = errors.New("打款请求不存在")

type PayoutRequestRepository struct {
	db *gorm.DB
}

func NewPayoutRequestRepository(db *gorm.DB) *PayoutRequestRepository {
	return &PayoutRequestRepository{db: db}
}

func (r *PayoutRequestRepository) GetByID(ctx context.Context, id int64) (*model.PayoutRequest, error) {
	var payout model.PayoutRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutRequestNotFound
		}
		return nil, err
	}
	return &payout, nil
}

// GetByIDForUpdate 在事务内对打款请求行加排他锁（SELECT ... FOR UPDATE）
// 锁持有到事务提交，同一打款请求的并发分配写入在此串行化
func (r *PayoutRequestRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.PayoutRequest, error) {
	var payout model.PayoutRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutRequestNotFound
		}
		return nil, err
	}
	return &payout, nil
}
