package repository

import (
	"context"
	"errors"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrAllocationNotFound = errors.New("分配记录不存在")
	ErrAllocationExists   = errors.New("该成员在此打款请求下已有相同维度的分配")
)

type AllocationRepository struct {
	db *gorm.DB
}

func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// List 查询打款请求下全部分配，按创建时间倒序
func (r *AllocationRepository) List(ctx context.Context, tx *gorm.DB, payoutRequestID int64) ([]*model.Allocation, error) {
	if tx == nil {
		tx = r.db
	}
	var allocations []*model.Allocation
	err := tx.WithContext(ctx).
		Where("payout_request_id = ?", payoutRequestID).
		Order("created_at DESC, id DESC").
		Find(&allocations).Error
	return allocations, err
}

func (r *AllocationRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Allocation, error) {
	if tx == nil {
		tx = r.db
	}
	var allocation model.Allocation
	err := tx.WithContext(ctx).Where("id = ?", id).First(&allocation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocationNotFound
		}
		return nil, err
	}
	return &allocation, nil
}

// FindByKey 按 (payout_request_id, user_id, flow_id) 三元组查找，未命中返回 nil
// flow_id 为 NULL 单独成键，用 IS NULL 匹配，避免 NULL 等值比较的坑
func (r *AllocationRepository) FindByKey(ctx context.Context, tx *gorm.DB, payoutRequestID, userID int64, flowID *int64) (*model.Allocation, error) {
	if tx == nil {
		tx = r.db
	}
	query := tx.WithContext(ctx).
		Where("payout_request_id = ? AND user_id = ?", payoutRequestID, userID)
	if flowID == nil {
		query = query.Where("flow_id IS NULL")
	} else {
		query = query.Where("flow_id = ?", *flowID)
	}

	var allocation model.Allocation
	err := query.First(&allocation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &allocation, nil
}

// SumActive 统计非 cancelled 分配金额之和，excludeID > 0 时排除指定行（更新场景替换旧值）
func (r *AllocationRepository) SumActive(ctx context.Context, tx *gorm.DB, payoutRequestID, excludeID int64) (decimal.Decimal, error) {
	if tx == nil {
		tx = r.db
	}
	query := tx.WithContext(ctx).
		Model(&model.Allocation{}).
		Select("SUM(allocated_amount)").
		Where("payout_request_id = ? AND status <> ?", payoutRequestID, model.AllocationStatusCancelled)
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var total decimal.NullDecimal
	if err := query.Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *AllocationRepository) Create(ctx context.Context, tx *gorm.DB, allocation *model.Allocation) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(allocation).Error
}

func (r *AllocationRepository) Save(ctx context.Context, tx *gorm.DB, allocation *model.Allocation) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Save(allocation).Error
}

// Delete 物理删除，返回是否真的删掉了
func (r *AllocationRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Delete(&model.Allocation{}, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ConfirmDrafts 将打款请求下全部 draft 分配置为 confirmed，返回生效行数
// 条件更新天然幂等：第二次调用没有 draft 行，RowsAffected 为 0
func (r *AllocationRepository) ConfirmDrafts(ctx context.Context, tx *gorm.DB, payoutRequestID, actorID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Allocation{}).
		Where("payout_request_id = ? AND status = ?", payoutRequestID, model.AllocationStatusDraft).
		Updates(map[string]interface{}{
			"status":     model.AllocationStatusConfirmed,
			"updated_by": actorID,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
