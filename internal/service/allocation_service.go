package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/config"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/infrastructure/lock"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AllocationService struct {
	txm     TxManager
	locker  PayoutLocker
	allocs  AllocationStore
	payouts PayoutRequestStore
	dir     DirectoryStore
	guard   *ConservationGuard
}

func NewAllocationService(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *AllocationService {
	allocs := repository.NewAllocationRepository(db)
	payouts := repository.NewPayoutRequestRepository(db)
	return &AllocationService{
		txm: repository.NewTxManager(db),
		locker: lock.NewManager(
			rdb,
			time.Duration(cfg.Business.LockTTLSeconds)*time.Second,
			time.Duration(cfg.Business.LockRetryIntervalMs)*time.Millisecond,
			cfg.Business.LockMaxRetries,
		),
		allocs:  allocs,
		payouts: payouts,
		dir:     repository.NewDirectoryRepository(db),
		guard:   NewConservationGuard(payouts, allocs),
	}
}

type CreateAllocationRequest struct {
	PayoutRequestID int64
	UserID          int64
	FlowID          *int64
	AllocatedAmount decimal.Decimal
	Percentage      *decimal.Decimal
	Description     string
	Notes           string
	OperatorID      int64
}

// Create 新建一条 draft 分配
// 流程：打款请求锁 -> 事务 -> 行锁 + 预算校验 -> 唯一键校验 -> 写入
func (s *AllocationService) Create(ctx context.Context, req *CreateAllocationRequest) (*model.Allocation, error) {
	if req.PayoutRequestID <= 0 || req.UserID <= 0 || req.OperatorID <= 0 {
		return nil, fmt.Errorf("%w: payout_request_id / user_id / operator_id 必须大于 0", ErrValidation)
	}
	if err := validateAmount(req.AllocatedAmount); err != nil {
		return nil, err
	}
	if err := validatePercentage(req.Percentage); err != nil {
		return nil, err
	}

	var created *model.Allocation
	err := s.locker.WithPayoutLock(ctx, req.PayoutRequestID, func() error {
		return s.txm.Transaction(ctx, func(tx *gorm.DB) error {
			payout, err := s.guard.CheckWithinBudget(ctx, tx, req.PayoutRequestID, req.AllocatedAmount, 0)
			if err != nil {
				return err
			}

			existing, err := s.allocs.FindByKey(ctx, tx, req.PayoutRequestID, req.UserID, req.FlowID)
			if err != nil {
				return fmt.Errorf("查询分配记录失败: %w", err)
			}
			if existing != nil {
				return repository.ErrAllocationExists
			}

			allocation := &model.Allocation{
				PayoutRequestID: req.PayoutRequestID,
				UserID:          req.UserID,
				FlowID:          req.FlowID,
				AllocatedAmount: req.AllocatedAmount,
				Percentage:      req.Percentage,
				Currency:        payout.Currency,
				Status:          model.AllocationStatusDraft,
				Description:     req.Description,
				Notes:           req.Notes,
				CreatedBy:       req.OperatorID,
				UpdatedBy:       req.OperatorID,
			}
			if err := s.allocs.Create(ctx, tx, allocation); err != nil {
				return fmt.Errorf("创建分配记录失败: %w", err)
			}

			created = allocation
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("分配创建成功: id=%d, payoutRequestID=%d, userID=%d, amount=%s",
		created.ID, created.PayoutRequestID, created.UserID, created.AllocatedAmount.StringFixed(2))
	return created, nil
}

// UpdateAllocationRequest 部分更新，nil 字段表示不变
// flow_id 不支持改回 NULL（字段缺省即不变），要回到请求级分配请删除后重建
type UpdateAllocationRequest struct {
	AllocatedAmount *decimal.Decimal
	Percentage      *decimal.Decimal
	FlowID          *int64
	Description     *string
	Notes           *string
	Status          *string
	OperatorID      int64
}

// Update 部分更新分配
// 金额或状态变化会重新过预算校验（排除自身旧值）；flow_id 变化重查唯一键
func (s *AllocationService) Update(ctx context.Context, id int64, req *UpdateAllocationRequest) (*model.Allocation, error) {
	if id <= 0 || req.OperatorID <= 0 {
		return nil, fmt.Errorf("%w: id / operator_id 必须大于 0", ErrValidation)
	}
	if req.AllocatedAmount != nil {
		if err := validateAmount(*req.AllocatedAmount); err != nil {
			return nil, err
		}
	}
	if err := validatePercentage(req.Percentage); err != nil {
		return nil, err
	}
	if req.Status != nil && !model.IsValidAllocationStatus(*req.Status) {
		return nil, fmt.Errorf("%w: 未知状态 %s", ErrValidation, *req.Status)
	}

	// 锁外先取一次，拿到所属打款请求
	allocation, err := s.allocs.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	var updated *model.Allocation
	err = s.locker.WithPayoutLock(ctx, allocation.PayoutRequestID, func() error {
		return s.txm.Transaction(ctx, func(tx *gorm.DB) error {
			// 行锁内重读，锁外读到的可能已经过期
			current, err := s.allocs.GetByID(ctx, tx, id)
			if err != nil {
				return err
			}

			newStatus := current.Status
			if req.Status != nil && *req.Status != current.Status {
				if !model.CanTransitionTo(current.Status, *req.Status) {
					return fmt.Errorf("%w: 状态 %s 不能变更为 %s", ErrValidation, current.Status, *req.Status)
				}
				newStatus = *req.Status
			}

			newAmount := current.AllocatedAmount
			if req.AllocatedAmount != nil {
				newAmount = *req.AllocatedAmount
			}

			// cancelled 不占预算，delta 记 0；其余状态按新金额校验
			delta := decimal.Zero
			if newStatus != model.AllocationStatusCancelled {
				delta = newAmount
			}
			if _, err := s.guard.CheckWithinBudget(ctx, tx, current.PayoutRequestID, delta, current.ID); err != nil {
				return err
			}

			if req.FlowID != nil && !current.SameKey(current.UserID, req.FlowID) {
				existing, err := s.allocs.FindByKey(ctx, tx, current.PayoutRequestID, current.UserID, req.FlowID)
				if err != nil {
					return fmt.Errorf("查询分配记录失败: %w", err)
				}
				if existing != nil && existing.ID != current.ID {
					return repository.ErrAllocationExists
				}
				current.FlowID = req.FlowID
			}

			current.AllocatedAmount = newAmount
			current.Status = newStatus
			if req.Percentage != nil {
				current.Percentage = req.Percentage
			}
			if req.Description != nil {
				current.Description = *req.Description
			}
			if req.Notes != nil {
				current.Notes = *req.Notes
			}
			current.UpdatedBy = req.OperatorID

			if err := s.allocs.Save(ctx, tx, current); err != nil {
				return fmt.Errorf("更新分配记录失败: %w", err)
			}

			updated = current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete 物理删除分配，返回是否删除成功
// 删除只会降低占用金额，不需要过预算校验
func (s *AllocationService) Delete(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, fmt.Errorf("%w: id 必须大于 0", ErrValidation)
	}

	var deleted bool
	err := s.txm.Transaction(ctx, func(tx *gorm.DB) error {
		ok, err := s.allocs.Delete(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("删除分配记录失败: %w", err)
		}
		deleted = ok
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// AllocationView 列表展示用，附带成员与流量名称
type AllocationView struct {
	model.Allocation
	Username string `json:"username,omitempty"`
	FlowName string `json:"flow_name,omitempty"`
}

// List 查询打款请求下全部分配（新建在前），并补全展示字段
func (s *AllocationService) List(ctx context.Context, payoutRequestID int64) ([]*AllocationView, error) {
	if payoutRequestID <= 0 {
		return nil, fmt.Errorf("%w: payout_request_id 必须大于 0", ErrValidation)
	}
	if _, err := s.payouts.GetByID(ctx, payoutRequestID); err != nil {
		return nil, err
	}

	allocations, err := s.allocs.List(ctx, nil, payoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("查询分配列表失败: %w", err)
	}

	userIDs := make([]int64, 0, len(allocations))
	flowIDs := make([]int64, 0, len(allocations))
	seenUsers := make(map[int64]bool)
	seenFlows := make(map[int64]bool)
	for _, a := range allocations {
		if !seenUsers[a.UserID] {
			seenUsers[a.UserID] = true
			userIDs = append(userIDs, a.UserID)
		}
		if a.FlowID != nil && !seenFlows[*a.FlowID] {
			seenFlows[*a.FlowID] = true
			flowIDs = append(flowIDs, *a.FlowID)
		}
	}

	users, err := s.dir.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("查询成员信息失败: %w", err)
	}
	flows, err := s.dir.GetFlowsByIDs(ctx, flowIDs)
	if err != nil {
		return nil, fmt.Errorf("查询流量信息失败: %w", err)
	}

	views := make([]*AllocationView, 0, len(allocations))
	for _, a := range allocations {
		view := &AllocationView{Allocation: *a}
		if u, ok := users[a.UserID]; ok {
			view.Username = u.Username
		}
		if a.FlowID != nil {
			if f, ok := flows[*a.FlowID]; ok {
				view.FlowName = f.Name
			}
		}
		views = append(views, view)
	}
	return views, nil
}
