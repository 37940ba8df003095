package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/config"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/infrastructure/lock"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/repository"
	"github.com/wild-dmytro/wild-erp-server-sub000/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconcileService 批量对账：按期望列表对已有分配做"有则更新、无则插入"
// 只做增改，不删除期望列表之外的行，想移除必须显式调删除接口
type ReconcileService struct {
	txm     TxManager
	locker  PayoutLocker
	allocs  AllocationStore
	payouts PayoutRequestStore
	outbox  OutboxStore
	topic   string
}

func NewReconcileService(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *ReconcileService {
	allocs := repository.NewAllocationRepository(db)
	payouts := repository.NewPayoutRequestRepository(db)
	return &ReconcileService{
		txm: repository.NewTxManager(db),
		locker: lock.NewManager(
			rdb,
			time.Duration(cfg.Business.LockTTLSeconds)*time.Second,
			time.Duration(cfg.Business.LockRetryIntervalMs)*time.Millisecond,
			cfg.Business.LockMaxRetries,
		),
		allocs:  allocs,
		payouts: payouts,
		outbox:  repository.NewOutboxRepository(db),
		topic:   cfg.Kafka.Topic.AllocationEvents,
	}
}

type ReconcileItem struct {
	UserID          int64
	FlowID          *int64
	AllocatedAmount decimal.Decimal
	Percentage      *decimal.Decimal
	Description     string
	Notes           string
}

func itemKey(userID int64, flowID *int64) string {
	if flowID == nil {
		return fmt.Sprintf("%d:-", userID)
	}
	return fmt.Sprintf("%d:%d", userID, *flowID)
}

// Reconcile 一个事务内整批应用期望分配，任何一项失败整批回滚
//
// 步骤：
// 1. 快速失败：批次自身总额超出预算直接拒绝，不开事务
// 2. 打款请求锁 + 事务内行锁
// 3. 逐项按 (user_id, flow_id) 匹配已有行，命中更新、未命中插入 draft
// 4. 守恒校验覆盖未命中的存量活跃行 + 整批新金额
// 返回结果按入参顺序排列
func (s *ReconcileService) Reconcile(ctx context.Context, payoutRequestID int64, items []ReconcileItem, operatorID int64) ([]*model.Allocation, error) {
	if payoutRequestID <= 0 || operatorID <= 0 {
		return nil, fmt.Errorf("%w: payout_request_id / operator_id 必须大于 0", ErrValidation)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: 分配列表不能为空", ErrValidation)
	}

	desiredTotal := decimal.Zero
	keys := make(map[string]bool, len(items))
	for i := range items {
		item := &items[i]
		if item.UserID <= 0 {
			return nil, fmt.Errorf("%w: 第 %d 项 user_id 必须大于 0", ErrValidation, i+1)
		}
		if err := validateAmount(item.AllocatedAmount); err != nil {
			return nil, fmt.Errorf("第 %d 项: %w", i+1, err)
		}
		if err := validatePercentage(item.Percentage); err != nil {
			return nil, fmt.Errorf("第 %d 项: %w", i+1, err)
		}
		key := itemKey(item.UserID, item.FlowID)
		if keys[key] {
			return nil, fmt.Errorf("%w: 第 %d 项与批次内其他项 (user_id, flow_id) 重复", ErrValidation, i+1)
		}
		keys[key] = true
		desiredTotal = desiredTotal.Add(item.AllocatedAmount)
	}

	// 快速失败：批次总额本身就超预算，没必要碰存储
	payout, err := s.payouts.GetByID(ctx, payoutRequestID)
	if err != nil {
		return nil, err
	}
	if desiredTotal.GreaterThan(payout.TotalAmount) {
		return nil, &ConservationViolationError{
			PayoutRequestID: payoutRequestID,
			Total:           payout.TotalAmount,
			Proposed:        desiredTotal,
			Overrun:         desiredTotal.Sub(payout.TotalAmount),
		}
	}

	batchNo := idgen.GenerateBatchNo()
	results := make([]*model.Allocation, 0, len(items))
	updatedCount := 0
	createdCount := 0

	err = s.locker.WithPayoutLock(ctx, payoutRequestID, func() error {
		return s.txm.Transaction(ctx, func(tx *gorm.DB) error {
			locked, err := s.payouts.GetByIDForUpdate(ctx, tx, payoutRequestID)
			if err != nil {
				return err
			}

			existing, err := s.allocs.List(ctx, tx, payoutRequestID)
			if err != nil {
				return fmt.Errorf("查询存量分配失败: %w", err)
			}

			// 逐项匹配存量行（flow_id 为 NULL 单独成键）
			matched := make([]*model.Allocation, len(items))
			matchedIDs := make(map[int64]bool)
			for i := range items {
				for _, a := range existing {
					if a.SameKey(items[i].UserID, items[i].FlowID) {
						matched[i] = a
						matchedIDs[a.ID] = true
						break
					}
				}
			}

			// 守恒校验：未命中的存量活跃行 + 整批金额
			// 命中 cancelled 行的项只改字段不复活，金额不计入占用
			proposed := decimal.Zero
			for _, a := range existing {
				if !matchedIDs[a.ID] && a.IsActive() {
					proposed = proposed.Add(a.AllocatedAmount)
				}
			}
			for i := range items {
				if matched[i] == nil || matched[i].IsActive() {
					proposed = proposed.Add(items[i].AllocatedAmount)
				}
			}
			if proposed.GreaterThan(locked.TotalAmount) {
				return &ConservationViolationError{
					PayoutRequestID: payoutRequestID,
					Total:           locked.TotalAmount,
					Proposed:        proposed,
					Overrun:         proposed.Sub(locked.TotalAmount),
				}
			}

			for i := range items {
				item := &items[i]
				if row := matched[i]; row != nil {
					row.AllocatedAmount = item.AllocatedAmount
					row.Percentage = item.Percentage
					row.Description = item.Description
					row.Notes = item.Notes
					row.UpdatedBy = operatorID
					if err := s.allocs.Save(ctx, tx, row); err != nil {
						return fmt.Errorf("更新分配记录失败: %w", err)
					}
					results = append(results, row)
					updatedCount++
					continue
				}

				allocation := &model.Allocation{
					PayoutRequestID: payoutRequestID,
					UserID:          item.UserID,
					FlowID:          item.FlowID,
					AllocatedAmount: item.AllocatedAmount,
					Percentage:      item.Percentage,
					Currency:        locked.Currency,
					Status:          model.AllocationStatusDraft,
					Description:     item.Description,
					Notes:           item.Notes,
					CreatedBy:       operatorID,
					UpdatedBy:       operatorID,
				}
				if err := s.allocs.Create(ctx, tx, allocation); err != nil {
					return fmt.Errorf("创建分配记录失败: %w", err)
				}
				results = append(results, allocation)
				createdCount++
			}

			payload, _ := json.Marshal(map[string]interface{}{
				"batch_no":          batchNo,
				"payout_request_id": payoutRequestID,
				"item_count":        len(items),
				"updated":           updatedCount,
				"created":           createdCount,
				"operator_id":       operatorID,
				"applied_at":        time.Now().Format(time.RFC3339),
			})
			msg := &model.OutboxMessage{
				EventNo:   idgen.GenerateEventNo(),
				EventType: model.EventTypeAllocationBulkUpserted,
				Topic:     s.topic,
				Payload:   string(payload),
				Status:    model.OutboxStatusPending,
			}
			if err := s.outbox.Create(ctx, tx, msg); err != nil {
				return fmt.Errorf("写入事件失败: %w", err)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("批量分配完成: batchNo=%s, payoutRequestID=%d, 更新 %d 条, 新建 %d 条",
		batchNo, payoutRequestID, updatedCount, createdCount)
	return results, nil
}
