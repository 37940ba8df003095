package service

import (
	"context"
	"fmt"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ConservationGuard 预算守恒校验
//
// 【关键点】校验与后续写入必须发生在同一个事务里：
// 先对 payout_request 行加排他锁（FOR UPDATE，持有到提交），再统计占用金额。
// 没有这把行锁，两个并发创建会各自通过校验然后联合超出预算
type ConservationGuard struct {
	payouts PayoutRequestStore
	allocs  AllocationStore
}

func NewConservationGuard(payouts PayoutRequestStore, allocs AllocationStore) *ConservationGuard {
	return &ConservationGuard{
		payouts: payouts,
		allocs:  allocs,
	}
}

// CheckWithinBudget 校验排除 excludeID 行后追加 delta 金额是否仍在预算内
//
// excludeID 为 0 表示新建场景；更新场景传被替换行的 ID，旧值不计入占用。
// 恰好等于预算属于边界情况，放行；超出时返回携带精确超出金额的错误，绝不悄悄截断。
// 返回加锁后的打款请求，供调用方取 currency / total_amount
func (g *ConservationGuard) CheckWithinBudget(ctx context.Context, tx *gorm.DB, payoutRequestID int64, delta decimal.Decimal, excludeID int64) (*model.PayoutRequest, error) {
	payout, err := g.payouts.GetByIDForUpdate(ctx, tx, payoutRequestID)
	if err != nil {
		return nil, err
	}

	current, err := g.allocs.SumActive(ctx, tx, payoutRequestID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("统计已分配金额失败: %w", err)
	}

	proposed := current.Add(delta)
	if proposed.GreaterThan(payout.TotalAmount) {
		return nil, &ConservationViolationError{
			PayoutRequestID: payoutRequestID,
			Total:           payout.TotalAmount,
			Proposed:        proposed,
			Overrun:         proposed.Sub(payout.TotalAmount),
		}
	}

	return payout, nil
}
