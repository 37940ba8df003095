package service

import (
	"context"
	"fmt"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AllocationStats 打款请求维度的分配统计
type AllocationStats struct {
	TotalAllocations     int64           `json:"total_allocations"`
	TotalAllocated       decimal.Decimal `json:"total_allocated"`
	AvgAllocation        decimal.Decimal `json:"avg_allocation"`
	UniqueUsers          int64           `json:"unique_users"`
	PayoutTotal          decimal.Decimal `json:"payout_total"`
	AllocationPercentage decimal.Decimal `json:"allocation_percentage"`
	DraftCount           int64           `json:"draft_count"`
	ConfirmedCount       int64           `json:"confirmed_count"`
	PaidCount            int64           `json:"paid_count"`
	CancelledCount       int64           `json:"cancelled_count"`
}

// StatsService 只读统计，不参与任何写路径
type StatsService struct {
	allocs  AllocationStore
	payouts PayoutRequestStore
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{
		allocs:  repository.NewAllocationRepository(db),
		payouts: repository.NewPayoutRequestRepository(db),
	}
}

// GetStats 统计打款请求下的分配情况，没有分配时返回零值结构
func (s *StatsService) GetStats(ctx context.Context, payoutRequestID int64) (*AllocationStats, error) {
	if payoutRequestID <= 0 {
		return nil, fmt.Errorf("%w: payout_request_id 必须大于 0", ErrValidation)
	}

	payout, err := s.payouts.GetByID(ctx, payoutRequestID)
	if err != nil {
		return nil, err
	}

	allocations, err := s.allocs.List(ctx, nil, payoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("查询分配列表失败: %w", err)
	}

	return computeStats(payout, allocations), nil
}

var oneHundred = decimal.NewFromInt(100)

// computeStats 统计口径与历史报表保持一致：total_allocated 与占比计入
// cancelled 分配；预算守恒校验排除 cancelled。两个口径不同是有意保留的
func computeStats(payout *model.PayoutRequest, allocations []*model.Allocation) *AllocationStats {
	stats := &AllocationStats{
		TotalAllocated:       decimal.Zero,
		AvgAllocation:        decimal.Zero,
		PayoutTotal:          payout.TotalAmount,
		AllocationPercentage: decimal.Zero,
	}

	users := make(map[int64]struct{})
	for _, a := range allocations {
		stats.TotalAllocations++
		stats.TotalAllocated = stats.TotalAllocated.Add(a.AllocatedAmount)
		users[a.UserID] = struct{}{}

		switch a.Status {
		case model.AllocationStatusDraft:
			stats.DraftCount++
		case model.AllocationStatusConfirmed:
			stats.ConfirmedCount++
		case model.AllocationStatusPaid:
			stats.PaidCount++
		case model.AllocationStatusCancelled:
			stats.CancelledCount++
		}
	}
	stats.UniqueUsers = int64(len(users))

	if stats.TotalAllocations > 0 {
		stats.AvgAllocation = stats.TotalAllocated.
			Div(decimal.NewFromInt(stats.TotalAllocations)).
			Round(2)
	}
	if payout.TotalAmount.IsPositive() {
		stats.AllocationPercentage = stats.TotalAllocated.
			Div(payout.TotalAmount).
			Mul(oneHundred).
			Round(2)
	}

	return stats
}
