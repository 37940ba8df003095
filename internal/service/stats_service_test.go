package service

import (
	"context"
	"testing"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStats(t *testing.T) {
	ctx := context.Background()

	t.Run("无分配时返回零值结构", func(t *testing.T) {
		env := newTestEnv()
		env.addPayout(1, "1000.00", "USD")

		stats, err := env.statsSvc.GetStats(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalAllocations)
		assert.True(t, stats.TotalAllocated.IsZero())
		assert.True(t, stats.AvgAllocation.IsZero())
		assert.Zero(t, stats.UniqueUsers)
		assert.True(t, stats.PayoutTotal.Equal(dec("1000.00")))
		assert.True(t, stats.AllocationPercentage.IsZero())
	})

	t.Run("cancelled 计入总额与占比", func(t *testing.T) {
		env := newTestEnv()
		env.addPayout(1, "1000.00", "USD")
		env.allocs.rows = append(env.allocs.rows,
			&model.Allocation{ID: 1, PayoutRequestID: 1, UserID: 5, AllocatedAmount: dec("400.00"), Currency: "USD", Status: model.AllocationStatusConfirmed},
			&model.Allocation{ID: 2, PayoutRequestID: 1, UserID: 6, AllocatedAmount: dec("300.00"), Currency: "USD", Status: model.AllocationStatusCancelled},
		)

		stats, err := env.statsSvc.GetStats(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalAllocations)
		assert.True(t, stats.TotalAllocated.Equal(dec("700.00")), "total=%s", stats.TotalAllocated)
		assert.True(t, stats.AllocationPercentage.Equal(dec("70.00")), "pct=%s", stats.AllocationPercentage)
		assert.Equal(t, int64(1), stats.ConfirmedCount)
		assert.Equal(t, int64(1), stats.CancelledCount)
	})

	t.Run("均值保留两位小数", func(t *testing.T) {
		env := newTestEnv()
		env.addPayout(1, "1000.00", "USD")
		env.allocs.rows = append(env.allocs.rows,
			&model.Allocation{ID: 1, PayoutRequestID: 1, UserID: 5, AllocatedAmount: dec("100.00"), Currency: "USD", Status: model.AllocationStatusDraft},
			&model.Allocation{ID: 2, PayoutRequestID: 1, UserID: 6, AllocatedAmount: dec("100.00"), Currency: "USD", Status: model.AllocationStatusDraft},
			&model.Allocation{ID: 3, PayoutRequestID: 1, UserID: 7, AllocatedAmount: dec("100.00"), Currency: "USD", Status: model.AllocationStatusDraft},
		)

		stats, err := env.statsSvc.GetStats(ctx, 1)
		require.NoError(t, err)
		// 300 / 3 = 100，整除场景
		assert.True(t, stats.AvgAllocation.Equal(dec("100.00")), "avg=%s", stats.AvgAllocation)

		// 改成 100 / 3，四舍五入到 33.33
		env.allocs.rows = env.allocs.rows[:0]
		env.allocs.rows = append(env.allocs.rows,
			&model.Allocation{ID: 1, PayoutRequestID: 1, UserID: 5, AllocatedAmount: dec("33.00"), Currency: "USD", Status: model.AllocationStatusDraft},
			&model.Allocation{ID: 2, PayoutRequestID: 1, UserID: 6, AllocatedAmount: dec("33.00"), Currency: "USD", Status: model.AllocationStatusDraft},
			&model.Allocation{ID: 3, PayoutRequestID: 1, UserID: 7, AllocatedAmount: dec("34.00"), Currency: "USD", Status: model.AllocationStatusDraft},
		)
		stats, err = env.statsSvc.GetStats(ctx, 1)
		require.NoError(t, err)
		assert.True(t, stats.AvgAllocation.Equal(dec("33.33")), "avg=%s", stats.AvgAllocation)
	})

	t.Run("同一成员多条分配只算一个", func(t *testing.T) {
		env := newTestEnv()
		env.addPayout(1, "1000.00", "USD")
		env.allocs.rows = append(env.allocs.rows,
			&model.Allocation{ID: 1, PayoutRequestID: 1, UserID: 5, FlowID: int64Ptr(3), AllocatedAmount: dec("100.00"), Currency: "USD", Status: model.AllocationStatusDraft},
			&model.Allocation{ID: 2, PayoutRequestID: 1, UserID: 5, FlowID: int64Ptr(4), AllocatedAmount: dec("100.00"), Currency: "USD", Status: model.AllocationStatusDraft},
			&model.Allocation{ID: 3, PayoutRequestID: 1, UserID: 6, AllocatedAmount: dec("100.00"), Currency: "USD", Status: model.AllocationStatusDraft},
		)

		stats, err := env.statsSvc.GetStats(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalAllocations)
		assert.Equal(t, int64(2), stats.UniqueUsers)
	})

	t.Run("打款总额为零时占比为零", func(t *testing.T) {
		env := newTestEnv()
		env.addPayout(1, "0.00", "USD")
		env.allocs.rows = append(env.allocs.rows,
			&model.Allocation{ID: 1, PayoutRequestID: 1, UserID: 5, AllocatedAmount: dec("100.00"), Currency: "USD", Status: model.AllocationStatusDraft},
		)

		stats, err := env.statsSvc.GetStats(ctx, 1)
		require.NoError(t, err)
		assert.True(t, stats.AllocationPercentage.IsZero(), "pct=%s", stats.AllocationPercentage)
	})

	t.Run("打款请求不存在", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.statsSvc.GetStats(ctx, 404)
		assert.ErrorIs(t, err, repository.ErrPayoutRequestNotFound)
	})
}
