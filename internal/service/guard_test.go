package service

import (
	"context"
	"errors"
	"testing"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConservationGuard_CheckWithinBudget(t *testing.T) {
	ctx := context.Background()

	seed := func(amounts map[int64]string, cancelled map[int64]bool) *ConservationGuard {
		env := newTestEnv()
		env.addPayout(1, "1000.00", "USD")
		for id, amount := range amounts {
			status := model.AllocationStatusDraft
			if cancelled[id] {
				status = model.AllocationStatusCancelled
			}
			env.allocs.rows = append(env.allocs.rows, &model.Allocation{
				ID:              id,
				PayoutRequestID: 1,
				UserID:          id,
				AllocatedAmount: dec(amount),
				Currency:        "USD",
				Status:          status,
			})
		}
		return NewConservationGuard(env.payouts, env.allocs)
	}

	t.Run("空打款请求放行", func(t *testing.T) {
		guard := seed(nil, nil)
		payout, err := guard.CheckWithinBudget(ctx, nil, 1, dec("400.00"), 0)
		require.NoError(t, err)
		assert.Equal(t, "USD", payout.Currency)
	})

	t.Run("恰好等于预算放行", func(t *testing.T) {
		guard := seed(map[int64]string{10: "600.00"}, nil)
		_, err := guard.CheckWithinBudget(ctx, nil, 1, dec("400.00"), 0)
		assert.NoError(t, err)
	})

	t.Run("超出预算返回精确金额", func(t *testing.T) {
		guard := seed(map[int64]string{10: "400.00"}, nil)
		_, err := guard.CheckWithinBudget(ctx, nil, 1, dec("700.00"), 0)
		require.Error(t, err)

		var violation *ConservationViolationError
		require.True(t, errors.As(err, &violation))
		assert.Equal(t, int64(1), violation.PayoutRequestID)
		assert.True(t, violation.Total.Equal(dec("1000.00")), "total=%s", violation.Total)
		assert.True(t, violation.Proposed.Equal(dec("1100.00")), "proposed=%s", violation.Proposed)
		assert.True(t, violation.Overrun.Equal(dec("100.00")), "overrun=%s", violation.Overrun)
	})

	t.Run("cancelled 不占用预算", func(t *testing.T) {
		guard := seed(map[int64]string{10: "900.00"}, map[int64]bool{10: true})
		_, err := guard.CheckWithinBudget(ctx, nil, 1, dec("1000.00"), 0)
		assert.NoError(t, err)
	})

	t.Run("更新场景排除自身旧值", func(t *testing.T) {
		guard := seed(map[int64]string{10: "400.00", 11: "500.00"}, nil)
		// 把 id=10 的 400 换成 500：500 + 500 = 1000，边界放行
		_, err := guard.CheckWithinBudget(ctx, nil, 1, dec("500.00"), 10)
		assert.NoError(t, err)

		// 换成 500.01 则超出 0.01
		_, err = guard.CheckWithinBudget(ctx, nil, 1, dec("500.01"), 10)
		var violation *ConservationViolationError
		require.True(t, errors.As(err, &violation))
		assert.True(t, violation.Overrun.Equal(dec("0.01")), "overrun=%s", violation.Overrun)
	})

	t.Run("打款请求不存在", func(t *testing.T) {
		guard := seed(nil, nil)
		_, err := guard.CheckWithinBudget(ctx, nil, 999, dec("1.00"), 0)
		assert.ErrorIs(t, err, repository.ErrPayoutRequestNotFound)
	})
}
