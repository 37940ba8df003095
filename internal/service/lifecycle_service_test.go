package service

import (
	"context"
	"testing"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmAll(t *testing.T) {
	ctx := context.Background()

	t.Run("批量确认并幂等重放", func(t *testing.T) {
		env := newTestEnv()
		env.addPayout(1, "1000.00", "USD")
		for _, userID := range []int64{5, 10, 11} {
			_, err := env.allocSvc.Create(ctx, &CreateAllocationRequest{
				PayoutRequestID: 1, UserID: userID, AllocatedAmount: dec("300.00"), OperatorID: 99,
			})
			require.NoError(t, err)
		}

		confirmed, err := env.lifecycleSvc.ConfirmAll(ctx, 1, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(3), confirmed)

		rows, err := env.allocs.List(ctx, nil, 1)
		require.NoError(t, err)
		for _, a := range rows {
			assert.Equal(t, model.AllocationStatusConfirmed, a.Status)
			assert.Equal(t, int64(100), a.UpdatedBy)
		}
		assert.Len(t, env.outbox.messages, 1)
		assert.Equal(t, model.EventTypeAllocationConfirmed, env.outbox.messages[0].EventType)

		// 重放：没有 draft 行了，返回 0 且不再发事件
		confirmed, err = env.lifecycleSvc.ConfirmAll(ctx, 1, 100)
		require.NoError(t, err)
		assert.Zero(t, confirmed)
		assert.Len(t, env.outbox.messages, 1)
	})

	t.Run("只确认 draft 行", func(t *testing.T) {
		env := newTestEnv()
		env.addPayout(1, "1000.00", "USD")
		env.allocs.rows = append(env.allocs.rows,
			&model.Allocation{ID: 1, PayoutRequestID: 1, UserID: 5, AllocatedAmount: dec("100.00"), Currency: "USD", Status: model.AllocationStatusDraft},
			&model.Allocation{ID: 2, PayoutRequestID: 1, UserID: 6, AllocatedAmount: dec("100.00"), Currency: "USD", Status: model.AllocationStatusPaid},
			&model.Allocation{ID: 3, PayoutRequestID: 1, UserID: 7, AllocatedAmount: dec("100.00"), Currency: "USD", Status: model.AllocationStatusCancelled},
		)
		env.allocs.nextID = 3

		confirmed, err := env.lifecycleSvc.ConfirmAll(ctx, 1, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1), confirmed)

		paid, err := env.allocs.GetByID(ctx, nil, 2)
		require.NoError(t, err)
		assert.Equal(t, model.AllocationStatusPaid, paid.Status)

		cancelled, err := env.allocs.GetByID(ctx, nil, 3)
		require.NoError(t, err)
		assert.Equal(t, model.AllocationStatusCancelled, cancelled.Status)
	})

	t.Run("打款请求不存在", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.lifecycleSvc.ConfirmAll(ctx, 404, 100)
		assert.ErrorIs(t, err, repository.ErrPayoutRequestNotFound)
	})

	t.Run("参数校验", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.lifecycleSvc.ConfirmAll(ctx, 0, 100)
		assert.ErrorIs(t, err, ErrValidation)
		_, err = env.lifecycleSvc.ConfirmAll(ctx, 1, 0)
		assert.ErrorIs(t, err, ErrValidation)
	})
}
