package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/config"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/repository"
	"github.com/wild-dmytro/wild-erp-server-sub000/pkg/idgen"

	"gorm.io/gorm"
)

// LifecycleService 分配状态流转
// 这里只负责 draft -> confirmed 的批量确认；confirmed -> paid 和取消
// 由外部结算流程走单条更新接口驱动
type LifecycleService struct {
	txm     TxManager
	allocs  AllocationStore
	payouts PayoutRequestStore
	outbox  OutboxStore
	topic   string
}

func NewLifecycleService(db *gorm.DB, cfg *config.Config) *LifecycleService {
	return &LifecycleService{
		txm:     repository.NewTxManager(db),
		allocs:  repository.NewAllocationRepository(db),
		payouts: repository.NewPayoutRequestRepository(db),
		outbox:  repository.NewOutboxRepository(db),
		topic:   cfg.Kafka.Topic.AllocationEvents,
	}
}

// ConfirmAll 将打款请求下全部 draft 分配一次性置为 confirmed，返回生效条数
// 单条条件 UPDATE 天然原子且幂等：重复调用返回 0，不碰已是
// confirmed / paid / cancelled 的行
func (s *LifecycleService) ConfirmAll(ctx context.Context, payoutRequestID, operatorID int64) (int64, error) {
	if payoutRequestID <= 0 || operatorID <= 0 {
		return 0, fmt.Errorf("%w: payout_request_id / operator_id 必须大于 0", ErrValidation)
	}
	if _, err := s.payouts.GetByID(ctx, payoutRequestID); err != nil {
		return 0, err
	}

	var confirmed int64
	err := s.txm.Transaction(ctx, func(tx *gorm.DB) error {
		n, err := s.allocs.ConfirmDrafts(ctx, tx, payoutRequestID, operatorID)
		if err != nil {
			return fmt.Errorf("确认草稿分配失败: %w", err)
		}
		confirmed = n
		if n == 0 {
			// 没有 draft 行，幂等空跑，不发事件
			return nil
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"payout_request_id": payoutRequestID,
			"confirmed_count":   n,
			"operator_id":       operatorID,
			"confirmed_at":      time.Now().Format(time.RFC3339),
		})
		msg := &model.OutboxMessage{
			EventNo:   idgen.GenerateEventNo(),
			EventType: model.EventTypeAllocationConfirmed,
			Topic:     s.topic,
			Payload:   string(payload),
			Status:    model.OutboxStatusPending,
		}
		if err := s.outbox.Create(ctx, tx, msg); err != nil {
			return fmt.Errorf("写入事件失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if confirmed > 0 {
		log.Printf("批量确认完成: payoutRequestID=%d, confirmed=%d", payoutRequestID, confirmed)
	}
	return confirmed, nil
}
