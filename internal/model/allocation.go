package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AllocationStatusDraft     = "draft"     // 草稿，可编辑
	AllocationStatusConfirmed = "confirmed" // 已确认，等待打款
	AllocationStatusPaid      = "paid"      // 已打款（由外部结算流程标记）
	AllocationStatusCancelled = "cancelled" // 已取消，不占用预算
)

var ValidAllocationTransitions = map[string][]string{
	AllocationStatusDraft:     {AllocationStatusConfirmed, AllocationStatusCancelled},
	AllocationStatusConfirmed: {AllocationStatusPaid, AllocationStatusCancelled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidAllocationTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsValidAllocationStatus(status string) bool {
	switch status {
	case AllocationStatusDraft, AllocationStatusConfirmed, AllocationStatusPaid, AllocationStatusCancelled:
		return true
	}
	return false
}

// Allocation 打款分配表
// 记录一笔打款请求的总额如何拆分给内部成员（可细化到某条流量 flow）
//
// 【重要】一致性约束：
// 1. 同一打款请求下，非 cancelled 分配金额之和不得超过打款总额
// 2. (payout_request_id, user_id, flow_id) 三元组唯一，flow_id 为 NULL 单独成键；
//    MySQL 唯一索引对 NULL 不去重，该约束在持有 payout_request 行锁的事务内校验
type Allocation struct {
	ID              int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	PayoutRequestID int64            `gorm:"index:idx_payout_user_flow,priority:1;not null" json:"payout_request_id"` // 所属打款请求
	UserID          int64            `gorm:"index:idx_payout_user_flow,priority:2;not null" json:"user_id"`           // 收款成员
	FlowID          *int64           `gorm:"index:idx_payout_user_flow,priority:3" json:"flow_id"`                    // 关联流量，NULL 表示按打款请求级别分配
	AllocatedAmount decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"allocated_amount"`                     // 分配金额，金额以此字段为准
	Percentage      *decimal.Decimal `gorm:"type:decimal(5,2)" json:"percentage"`                                     // 占比 0-100，仅展示用
	Currency        string           `gorm:"type:varchar(8);not null" json:"currency"`                                // 创建时从打款请求拷贝
	Status          string           `gorm:"type:varchar(20);index;not null;default:draft" json:"status"`
	Description     string           `gorm:"type:varchar(256)" json:"description"`
	Notes           string           `gorm:"type:text" json:"notes"`
	CreatedBy       int64            `gorm:"not null" json:"created_by"`
	UpdatedBy       int64            `json:"updated_by"`
	CreatedAt       time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Allocation) TableName() string {
	return "payout_allocation"
}

// SameKey 判断当前分配是否命中 (user_id, flow_id) 键，flow_id 为 NULL 单独成键
func (a *Allocation) SameKey(userID int64, flowID *int64) bool {
	if a.UserID != userID {
		return false
	}
	if a.FlowID == nil || flowID == nil {
		return a.FlowID == nil && flowID == nil
	}
	return *a.FlowID == *flowID
}

// IsActive 是否占用预算（cancelled 之外的状态都占用）
func (a *Allocation) IsActive() bool {
	return a.Status != AllocationStatusCancelled
}
