package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PayoutRequestStatusPending  = "pending"
	PayoutRequestStatusApproved = "approved"
	PayoutRequestStatusPaid     = "paid"
	PayoutRequestStatusRejected = "rejected"
)

// PayoutRequest 打款请求表
// 合作方在一个结算周期内应付的总额；分配引擎只读取 total_amount / currency / status，
// 请求本身的增删改由合作方结算模块负责
type PayoutRequest struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PartnerID   int64           `gorm:"index;not null" json:"partner_id"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_amount"` // 分配总额上限（守恒约束的锚点）
	Currency    string          `gorm:"type:varchar(8);not null" json:"currency"`
	Status      string          `gorm:"type:varchar(20);index;not null;default:pending" json:"status"`
	PeriodStart *time.Time      `json:"period_start"`
	PeriodEnd   *time.Time      `json:"period_end"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PayoutRequest) TableName() string {
	return "payout_request"
}
