package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

const (
	EventTypeAllocationBulkUpserted = "allocation.bulk_upserted"
	EventTypeAllocationConfirmed    = "allocation.confirmed"
)

// OutboxMessage 事务性发件箱
// 领域事件与业务变更写在同一个事务里，由后台任务异步投递到 Kafka，
// 保证事件不丢，也不会在事务回滚后误发
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventNo    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"event_no"` // 事件号，兼做 Kafka 消息 key
	EventType  string    `gorm:"type:varchar(64);not null" json:"event_type"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
