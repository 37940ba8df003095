package model

import (
	"time"
)

// User 内部成员表（只读，展示用）
// 账号体系由主站维护，这里只查 username 等展示字段
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Role      string    `gorm:"type:varchar(32)" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "user"
}

// Flow 流量表（只读，展示用）
// 一条 flow 对应成员投放的一路流量
type Flow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Status    string    `gorm:"type:varchar(20);not null;default:active" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Flow) TableName() string {
	return "flow"
}
