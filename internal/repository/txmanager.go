package repository

import (
	"context"

	"gorm.io/gorm"
)

// TxManager 数据库事务执行器
// fn 返回 nil 提交，返回错误或 panic 回滚，连接在所有路径上归还连接池
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.db.WithContext(ctx).Transaction(fn)
}
