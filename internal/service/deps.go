package service

import (
	"context"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 服务层依赖的存储与基础设施接口
// 生产环境由 repository / lock 包的 gorm、redis 实现提供；测试用内存假实现
// 写方法都带可选的 tx，nil 表示不在外层事务内

type TxManager interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type PayoutLocker interface {
	WithPayoutLock(ctx context.Context, payoutRequestID int64, fn func() error) error
}

type AllocationStore interface {
	List(ctx context.Context, tx *gorm.DB, payoutRequestID int64) ([]*model.Allocation, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Allocation, error)
	FindByKey(ctx context.Context, tx *gorm.DB, payoutRequestID, userID int64, flowID *int64) (*model.Allocation, error)
	SumActive(ctx context.Context, tx *gorm.DB, payoutRequestID, excludeID int64) (decimal.Decimal, error)
	Create(ctx context.Context, tx *gorm.DB, allocation *model.Allocation) error
	Save(ctx context.Context, tx *gorm.DB, allocation *model.Allocation) error
	Delete(ctx context.Context, tx *gorm.DB, id int64) (bool, error)
	ConfirmDrafts(ctx context.Context, tx *gorm.DB, payoutRequestID, actorID int64) (int64, error)
}

type PayoutRequestStore interface {
	GetByID(ctx context.Context, id int64) (*model.PayoutRequest, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.PayoutRequest, error)
}

type DirectoryStore interface {
	GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error)
	GetFlowsByIDs(ctx context.Context, ids []int64) (map[int64]*model.Flow, error)
}

type OutboxStore interface {
	Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error
}
