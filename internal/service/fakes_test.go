package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wild-dmytro/wild-erp-server-sub000/internal/model"
	"github.com/wild-dmytro/wild-erp-server-sub000/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 内存假实现，覆盖 deps.go 的全部接口
// fakeTxManager 用互斥锁串行执行事务体，模拟 payout_request 行锁在
// MySQL 里提供的串行化效果，让并发用例可以在进程内跑

type fakeTxManager struct {
	mu sync.Mutex
}

func (m *fakeTxManager) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(nil)
}

type fakeLocker struct{}

func (l *fakeLocker) WithPayoutLock(ctx context.Context, payoutRequestID int64, fn func() error) error {
	return fn()
}

type fakeAllocationStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []*model.Allocation
}

func (s *fakeAllocationStore) clone(a *model.Allocation) *model.Allocation {
	c := *a
	return &c
}

func (s *fakeAllocationStore) List(ctx context.Context, tx *gorm.DB, payoutRequestID int64) ([]*model.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*model.Allocation
	for _, a := range s.rows {
		if a.PayoutRequestID == payoutRequestID {
			result = append(result, s.clone(a))
		}
	}
	// 新建在前
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (s *fakeAllocationStore) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.ID == id {
			return s.clone(a), nil
		}
	}
	return nil, repository.ErrAllocationNotFound
}

func (s *fakeAllocationStore) FindByKey(ctx context.Context, tx *gorm.DB, payoutRequestID, userID int64, flowID *int64) (*model.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.PayoutRequestID == payoutRequestID && a.SameKey(userID, flowID) {
			return s.clone(a), nil
		}
	}
	return nil, nil
}

func (s *fakeAllocationStore) SumActive(ctx context.Context, tx *gorm.DB, payoutRequestID, excludeID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, a := range s.rows {
		if a.PayoutRequestID != payoutRequestID || a.ID == excludeID || !a.IsActive() {
			continue
		}
		total = total.Add(a.AllocatedAmount)
	}
	return total, nil
}

func (s *fakeAllocationStore) Create(ctx context.Context, tx *gorm.DB, allocation *model.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	allocation.ID = s.nextID
	now := time.Now()
	allocation.CreatedAt = now
	allocation.UpdatedAt = now
	s.rows = append(s.rows, s.clone(allocation))
	return nil
}

func (s *fakeAllocationStore) Save(ctx context.Context, tx *gorm.DB, allocation *model.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	allocation.UpdatedAt = time.Now()
	for i, a := range s.rows {
		if a.ID == allocation.ID {
			s.rows[i] = s.clone(allocation)
			return nil
		}
	}
	s.rows = append(s.rows, s.clone(allocation))
	return nil
}

func (s *fakeAllocationStore) Delete(ctx context.Context, tx *gorm.DB, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.rows {
		if a.ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeAllocationStore) ConfirmDrafts(ctx context.Context, tx *gorm.DB, payoutRequestID, actorID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, a := range s.rows {
		if a.PayoutRequestID == payoutRequestID && a.Status == model.AllocationStatusDraft {
			a.Status = model.AllocationStatusConfirmed
			a.UpdatedBy = actorID
			count++
		}
	}
	return count, nil
}

type fakePayoutStore struct {
	mu      sync.Mutex
	payouts map[int64]*model.PayoutRequest
}

func (s *fakePayoutStore) GetByID(ctx context.Context, id int64) (*model.PayoutRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[id]
	if !ok {
		return nil, repository.ErrPayoutRequestNotFound
	}
	c := *p
	return &c, nil
}

func (s *fakePayoutStore) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.PayoutRequest, error) {
	// 行锁语义由 fakeTxManager 的互斥锁代劳
	return s.GetByID(ctx, id)
}

type fakeDirectoryStore struct {
	users map[int64]*model.User
	flows map[int64]*model.Flow
}

func (s *fakeDirectoryStore) GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error) {
	result := make(map[int64]*model.User)
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			result[id] = u
		}
	}
	return result, nil
}

func (s *fakeDirectoryStore) GetFlowsByIDs(ctx context.Context, ids []int64) (map[int64]*model.Flow, error) {
	result := make(map[int64]*model.Flow)
	for _, id := range ids {
		if f, ok := s.flows[id]; ok {
			result[id] = f
		}
	}
	return result, nil
}

type fakeOutboxStore struct {
	mu       sync.Mutex
	messages []*model.OutboxMessage
}

func (s *fakeOutboxStore) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// testEnv 一套装配好的服务与假存储
type testEnv struct {
	allocs  *fakeAllocationStore
	payouts *fakePayoutStore
	dir     *fakeDirectoryStore
	outbox  *fakeOutboxStore

	allocSvc     *AllocationService
	reconcileSvc *ReconcileService
	lifecycleSvc *LifecycleService
	statsSvc     *StatsService
}

func newTestEnv() *testEnv {
	allocs := &fakeAllocationStore{}
	payouts := &fakePayoutStore{payouts: make(map[int64]*model.PayoutRequest)}
	dir := &fakeDirectoryStore{
		users: make(map[int64]*model.User),
		flows: make(map[int64]*model.Flow),
	}
	outbox := &fakeOutboxStore{}
	txm := &fakeTxManager{}
	locker := &fakeLocker{}
	guard := NewConservationGuard(payouts, allocs)

	return &testEnv{
		allocs:  allocs,
		payouts: payouts,
		dir:     dir,
		outbox:  outbox,
		allocSvc: &AllocationService{
			txm:     txm,
			locker:  locker,
			allocs:  allocs,
			payouts: payouts,
			dir:     dir,
			guard:   guard,
		},
		reconcileSvc: &ReconcileService{
			txm:     txm,
			locker:  locker,
			allocs:  allocs,
			payouts: payouts,
			outbox:  outbox,
			topic:   "erp.allocation.events",
		},
		lifecycleSvc: &LifecycleService{
			txm:     txm,
			allocs:  allocs,
			payouts: payouts,
			outbox:  outbox,
			topic:   "erp.allocation.events",
		},
		statsSvc: &StatsService{
			allocs:  allocs,
			payouts: payouts,
		},
	}
}

func (e *testEnv) addPayout(id int64, total, currency string) {
	e.payouts.payouts[id] = &model.PayoutRequest{
		ID:          id,
		PartnerID:   1,
		TotalAmount: dec(total),
		Currency:    currency,
		Status:      model.PayoutRequestStatusApproved,
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func int64Ptr(v int64) *int64 {
	return &v
}
