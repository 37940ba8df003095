package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wild-dmytro/wild-erp-server-sub000/pkg/idgen"

	"github.com/go-redis/redis/v8"
)

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 基于 Redis 的互斥锁
//
// 加锁：SET key value NX EX timeout
//   - NX 保证互斥，EX 防止持有者崩溃后死锁
//   - value 记录持有者，释放时校验，避免误删他人锁
//
// 释放：Lua 脚本原子地"校验 value + 删除 key"
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，只删自己持有的 key
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// Manager 按打款请求维度派发互斥锁
//
// 同一打款请求的分配写入必须串行（守恒约束），不同打款请求互不影响，
// 所以锁粒度选在 payout_request_id 上。注意：跨实例互斥靠这把锁，
// 守恒的正确性最终靠事务内的 payout_request 行锁兜底
type Manager struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewManager(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *Manager {
	return &Manager{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

// WithPayoutLock 持有打款请求锁执行 fn，结束后释放
func (m *Manager) WithPayoutLock(ctx context.Context, payoutRequestID int64, fn func() error) error {
	key := fmt.Sprintf("alloc:lock:payout:%d", payoutRequestID)
	// value 用全局唯一 ID，便于追踪持有者
	token := strconv.FormatInt(idgen.NextID(), 10)

	l := NewDistributedLock(m.client, key, token, m.ttl)
	if err := l.Lock(ctx, m.retryInterval, m.maxRetries); err != nil {
		return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer l.Unlock(ctx)

	return fn()
}
