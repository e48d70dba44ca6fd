package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/redis"
	"orderflow/internal/service/order/domain"
)

const (
	casScriptName = "order_status_cas"
	// casMaxAttempts 是并发冲突时 Advance 的最大尝试次数
	casMaxAttempts = 8
	scanBatch      = 100
)

// casScript 仅当存储值与调用方读到的值完全一致时才写入新值
var casScript = `
-- KEYS[1]: 订单记录的 Key, 例如: order:3f6c...
-- ARGV[1]: 调用方读到的原始记录
-- ARGV[2]: 推进状态后的新记录
local current = redis.call('get', KEYS[1])
if not current then
    return 0 -- 记录不存在
end
if current ~= ARGV[1] then
    return -1 -- 期间被其他写者修改，调用方需要重新读取
end
redis.call('set', KEYS[1], ARGV[2], 'KEEPTTL')
return 1
`

// RedisOrderStore 是 domain.OrderStore 的 Redis 实现。
// 所有读写都发往主节点，因此同一调用方的先后读取不会看到状态回退。
type RedisOrderStore struct {
	client *redis.Client
	now    func() time.Time
}

var (
	_ domain.OrderStore   = (*RedisOrderStore)(nil)
	_ domain.OrderScanner = (*RedisOrderStore)(nil)
)

// NewRedisOrderStore 创建存储适配器，并在创建时加载 Lua 脚本
func NewRedisOrderStore(client *redis.Client) (*RedisOrderStore, error) {
	if err := client.LoadScriptFromContent(casScriptName, casScript); err != nil {
		return nil, errors.Wrap(err, "load order status script")
	}
	return &RedisOrderStore{client: client, now: time.Now}, nil
}

// Create 使用 SET NX 写入新记录，绝不覆盖已有订单
func (s *RedisOrderStore) Create(ctx context.Context, order *domain.Order) error {
	raw, err := encodeRecord(order)
	if err != nil {
		return err
	}
	ok, err := s.client.GetClient().SetNX(ctx, orderKey(order.ID), raw, 0).Result()
	if err != nil {
		return unavailable("create", err)
	}
	if !ok {
		return errors.Wrapf(domain.ErrAlreadyExists, "order %s", order.ID)
	}
	return nil
}

// Get 读取订单当前记录
func (s *RedisOrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.Wrap(domain.ErrNotFound, "empty order id")
	}
	raw, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeRecord(id, raw)
}

func (s *RedisOrderStore) get(ctx context.Context, id string) (string, error) {
	raw, err := s.client.GetClient().Get(ctx, orderKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", errors.Wrapf(domain.ErrNotFound, "order %s", id)
	}
	if err != nil {
		return "", unavailable("get", err)
	}
	return raw, nil
}

// Advance 读取记录、在 Go 中校验并计算新值，再用 Lua CAS 原子写回。
// 读到的值在写入前被其他写者修改时重新读取，因此并发重投也不会让状态回退。
func (s *RedisOrderStore) Advance(ctx context.Context, id string, to domain.Status) (*domain.Order, error) {
	if err := to.Validate(); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= casMaxAttempts; attempt++ {
		raw, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		order, err := decodeRecord(id, raw)
		if err != nil {
			return nil, err
		}
		if order.Status == to {
			return order, nil
		}
		if err := order.AdvanceTo(to, s.now()); err != nil {
			return order, err
		}

		next, err := encodeRecord(order)
		if err != nil {
			return nil, err
		}
		res, err := s.client.RunScript(ctx, casScriptName, []string{orderKey(id)}, raw, next)
		if err != nil {
			return nil, unavailable("advance", err)
		}
		code, ok := res.(int64)
		if !ok {
			return nil, errors.Errorf("unexpected result type from status script: %T", res)
		}
		switch code {
		case 1:
			return order, nil
		case 0:
			return nil, errors.Wrapf(domain.ErrNotFound, "order %s", id)
		case -1:
			logger.Ctx(ctx).Debug().Str("order_id", id).Int("attempt", attempt).Msg("Concurrent update detected, re-reading order")
			continue
		default:
			return nil, errors.Errorf("unknown result code from status script: %d", code)
		}
	}
	return nil, fmt.Errorf("%w: order %s: too much contention advancing to %s", domain.ErrUnavailable, id, to)
}

// Scan 用 SCAN MATCH order:* 遍历所有订单；集群模式下逐个主节点遍历
func (s *RedisOrderStore) Scan(ctx context.Context, fn func(*domain.Order) error) error {
	visit := func(ctx context.Context, c goredis.Cmdable) error {
		iter := c.Scan(ctx, 0, orderKeyPrefix+"*", scanBatch).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			id := strings.TrimPrefix(key, orderKeyPrefix)
			order, err := s.Get(ctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				continue // 遍历期间被外部策略删除
			}
			if err != nil {
				if errors.Is(err, domain.ErrUnavailable) {
					return err
				}
				logger.Ctx(ctx).Warn().Err(err).Str("order_id", id).Msg("Skipping unreadable order record")
				continue
			}
			if err := fn(order); err != nil {
				return err
			}
		}
		if err := iter.Err(); err != nil {
			return unavailable("scan", err)
		}
		return nil
	}

	if cluster, ok := s.client.GetClient().(*goredis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
			return visit(ctx, node)
		})
	}
	return visit(ctx, s.client.GetClient())
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %w", domain.ErrUnavailable, op, err)
}
