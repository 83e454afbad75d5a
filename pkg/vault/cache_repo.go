// 文件: pkg/vault/cache_repo.go
// 持仓 Redis 缓存层
//
// 【设计模式】装饰器模式 (Decorator Pattern)
// - 包装底层 PositionRepository，透明维护 Redis 里的持仓快照
// - 账本写穿时顺带刷新缓存，行情/风控等读侧服务直接查 Redis，
//   不打扰账本锁，也不压 MySQL
//
// 【缓存策略】
// - 写: 先写 DB，成功后覆盖缓存 (账本是唯一写入方，覆盖即一致)
// - 删: 先删 DB，成功后删缓存
// - 恢复: LoadAll 只走 DB (缓存可能不全，DB 为准)

package vault

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// 确保实现了接口
var _ PositionRepository = (*CachedPositionRepository)(nil)

const (
	// 单个持仓: vault:position:{account}:{collateralToken}:{indexToken}:{long|short}
	positionCacheKeyPrefix = "vault:position:"

	// 缓存过期时间 (兜底，正常由写穿保持新鲜)
	positionCacheTTL = 24 * time.Hour

	// Redis 操作超时
	cacheOpTimeout = 500 * time.Millisecond
)

// CachedPositionRepository Redis 缓存装饰器
//
// 用法:
//
//	mysqlRepo := NewMySQLPositionRepository(db)
//	cachedRepo := NewCachedPositionRepository(mysqlRepo, redisClient)
//	v.SetRepositories(cachedRepo, poolRepo)
type CachedPositionRepository struct {
	repo  PositionRepository // 被装饰的底层 Repository
	redis *redis.Client
}

// NewCachedPositionRepository 创建带缓存的持仓存储
func NewCachedPositionRepository(repo PositionRepository, rds *redis.Client) *CachedPositionRepository {
	return &CachedPositionRepository{
		repo:  repo,
		redis: rds,
	}
}

// Save 先写 DB，成功后覆盖缓存
func (r *CachedPositionRepository) Save(key PositionKey, pos *Position) error {
	if err := r.repo.Save(key, pos); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()

	data, err := json.Marshal(pos)
	if err != nil {
		return nil // 缓存失败不影响已落库的写入
	}
	r.redis.Set(ctx, positionCacheKeyPrefix+key.String(), data, positionCacheTTL)
	return nil
}

// Delete 先删 DB，成功后删缓存
func (r *CachedPositionRepository) Delete(key PositionKey) error {
	if err := r.repo.Delete(key); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	r.redis.Del(ctx, positionCacheKeyPrefix+key.String())
	return nil
}

// LoadAll 全量恢复只走 DB
func (r *CachedPositionRepository) LoadAll() (map[PositionKey]*Position, error) {
	return r.repo.LoadAll()
}

// GetCached 读侧直查缓存 (miss 返回 nil, nil)
//
// 供风控/行情等只读服务使用，不保证和账本内存绝对同步，
// 延迟在一次写穿以内。
func (r *CachedPositionRepository) GetCached(ctx context.Context, key PositionKey) (*Position, error) {
	data, err := r.redis.Get(ctx, positionCacheKeyPrefix+key.String()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pos Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}
