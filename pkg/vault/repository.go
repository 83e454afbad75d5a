// 文件: pkg/vault/repository.go
// 账本持久化接口
//
// 【设计模式】Repository Pattern
// - 账本只依赖接口，操作成功后写穿，失败不影响内存账本 (内存为准)
// - 接口不带 context: 写穿发生在账本锁内，实现自己管理超时
// - 装饰器模式: Redis 缓存层可以嵌套在 MySQL 实现外面

package vault

// PositionRepository 持仓存储接口
type PositionRepository interface {
	// Save 保存持仓 (upsert)
	Save(key PositionKey, pos *Position) error
	// Delete 删除持仓 (平仓/清算后)
	Delete(key PositionKey) error
	// LoadAll 启动时全量恢复
	LoadAll() (map[PositionKey]*Position, error)
}

// PoolRepository 池状态存储接口
type PoolRepository interface {
	// Save 保存池状态 (upsert)
	Save(pool *PoolState) error
	// LoadAll 启动时全量恢复
	LoadAll() ([]*PoolState, error)
}

// Rehydrate 从存储恢复账本状态 (服务重启时调用，须在接收操作前完成)
func (v *Vault) Rehydrate() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.positionRepo != nil {
		positions, err := v.positionRepo.LoadAll()
		if err != nil {
			return err
		}
		for key, pos := range positions {
			v.positions[key] = pos
		}
	}
	if v.poolRepo != nil {
		pools, err := v.poolRepo.LoadAll()
		if err != nil {
			return err
		}
		for _, pool := range pools {
			v.pools[pool.Token] = pool
		}
	}
	return nil
}

// =============================================================================
// 内存实现 (测试与单机部署用)
// =============================================================================

var _ PositionRepository = (*MemoryPositionRepository)(nil)

// MemoryPositionRepository 内存持仓存储
type MemoryPositionRepository struct {
	positions map[PositionKey]*Position
}

// NewMemoryPositionRepository 创建内存持仓存储
func NewMemoryPositionRepository() *MemoryPositionRepository {
	return &MemoryPositionRepository{positions: make(map[PositionKey]*Position)}
}

func (r *MemoryPositionRepository) Save(key PositionKey, pos *Position) error {
	r.positions[key] = pos.Clone()
	return nil
}

func (r *MemoryPositionRepository) Delete(key PositionKey) error {
	delete(r.positions, key)
	return nil
}

func (r *MemoryPositionRepository) LoadAll() (map[PositionKey]*Position, error) {
	out := make(map[PositionKey]*Position, len(r.positions))
	for key, pos := range r.positions {
		out[key] = pos.Clone()
	}
	return out, nil
}

var _ PoolRepository = (*MemoryPoolRepository)(nil)

// MemoryPoolRepository 内存池状态存储
type MemoryPoolRepository struct {
	pools map[string]*PoolState
}

// NewMemoryPoolRepository 创建内存池状态存储
func NewMemoryPoolRepository() *MemoryPoolRepository {
	return &MemoryPoolRepository{pools: make(map[string]*PoolState)}
}

func (r *MemoryPoolRepository) Save(pool *PoolState) error {
	r.pools[pool.Token] = pool.Clone()
	return nil
}

func (r *MemoryPoolRepository) LoadAll() ([]*PoolState, error) {
	out := make([]*PoolState, 0, len(r.pools))
	for _, pool := range r.pools {
		out = append(out, pool.Clone())
	}
	return out, nil
}
