// 文件: pkg/keeper/index.go
// 风险等级索引
//
// 【Copy-on-Write Map】
// 检查器每秒读上千次，全量扫描每几秒才写一次，典型读多写少。
// 读路径完全无锁: 原子加载 map 指针直接读；写路径复制副本改完
// 原子替换，读者要么看到旧版本要么看到新版本，没有中间态。

package keeper

import (
	"sync"
	"sync/atomic"

	"vaultx.com/pkg/vault"
)

// CowMap Copy-on-Write Map，持仓键 -> 风险数据
type CowMap struct {
	data atomic.Pointer[map[vault.PositionKey]PositionRiskData]

	// writeMu 只保护写操作之间的互斥，不影响读
	writeMu sync.Mutex
}

// NewCowMap 创建 CowMap
func NewCowMap() *CowMap {
	m := &CowMap{}
	emptyMap := make(map[vault.PositionKey]PositionRiskData)
	m.data.Store(&emptyMap)
	return m
}

// Get 读取 (无锁)
func (m *CowMap) Get(key vault.PositionKey) (PositionRiskData, bool) {
	currentMap := m.data.Load()
	data, ok := (*currentMap)[key]
	return data, ok
}

// GetAll 全量读取 (无锁，调用时刻的快照)
func (m *CowMap) GetAll() []PositionRiskData {
	currentMap := m.data.Load()
	result := make([]PositionRiskData, 0, len(*currentMap))
	for _, v := range *currentMap {
		result = append(result, v)
	}
	return result
}

// Len 当前大小
func (m *CowMap) Len() int {
	return len(*m.data.Load())
}

// Contains 是否存在
func (m *CowMap) Contains(key vault.PositionKey) bool {
	_, ok := (*m.data.Load())[key]
	return ok
}

// BatchUpdate 批量更新: 复制副本、应用增删、原子替换
func (m *CowMap) BatchUpdate(updates []PositionRiskData, removes []vault.PositionKey) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	oldMap := m.data.Load()
	newMap := make(map[vault.PositionKey]PositionRiskData, len(*oldMap)+len(updates))
	for k, v := range *oldMap {
		newMap[k] = v
	}
	for _, key := range removes {
		delete(newMap, key)
	}
	for _, data := range updates {
		newMap[data.Key] = data
	}
	m.data.Store(&newMap)
}

// Set 单条更新 (频繁调用会产生大量复制，批量场景用 BatchUpdate)
func (m *CowMap) Set(data PositionRiskData) {
	m.BatchUpdate([]PositionRiskData{data}, nil)
}

// Remove 单条删除
func (m *CowMap) Remove(key vault.PositionKey) {
	m.BatchUpdate(nil, []vault.PositionKey{key})
}

// =============================================================================
// RiskLevelIndex - 风险等级索引
// =============================================================================

// RiskLevelIndex 按等级组织的持仓风险索引
//
// 只存 Warning/Danger/Critical 三级:
// - Safe 太多，不需要盯
// - Liquidate 直接进清算队列，不落索引
type RiskLevelIndex struct {
	levels [3]*CowMap

	// tokenToKeys: 标的币 -> 持仓键列表
	// 行情变化时只复核持有该标的的高风险持仓
	tokenToKeys atomic.Pointer[map[string][]vault.PositionKey]

	// keyLevelIndex: 持仓键 -> 等级，O(1) 定位
	keyLevelIndex atomic.Pointer[map[vault.PositionKey]RiskLevel]

	indexMu sync.Mutex
}

// NewRiskLevelIndex 创建索引
func NewRiskLevelIndex() *RiskLevelIndex {
	idx := &RiskLevelIndex{
		levels: [3]*CowMap{
			NewCowMap(), // Warning
			NewCowMap(), // Danger
			NewCowMap(), // Critical
		},
	}
	emptyTokenMap := make(map[string][]vault.PositionKey)
	idx.tokenToKeys.Store(&emptyTokenMap)
	emptyLevelMap := make(map[vault.PositionKey]RiskLevel)
	idx.keyLevelIndex.Store(&emptyLevelMap)
	return idx
}

func levelToIndex(level RiskLevel) int {
	switch level {
	case RiskLevelWarning:
		return 0
	case RiskLevelDanger:
		return 1
	case RiskLevelCritical:
		return 2
	default:
		return -1 // Safe 或 Liquidate 不存储
	}
}

// GetByLevel 某等级的全部持仓
func (idx *RiskLevelIndex) GetByLevel(level RiskLevel) []PositionRiskData {
	i := levelToIndex(level)
	if i < 0 {
		return nil
	}
	return idx.levels[i].GetAll()
}

// GetPosition 按键查找 (任意等级)
func (idx *RiskLevelIndex) GetPosition(key vault.PositionKey) (PositionRiskData, bool) {
	levelMap := idx.keyLevelIndex.Load()
	level, ok := (*levelMap)[key]
	if !ok {
		return PositionRiskData{}, false
	}
	i := levelToIndex(level)
	if i < 0 {
		return PositionRiskData{}, false
	}
	return idx.levels[i].Get(key)
}

// UpdatePosition 单条更新，自动处理等级迁移
func (idx *RiskLevelIndex) UpdatePosition(data PositionRiskData) {
	newLevel := CalculateRiskLevel(data.RiskRatio)
	newIndex := levelToIndex(newLevel)

	for i, level := range idx.levels {
		if level.Contains(data.Key) && i != newIndex {
			level.Remove(data.Key)
		}
	}

	idx.updateKeyLevelIndex(data.Key, newLevel)
	if newIndex >= 0 {
		data.Level = newLevel
		idx.levels[newIndex].Set(data)
	}
}

func (idx *RiskLevelIndex) updateKeyLevelIndex(key vault.PositionKey, level RiskLevel) {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	oldMap := idx.keyLevelIndex.Load()
	newMap := make(map[vault.PositionKey]RiskLevel, len(*oldMap)+1)
	for k, v := range *oldMap {
		newMap[k] = v
	}
	if level == RiskLevelSafe || level == RiskLevelLiquidate {
		delete(newMap, key)
	} else {
		newMap[key] = level
	}
	idx.keyLevelIndex.Store(&newMap)
}

// BatchUpdateLevel 整级替换 (全量扫描后用)
func (idx *RiskLevelIndex) BatchUpdateLevel(level RiskLevel, positions []PositionRiskData) {
	i := levelToIndex(level)
	if i < 0 {
		return
	}

	current := idx.levels[i].GetAll()
	newSet := make(map[vault.PositionKey]struct{}, len(positions))
	for _, p := range positions {
		newSet[p.Key] = struct{}{}
	}
	var removes []vault.PositionKey
	for _, p := range current {
		if _, exists := newSet[p.Key]; !exists {
			removes = append(removes, p.Key)
		}
	}
	idx.levels[i].BatchUpdate(positions, removes)
}

// GetKeysByToken 持有某标的的高风险持仓键
func (idx *RiskLevelIndex) GetKeysByToken(indexToken string) []vault.PositionKey {
	tokenMap := idx.tokenToKeys.Load()
	return (*tokenMap)[indexToken]
}

// RebuildTokenIndex 重建标的索引 (全量扫描后调用)
func (idx *RiskLevelIndex) RebuildTokenIndex(all []PositionRiskData) {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	newMap := make(map[string][]vault.PositionKey)
	newLevelMap := make(map[vault.PositionKey]RiskLevel, len(all))
	for _, p := range all {
		newMap[p.Key.IndexToken] = append(newMap[p.Key.IndexToken], p.Key)
		newLevelMap[p.Key] = p.Level
	}
	idx.tokenToKeys.Store(&newMap)
	idx.keyLevelIndex.Store(&newLevelMap)
}

// TotalCount 索引里的持仓总数
func (idx *RiskLevelIndex) TotalCount() int {
	total := 0
	for _, level := range idx.levels {
		total += level.Len()
	}
	return total
}
