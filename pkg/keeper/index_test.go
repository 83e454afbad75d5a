// 文件: pkg/keeper/index_test.go
package keeper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultx.com/pkg/vault"
)

func posKey(account, indexToken string) vault.PositionKey {
	return vault.PositionKey{
		Account:         account,
		CollateralToken: indexToken,
		IndexToken:      indexToken,
		IsLong:          true,
	}
}

func riskData(account, indexToken string, ratio float64) PositionRiskData {
	return PositionRiskData{
		Key:       posKey(account, indexToken),
		RiskRatio: ratio,
		Level:     CalculateRiskLevel(ratio),
	}
}

func TestCowMapBasics(t *testing.T) {
	m := NewCowMap()
	assert.Equal(t, 0, m.Len())

	data := riskData("alice", "BTC", 0.75)
	m.Set(data)
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Contains(data.Key))

	got, ok := m.Get(data.Key)
	require.True(t, ok)
	assert.Equal(t, 0.75, got.RiskRatio)

	m.Remove(data.Key)
	assert.Equal(t, 0, m.Len())
	_, ok = m.Get(data.Key)
	assert.False(t, ok)
}

func TestCowMapSnapshotIsolation(t *testing.T) {
	m := NewCowMap()
	m.Set(riskData("alice", "BTC", 0.75))
	m.Set(riskData("bob", "BTC", 0.85))

	snap := m.GetAll()
	require.Len(t, snap, 2)

	// 快照之后的写不影响已取出的切片
	m.Remove(posKey("alice", "BTC"))
	assert.Len(t, snap, 2)
	assert.Equal(t, 1, m.Len())
}

func TestCowMapBatchUpdate(t *testing.T) {
	m := NewCowMap()
	m.Set(riskData("alice", "BTC", 0.75))
	m.Set(riskData("bob", "BTC", 0.85))

	m.BatchUpdate(
		[]PositionRiskData{riskData("carol", "ETH", 0.72)},
		[]vault.PositionKey{posKey("alice", "BTC")},
	)

	assert.Equal(t, 2, m.Len())
	assert.False(t, m.Contains(posKey("alice", "BTC")))
	assert.True(t, m.Contains(posKey("bob", "BTC")))
	assert.True(t, m.Contains(posKey("carol", "ETH")))
}

func TestIndexLevelMigration(t *testing.T) {
	idx := NewRiskLevelIndex()

	// 预警区入索引
	idx.UpdatePosition(riskData("alice", "BTC", 0.75))
	assert.Len(t, idx.GetByLevel(RiskLevelWarning), 1)
	assert.Equal(t, 1, idx.TotalCount())

	got, ok := idx.GetPosition(posKey("alice", "BTC"))
	require.True(t, ok)
	assert.Equal(t, RiskLevelWarning, got.Level)

	// 恶化到危险区: 旧级移除，新级写入
	idx.UpdatePosition(riskData("alice", "BTC", 0.85))
	assert.Empty(t, idx.GetByLevel(RiskLevelWarning))
	assert.Len(t, idx.GetByLevel(RiskLevelDanger), 1)
	assert.Equal(t, 1, idx.TotalCount())

	// 进临界区
	idx.UpdatePosition(riskData("alice", "BTC", 0.95))
	assert.Len(t, idx.GetByLevel(RiskLevelCritical), 1)

	// 回到安全区: 全部移除
	idx.UpdatePosition(riskData("alice", "BTC", 0.1))
	assert.Equal(t, 0, idx.TotalCount())
	_, ok = idx.GetPosition(posKey("alice", "BTC"))
	assert.False(t, ok)
}

func TestIndexLiquidateLevelNotStored(t *testing.T) {
	idx := NewRiskLevelIndex()
	idx.UpdatePosition(riskData("alice", "BTC", 0.95))
	require.Equal(t, 1, idx.TotalCount())

	// 清算区不落索引 (任务走清算队列)
	idx.UpdatePosition(riskData("alice", "BTC", 1.2))
	assert.Equal(t, 0, idx.TotalCount())
	_, ok := idx.GetPosition(posKey("alice", "BTC"))
	assert.False(t, ok)
}

func TestIndexBatchUpdateLevel(t *testing.T) {
	idx := NewRiskLevelIndex()
	idx.UpdatePosition(riskData("alice", "BTC", 0.75))
	idx.UpdatePosition(riskData("bob", "BTC", 0.75))

	// 整级替换: bob 不在新列表里，被清掉
	idx.BatchUpdateLevel(RiskLevelWarning, []PositionRiskData{
		riskData("alice", "BTC", 0.76),
		riskData("carol", "ETH", 0.72),
	})

	warning := idx.GetByLevel(RiskLevelWarning)
	assert.Len(t, warning, 2)
	assert.True(t, idx.levels[0].Contains(posKey("alice", "BTC")))
	assert.False(t, idx.levels[0].Contains(posKey("bob", "BTC")))
}

func TestIndexTokenLookup(t *testing.T) {
	idx := NewRiskLevelIndex()

	all := []PositionRiskData{
		riskData("alice", "BTC", 0.95),
		riskData("bob", "BTC", 0.75),
		riskData("carol", "ETH", 0.85),
	}
	for _, d := range all {
		idx.UpdatePosition(d)
	}
	idx.RebuildTokenIndex(all)

	btcKeys := idx.GetKeysByToken("BTC")
	assert.Len(t, btcKeys, 2)
	assert.Len(t, idx.GetKeysByToken("ETH"), 1)
	assert.Empty(t, idx.GetKeysByToken("SOL"))

	// 重建后 GetPosition 仍可按键定位
	got, ok := idx.GetPosition(posKey("carol", "ETH"))
	require.True(t, ok)
	assert.Equal(t, RiskLevelDanger, got.Level)
}
