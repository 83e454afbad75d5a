// 文件: pkg/keeper/model.go
// 清算 keeper - 风险等级定义
//
// keeper 根据持仓的风险率分级监控:
// - 安全区：不进任何索引
// - 预警区：定期检查，推送预警
// - 危险区：更频繁检查
// - 临界区：注册价格触发器，行情一动立即复核
// - 清算区：进清算队列，worker 执行

package keeper

import (
	"math/big"
	"time"

	"vaultx.com/pkg/vault"
)

// RiskLevel 风险等级枚举
type RiskLevel int

const (
	// RiskLevelSafe 安全区: 风险率 < 70%
	RiskLevelSafe RiskLevel = iota

	// RiskLevelWarning 预警区: 70% <= 风险率 < 80%，每 5 秒检查
	RiskLevelWarning

	// RiskLevelDanger 危险区: 80% <= 风险率 < 90%，每 2 秒检查
	RiskLevelDanger

	// RiskLevelCritical 临界区: 90% <= 风险率 < 100%，价格触发
	RiskLevelCritical

	// RiskLevelLiquidate 清算区: 风险率 >= 100%，立即执行
	RiskLevelLiquidate
)

// String 日志打印用
func (l RiskLevel) String() string {
	switch l {
	case RiskLevelSafe:
		return "SAFE"
	case RiskLevelWarning:
		return "WARNING"
	case RiskLevelDanger:
		return "DANGER"
	case RiskLevelCritical:
		return "CRITICAL"
	case RiskLevelLiquidate:
		return "LIQUIDATE"
	default:
		return "UNKNOWN"
	}
}

// 风险阈值
const (
	ThresholdWarning   = 0.70
	ThresholdDanger    = 0.80
	ThresholdCritical  = 0.90
	ThresholdLiquidate = 1.00
)

// PositionRiskData 持仓风险数据，存储在各级索引中
//
// 值类型而非指针，减少 GC 压力。
type PositionRiskData struct {
	// Key 持仓标识
	Key vault.PositionKey

	// RiskRatio 风险率 = (保证金费 + 清算费 + 浮亏) / 抵押
	RiskRatio float64

	// State 账本的三态判定结果
	State int

	// Level 当前风险等级
	Level RiskLevel

	// UpdatedAt 最后更新时间 (Unix 纳秒)
	UpdatedAt int64
}

// LiquidationTask 清算任务
type LiquidationTask struct {
	Key       vault.PositionKey
	RiskRatio float64
	State     int
	CreatedAt time.Time
}

// CalculateRiskLevel 根据风险率计算风险等级
func CalculateRiskLevel(riskRatio float64) RiskLevel {
	switch {
	case riskRatio >= ThresholdLiquidate:
		return RiskLevelLiquidate
	case riskRatio >= ThresholdCritical:
		return RiskLevelCritical
	case riskRatio >= ThresholdDanger:
		return RiskLevelDanger
	case riskRatio >= ThresholdWarning:
		return RiskLevelWarning
	default:
		return RiskLevelSafe
	}
}

// RiskRatio 从账本风险快照计算风险率
//
// 风险率 = (保证金费 + 清算费 + 浮亏) / 抵押。
// 账本已判定可清算的持仓直接置为 1.0 以上。
func RiskRatio(info *vault.RiskInfo, liquidationFeeUSD *big.Int) float64 {
	if info.State != 0 {
		return ThresholdLiquidate
	}
	if info.Collateral.Sign() <= 0 {
		return ThresholdLiquidate
	}

	needed := new(big.Int).Add(info.MarginFees, liquidationFeeUSD)
	if !info.HasProfit {
		needed.Add(needed, info.Delta)
	}

	ratio, _ := new(big.Float).Quo(
		new(big.Float).SetInt(needed),
		new(big.Float).SetInt(info.Collateral),
	).Float64()
	return ratio
}
