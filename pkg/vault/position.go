// 文件: pkg/vault/position.go
// 持仓数据结构
//
// 【关键概念区分】
// - Size: 名义敞口 (USD, 30位小数)，与抵押无关
// - Collateral: 净抵押价值 (USD, 30位小数)
// - ReserveAmount: 从池子里预留的原始代币数量，保证最坏情况下能足额赔付
//
// 【不变量】
// 持仓要么完全为空 (所有字段为 0)，要么完全有值:
// Size == 0 <=> Collateral == 0 <=> AveragePrice == 0 <=> ReserveAmount == 0
// 非空时必须有杠杆: Size >= Collateral

package vault

import (
	"fmt"
	"math/big"
)

// =============================================================================
// PositionKey - 持仓主键
// =============================================================================

// PositionKey 持仓由四元组唯一确定
type PositionKey struct {
	Account         string
	CollateralToken string
	IndexToken      string
	IsLong          bool
}

func (k PositionKey) String() string {
	side := "short"
	if k.IsLong {
		side = "long"
	}
	return fmt.Sprintf("%s:%s:%s:%s", k.Account, k.CollateralToken, k.IndexToken, side)
}

// =============================================================================
// Position - 持仓
// =============================================================================

// Position 某账户在 (抵押币, 标的币, 方向) 上的持仓
type Position struct {
	// ===== 规模 =====
	Size       *big.Int // 名义敞口 (USD)
	Collateral *big.Int // 净抵押 (USD)

	// ===== 开仓状态 =====
	AveragePrice     *big.Int // 加权平均开仓价，每次加仓重算
	EntryFundingRate *big.Int // 上次更新时的累计资金费率快照
	ReserveAmount    *big.Int // 预留的原始代币数量

	// ===== 已实现盈亏 (只做报表用) =====
	RealisedPnl       *big.Int
	HasRealisedProfit bool

	// LastIncreasedTime 最近一次加仓时间 (秒)
	// 用于最小盈利时间窗，防止同块开平套利
	LastIncreasedTime int64
}

// newPosition 空持仓
func newPosition() *Position {
	return &Position{
		Size:             new(big.Int),
		Collateral:       new(big.Int),
		AveragePrice:     new(big.Int),
		EntryFundingRate: new(big.Int),
		ReserveAmount:    new(big.Int),
		RealisedPnl:      new(big.Int),
	}
}

// IsEmpty 是否无持仓
func (p *Position) IsEmpty() bool {
	return isZero(p.Size)
}

// Leverage 当前杠杆 (万分比)，抵押为 0 返回 0
func (p *Position) Leverage() *big.Int {
	if isZero(p.Collateral) {
		return new(big.Int)
	}
	return mulDiv(p.Size, bigInt(BasisPointsDivisor), p.Collateral)
}

// Clone 深拷贝 (操作失败回滚用)
func (p *Position) Clone() *Position {
	return &Position{
		Size:              clone(p.Size),
		Collateral:        clone(p.Collateral),
		AveragePrice:      clone(p.AveragePrice),
		EntryFundingRate:  clone(p.EntryFundingRate),
		ReserveAmount:     clone(p.ReserveAmount),
		RealisedPnl:       clone(p.RealisedPnl),
		HasRealisedProfit: p.HasRealisedProfit,
		LastIncreasedTime: p.LastIncreasedTime,
	}
}

// validatePosition 持仓完整性校验
//
// Size == 0 时必须先取完抵押；非空时必须 Size >= Collateral
func validatePosition(size, collateral *big.Int) error {
	if isZero(size) {
		if !isZero(collateral) {
			return ErrCollateralNotWithdrawn
		}
		return nil
	}
	if size.Cmp(collateral) < 0 {
		return ErrSizeBelowCollateral
	}
	return nil
}
