// 文件: pkg/vault/risk_info.go
// 持仓风险快照 - 清算 keeper 的只读视图

package vault

import "math/big"

// RiskInfo 单个持仓在当前价格下的风险快照
type RiskInfo struct {
	Key        PositionKey
	Size       *big.Int // 名义仓位 (USD)
	Collateral *big.Int // 抵押 (USD)
	MarginFees *big.Int // 当下全平要付的保证金费 (USD)
	Delta      *big.Int // 未实现盈亏绝对值 (USD)
	HasProfit  bool
	State      int // LiquidationState*
}

// GetRiskInfo 计算持仓风险快照
func (v *Vault) GetRiskInfo(key PositionKey) (*RiskInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos := v.positions[key]
	if pos == nil || isZero(pos.Size) {
		return nil, ErrEmptyPosition
	}

	hasProfit, delta, err := v.getDelta(key.IndexToken, pos.Size, pos.AveragePrice, key.IsLong, pos.LastIncreasedTime)
	if err != nil {
		return nil, err
	}
	state, marginFees, err := v.validateLiquidation(key, pos, false)
	if err != nil {
		return nil, err
	}

	return &RiskInfo{
		Key:        key,
		Size:       clone(pos.Size),
		Collateral: clone(pos.Collateral),
		MarginFees: marginFees,
		Delta:      delta,
		HasProfit:  hasProfit,
		State:      state,
	}, nil
}

// LiquidationFeeUSD 当前清算费配置 (keeper 算风险率用)
func (v *Vault) LiquidationFeeUSD() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.cfg.Fees.LiquidationFeeUSD)
}
