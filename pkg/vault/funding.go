// 文件: pkg/vault/funding.go
// 累计资金费率
//
// 【核心公式】
// 每个结算间隔: 费率增量 = factor × reservedAmounts / poolAmount
// 累计值只增不减，持仓记录自己上次更新时的累计值快照，
// 两者之差乘以名义仓位就是这段时间欠的资金费。
//
// 【为什么用累计快照而不是定时逐仓结算】
// 账本操作是单发原子的，没有后台调度器。把"时间"折进
// 累计费率里，任何操作路过时顺手推进一次即可，O(1) 每持仓。

package vault

import "math/big"

// updateCumulativeFundingRate 推进某抵押币的累计资金费率
//
// 每个账本操作 (加仓/减仓/换汇/清算) 的第一步调用。
// 只在整数个间隔过去后推进，不足一个间隔不计。
func (v *Vault) updateCumulativeFundingRate(collateralToken string) {
	now := v.now()
	last, ok := v.lastFundingTimes[collateralToken]
	if !ok || last == 0 {
		// 首次触达: 对齐到间隔边界
		v.lastFundingTimes[collateralToken] = now / v.cfg.FundingInterval * v.cfg.FundingInterval
		return
	}
	if last+v.cfg.FundingInterval > now {
		return
	}

	rate := v.nextFundingRate(collateralToken)
	cum := v.cumulativeFundingRates[collateralToken]
	if cum == nil {
		cum = new(big.Int)
	}
	v.cumulativeFundingRates[collateralToken] = add(cum, rate)
	v.lastFundingTimes[collateralToken] = now / v.cfg.FundingInterval * v.cfg.FundingInterval
}

// nextFundingRate 计算应累计的费率增量
//
// 增量 = factor × reserved / pool × 经过的间隔数
// 预留占比越高，持仓成本越高
func (v *Vault) nextFundingRate(collateralToken string) *big.Int {
	pool := v.mustPool(collateralToken)
	if isZero(pool.PoolAmount) {
		return new(big.Int)
	}

	last := v.lastFundingTimes[collateralToken]
	intervals := (v.now() - last) / v.cfg.FundingInterval
	if intervals <= 0 {
		return new(big.Int)
	}

	factor := v.cfg.FundingRateFactor
	if cfg := v.tokens[collateralToken]; cfg != nil && cfg.IsStable {
		factor = v.cfg.StableFundingRateFactor
	}

	n := mulDiv(bigInt(factor*intervals), pool.ReservedAmounts, pool.PoolAmount)
	return n
}

// getFundingFee 持仓自上次快照以来欠的资金费 (USD)
func (v *Vault) getFundingFee(collateralToken string, size, entryFundingRate *big.Int) *big.Int {
	if isZero(size) {
		return new(big.Int)
	}
	cum := v.cumulativeFundingRates[collateralToken]
	if cum == nil {
		return new(big.Int)
	}
	delta := sub(cum, entryFundingRate)
	if delta.Sign() <= 0 {
		return new(big.Int)
	}
	return mulDiv(size, delta, bigInt(FundingRatePrecision))
}
