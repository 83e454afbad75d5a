// 文件: pkg/vault/shorts.go
// 全局空头聚合与 AUM 估值
//
// 空头抵押不进池，池子对空头的敞口只能从聚合量反推:
// 按标的币维护 (总空头规模, 全局空头均价)，估值时用
// 规模 × |均价 − 现价| / 均价 还原所有空头的总浮盈浮亏。

package vault

import "math/big"

// updateGlobalShortAveragePrice 开空时推进全局空头均价
//
// 与单仓均价同一原理: 新均价保持聚合浮亏在现价下不变。
func (v *Vault) updateGlobalShortAveragePrice(indexToken string, nextPrice, sizeDelta *big.Int) error {
	size := v.globalShortSize(indexToken)
	if isZero(size) {
		v.globalShortAveragePrices[indexToken] = clone(nextPrice)
		return nil
	}

	avg := v.globalShortAveragePrices[indexToken]
	if !isPositive(avg) {
		return ErrInvalidAveragePrice
	}
	priceDelta := absDiff(avg, nextPrice)
	delta := mulDiv(size, priceDelta, avg)
	hasProfit := avg.Cmp(nextPrice) > 0

	nextSize := add(size, sizeDelta)
	var divisor *big.Int
	if hasProfit {
		divisor = sub(nextSize, delta)
	} else {
		divisor = add(nextSize, delta)
	}
	v.globalShortAveragePrices[indexToken] = mulDiv(nextPrice, nextSize, divisor)
	return nil
}

func (v *Vault) increaseGlobalShortSize(indexToken string, amount *big.Int) {
	v.globalShortSizes[indexToken] = add(v.globalShortSize(indexToken), amount)
}

func (v *Vault) decreaseGlobalShortSize(indexToken string, amount *big.Int) {
	size := v.globalShortSize(indexToken)
	if amount.Cmp(size) > 0 {
		// 历史均价漂移可能让聚合量略小于逐仓和，清零而不是下穿
		v.globalShortSizes[indexToken] = new(big.Int)
		return
	}
	v.globalShortSizes[indexToken] = sub(size, amount)
}

func (v *Vault) globalShortSize(indexToken string) *big.Int {
	if s, ok := v.globalShortSizes[indexToken]; ok && s != nil {
		return s
	}
	return new(big.Int)
}

// GlobalShortSize 某标的的全局空头规模 (USD)
func (v *Vault) GlobalShortSize(indexToken string) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.globalShortSize(indexToken))
}

// GlobalShortAveragePrice 某标的的全局空头均价
func (v *Vault) GlobalShortAveragePrice(indexToken string) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p, ok := v.globalShortAveragePrices[indexToken]; ok && p != nil {
		return clone(p)
	}
	return new(big.Int)
}

// GetGlobalShortDelta 全体空头的聚合盈亏
//
// 返回 (空头整体是否盈利, 盈亏绝对值 USD)。
func (v *Vault) GetGlobalShortDelta(indexToken string) (bool, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.getGlobalShortDelta(indexToken)
}

func (v *Vault) getGlobalShortDelta(indexToken string) (bool, *big.Int, error) {
	size := v.globalShortSize(indexToken)
	if isZero(size) {
		return false, new(big.Int), nil
	}
	avg := v.globalShortAveragePrices[indexToken]
	if !isPositive(avg) {
		return false, nil, ErrInvalidAveragePrice
	}
	price, err := v.oracle.GetPrice(indexToken, true)
	if err != nil {
		return false, nil, err
	}
	priceDelta := absDiff(avg, price)
	delta := mulDiv(size, priceDelta, avg)
	return avg.Cmp(price) > 0, delta, nil
}

// GetAUM 资金库管理资产总值 (USD, 30 位小数)
//
// 逐白名单币累加:
//   - 稳定币: poolAmount × 价格
//   - 风险币: guaranteedUsd + (poolAmount − reserved) × 价格
//     再计入空头聚合: 空头亏 → 池子赚，加进 AUM；空头赚则扣除。
//
// maximize 控制估值偏向 (申购用高估，赎回用低估)。
func (v *Vault) GetAUM(maximize bool) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	aum := new(big.Int)
	shortProfits := new(big.Int)

	for _, token := range v.whitelistOrder {
		cfg := v.tokens[token]
		pool := v.mustPool(token)
		price, err := v.oracle.GetPrice(token, maximize)
		if err != nil {
			return nil, err
		}
		decimals := pow10(cfg.Decimals)

		if cfg.IsStable {
			aum = add(aum, mulDiv(pool.PoolAmount, price, decimals))
			continue
		}

		size := v.globalShortSize(token)
		if isPositive(size) {
			avg := v.globalShortAveragePrices[token]
			if !isPositive(avg) {
				return nil, ErrInvalidAveragePrice
			}
			priceDelta := absDiff(avg, price)
			delta := mulDiv(size, priceDelta, avg)
			if price.Cmp(avg) > 0 {
				// 空头亏损是池子的资产
				aum = add(aum, delta)
			} else {
				shortProfits = add(shortProfits, delta)
			}
		}

		aum = add(aum, pool.GuaranteedUsd)
		available := sub(pool.PoolAmount, pool.ReservedAmounts)
		aum = add(aum, mulDiv(available, price, decimals))
	}

	if shortProfits.Cmp(aum) > 0 {
		return new(big.Int), nil
	}
	return sub(aum, shortProfits), nil
}

// GetUtilisation 某币的资金占用率 (FundingRatePrecision 精度)
func (v *Vault) GetUtilisation(token string) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	pool := v.mustPool(token)
	if isZero(pool.PoolAmount) {
		return new(big.Int)
	}
	return mulDiv(pool.ReservedAmounts, bigInt(FundingRatePrecision), pool.PoolAmount)
}
