// 文件: pkg/vault/fees.go
// 费用引擎
//
// 两类费用:
//   - 保证金费 (margin fee): 仓位费 + 资金费，按 USD 计，折成抵押币进 FeeReserves
//   - 换汇费 (swap/mint/burn fee): 直接从输出币数量里扣，进 FeeReserves
//
// 【动态费率】
// 开启 HasDynamicFees 后，换汇费率按"该笔操作是把池子推向还是推离
// 目标权重"浮动: 推向目标给折扣 (rebate)，推离目标加税 (tax)。
// 目标权重 = usdxSupply × weight / totalWeights。

package vault

import "math/big"

// getPositionFee 名义仓位变动的开平仓费 (USD)
func (v *Vault) getPositionFee(sizeDelta *big.Int) *big.Int {
	if !isPositive(sizeDelta) {
		return new(big.Int)
	}
	afterFee := applyBasisPoints(sizeDelta, BasisPointsDivisor-v.cfg.Fees.MarginFeeBasisPoints)
	return sub(sizeDelta, afterFee)
}

// collectMarginFees 收取保证金费: 仓位费 + 资金费
//
// 返回 USD 计的总费用，折成抵押币计入该币的 FeeReserves。
func (v *Vault) collectMarginFees(collateralToken string, sizeDelta, size, entryFundingRate *big.Int) (*big.Int, error) {
	feeUsd := v.getPositionFee(sizeDelta)
	fundingFee := v.getFundingFee(collateralToken, size, entryFundingRate)
	feeUsd = add(feeUsd, fundingFee)

	feeTokens, err := v.usdToTokenMin(collateralToken, feeUsd)
	if err != nil {
		return nil, err
	}
	pool := v.mustPool(collateralToken)
	pool.FeeReserves = add(pool.FeeReserves, feeTokens)
	return feeUsd, nil
}

// collectSwapFees 从币数量里扣换汇费，返回税后数量
func (v *Vault) collectSwapFees(token string, amount *big.Int, feeBasisPoints int64) *big.Int {
	afterFee := applyBasisPoints(amount, BasisPointsDivisor-feeBasisPoints)
	feeAmount := sub(amount, afterFee)
	pool := v.mustPool(token)
	pool.FeeReserves = add(pool.FeeReserves, feeAmount)
	return afterFee
}

// getTargetUSDXAmount 某币的目标 USDX 承载量 = 总发行量 × 权重占比
func (v *Vault) getTargetUSDXAmount(token string) *big.Int {
	if isZero(v.usdxSupply) || v.totalTokenWeights == 0 {
		return new(big.Int)
	}
	weight := v.tokens[token].Weight
	return mulDiv(v.usdxSupply, bigInt(weight), bigInt(v.totalTokenWeights))
}

// getFeeBasisPoints 动态费率
//
// usdxDelta 是本次操作引起的该币 USDXAmount 变化量，increment 表示方向。
//   - 操作让池子更接近目标权重: feeBps − taxBps × 原始偏差 / 目标 (有下限 0)
//   - 操作让池子偏离目标权重:   feeBps + taxBps × 平均偏差 / 目标
func (v *Vault) getFeeBasisPoints(token string, usdxDelta *big.Int, feeBasisPoints, taxBasisPoints int64, increment bool) int64 {
	if !v.cfg.Fees.HasDynamicFees {
		return feeBasisPoints
	}

	initialAmount := v.mustPool(token).USDXAmount
	nextAmount := add(initialAmount, usdxDelta)
	if !increment {
		if usdxDelta.Cmp(initialAmount) > 0 {
			nextAmount = new(big.Int)
		} else {
			nextAmount = sub(initialAmount, usdxDelta)
		}
	}

	target := v.getTargetUSDXAmount(token)
	if isZero(target) {
		return feeBasisPoints
	}

	initialDiff := absDiff(initialAmount, target)
	nextDiff := absDiff(nextAmount, target)

	// 推向目标: 给折扣
	if nextDiff.Cmp(initialDiff) < 0 {
		rebate := mulDiv(bigInt(taxBasisPoints), initialDiff, target).Int64()
		if rebate > feeBasisPoints {
			return 0
		}
		return feeBasisPoints - rebate
	}

	// 推离目标: 加税，按操作前后偏差的均值计，封顶在 target
	avgDiff := new(big.Int).Rsh(add(initialDiff, nextDiff), 1)
	if avgDiff.Cmp(target) > 0 {
		avgDiff = clone(target)
	}
	tax := mulDiv(bigInt(taxBasisPoints), avgDiff, target).Int64()
	return feeBasisPoints + tax
}

// getSwapFeeBasisPoints 换汇费率: 两腿各算一次取较大值
//
// 稳定币换稳定币走低档费率。
func (v *Vault) getSwapFeeBasisPoints(tokenIn, tokenOut string, usdxAmount *big.Int) int64 {
	isStableSwap := v.tokens[tokenIn].IsStable && v.tokens[tokenOut].IsStable
	baseBps := v.cfg.Fees.SwapFeeBasisPoints
	taxBps := v.cfg.Fees.TaxBasisPoints
	if isStableSwap {
		baseBps = v.cfg.Fees.StableSwapFeeBasisPoints
		taxBps = v.cfg.Fees.StableTaxBasisPoints
	}
	feesBasisPoints0 := v.getFeeBasisPoints(tokenIn, usdxAmount, baseBps, taxBps, true)
	feesBasisPoints1 := v.getFeeBasisPoints(tokenOut, usdxAmount, baseBps, taxBps, false)
	if feesBasisPoints0 > feesBasisPoints1 {
		return feesBasisPoints0
	}
	return feesBasisPoints1
}

// getBuyUSDXFeeBasisPoints 铸入 (注入流动性) 的费率
func (v *Vault) getBuyUSDXFeeBasisPoints(token string, usdxAmount *big.Int) int64 {
	return v.getFeeBasisPoints(token, usdxAmount, v.cfg.Fees.MintBurnFeeBasisPoints, v.cfg.Fees.TaxBasisPoints, true)
}

// getSellUSDXFeeBasisPoints 赎回 (撤出流动性) 的费率
func (v *Vault) getSellUSDXFeeBasisPoints(token string, usdxAmount *big.Int) int64 {
	return v.getFeeBasisPoints(token, usdxAmount, v.cfg.Fees.MintBurnFeeBasisPoints, v.cfg.Fees.TaxBasisPoints, false)
}
