// 文件: pkg/vault/liquidate.go
// 清算引擎
//
// 三态判定 (ValidateLiquidation):
//   0 = 健康
//   1 = 资不抵债 (亏损/费用/清算费吃穿抵押) —— 没收抵押，全额清算
//   2 = 仅超杠杆 —— 仓位本身还有价值，走一次正常全平，结余退给持仓人
//
// 状态 1 的清算: 亏损归池 (空头部分)，保证金费照收，固定清算费
// 付给触发清算的 keeper，剩余抵押没收进池。

package vault

import "math/big"

// 清算判定结果
const (
	LiquidationStateHealthy      = 0
	LiquidationStateInsolvent    = 1
	LiquidationStateOverLeverage = 2
)

// LiquidatePositionRequest 清算请求
type LiquidatePositionRequest struct {
	Liquidator      string // 触发方，私有清算模式下须在白名单内
	Account         string
	CollateralToken string
	IndexToken      string
	IsLong          bool
	FeeReceiver     string // 清算费打给谁
	GasPrice        int64
}

// ValidateLiquidation 只读判定，供清算 keeper 扫描用
func (v *Vault) ValidateLiquidation(key PositionKey) (int, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos := v.positions[key]
	if pos == nil || isZero(pos.Size) {
		return 0, nil, ErrEmptyPosition
	}
	return v.validateLiquidation(key, pos, false)
}

// validateLiquidation 三态判定，raise=true 时不健康直接报错
func (v *Vault) validateLiquidation(key PositionKey, pos *Position, raise bool) (int, *big.Int, error) {
	hasProfit, delta, err := v.getDelta(key.IndexToken, pos.Size, pos.AveragePrice, key.IsLong, pos.LastIncreasedTime)
	if err != nil {
		return 0, nil, err
	}
	marginFees := v.getFundingFee(key.CollateralToken, pos.Size, pos.EntryFundingRate)
	marginFees = add(marginFees, v.getPositionFee(pos.Size))

	if !hasProfit && pos.Collateral.Cmp(delta) < 0 {
		if raise {
			return 0, nil, ErrLossesExceedCollateral
		}
		return LiquidationStateInsolvent, marginFees, nil
	}

	remaining := clone(pos.Collateral)
	if !hasProfit {
		remaining = sub(remaining, delta)
	}

	if remaining.Cmp(marginFees) < 0 {
		if raise {
			return 0, nil, ErrFeesExceedCollateral
		}
		return LiquidationStateInsolvent, marginFees, nil
	}
	if remaining.Cmp(add(marginFees, v.cfg.Fees.LiquidationFeeUSD)) < 0 {
		if raise {
			return 0, nil, ErrLiquidationFeesExceedCollateral
		}
		return LiquidationStateInsolvent, marginFees, nil
	}

	// remaining × maxLeverage < size × 10000 即超杠杆
	lhs := new(big.Int).Mul(remaining, bigInt(v.cfg.MaxLeverage))
	rhs := new(big.Int).Mul(pos.Size, bigInt(BasisPointsDivisor))
	if lhs.Cmp(rhs) < 0 {
		if raise {
			return 0, nil, ErrMaxLeverageExceeded
		}
		return LiquidationStateOverLeverage, marginFees, nil
	}

	return LiquidationStateHealthy, marginFees, nil
}

// LiquidatePosition 清算
func (v *Vault) LiquidatePosition(req *LiquidatePositionRequest) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.validateGasPrice(req.GasPrice); err != nil {
		return err
	}
	if v.cfg.InPrivateLiquidationMode && !v.liquidators[req.Liquidator] {
		return ErrInvalidLiquidator
	}

	key := PositionKey{
		Account:         req.Account,
		CollateralToken: req.CollateralToken,
		IndexToken:      req.IndexToken,
		IsLong:          req.IsLong,
	}
	snap := v.snapshot([]string{req.CollateralToken, req.IndexToken}, []PositionKey{key}, nil)

	v.updateCumulativeFundingRate(req.CollateralToken)

	pos := v.positions[key]
	if pos == nil || isZero(pos.Size) {
		v.restore(snap)
		return ErrEmptyPosition
	}

	state, marginFees, err := v.validateLiquidation(key, pos, false)
	if err != nil {
		v.restore(snap)
		return err
	}
	if state == LiquidationStateHealthy {
		v.restore(snap)
		return ErrPositionHealthy
	}
	if state == LiquidationStateOverLeverage {
		// 超杠杆但未穿仓: 按正常全平处理，结余退回持仓人
		_, err := v.decreasePosition(&DecreasePositionRequest{
			Sender:          req.Account,
			Account:         req.Account,
			CollateralToken: req.CollateralToken,
			IndexToken:      req.IndexToken,
			CollateralDelta: new(big.Int),
			SizeDelta:       clone(pos.Size),
			IsLong:          req.IsLong,
			Receiver:        req.Account,
		})
		return err
	}

	// 穿仓清算: 保证金费照收
	feeTokens, err := v.usdToTokenMin(req.CollateralToken, marginFees)
	if err != nil {
		v.restore(snap)
		return err
	}
	pool := v.mustPool(req.CollateralToken)
	pool.FeeReserves = add(pool.FeeReserves, feeTokens)

	if err := v.decreaseReservedAmount(req.CollateralToken, pos.ReserveAmount); err != nil {
		v.restore(snap)
		return err
	}

	if req.IsLong {
		v.decreaseGuaranteedUsd(req.CollateralToken, sub(pos.Size, pos.Collateral))
		if err := v.decreasePoolAmount(req.CollateralToken, feeTokens); err != nil {
			v.restore(snap)
			return err
		}
	}

	markPrice, err := v.oracle.GetPrice(req.IndexToken, !req.IsLong)
	if err != nil {
		v.restore(snap)
		return err
	}

	if !req.IsLong && marginFees.Cmp(pos.Collateral) < 0 {
		// 空头扣完费后剩下的抵押没收进池
		remainingCollateral := sub(pos.Collateral, marginFees)
		tokens, err := v.usdToTokenMin(req.CollateralToken, remainingCollateral)
		if err != nil {
			v.restore(snap)
			return err
		}
		if err := v.increasePoolAmount(req.CollateralToken, tokens); err != nil {
			v.restore(snap)
			return err
		}
	}
	if !req.IsLong {
		v.decreaseGlobalShortSize(req.IndexToken, pos.Size)
	}

	event := &LiquidatePositionEvent{
		Account:         req.Account,
		CollateralToken: req.CollateralToken,
		IndexToken:      req.IndexToken,
		IsLong:          req.IsLong,
		Size:            clone(pos.Size),
		Collateral:      clone(pos.Collateral),
		ReserveAmount:   clone(pos.ReserveAmount),
		RealisedPnl:     clone(pos.RealisedPnl),
		MarkPrice:       clone(markPrice),
		Liquidator:      req.Liquidator,
	}
	delete(v.positions, key)

	// 清算费从池里出，付给触发方
	liqFeeTokens, err := v.usdToTokenMin(req.CollateralToken, v.cfg.Fees.LiquidationFeeUSD)
	if err != nil {
		v.restore(snap)
		return err
	}
	if err := v.decreasePoolAmount(req.CollateralToken, liqFeeTokens); err != nil {
		v.restore(snap)
		return err
	}
	if err := v.transferOut(req.CollateralToken, req.FeeReceiver, liqFeeTokens); err != nil {
		v.restore(snap)
		return err
	}

	v.persistPosition(key, nil)
	v.persistPool(req.CollateralToken)
	v.publish(SubjectLiquidatePosition, event)
	return nil
}
