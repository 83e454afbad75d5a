// 文件: pkg/vault/decrease.go
// 减仓与平仓
//
// 减仓按比例释放预留，先结算盈亏再提取抵押:
//   - 盈利: 从池子兑付 (空头直接减池，多头通过 GuaranteedUsd 核销)
//   - 亏损: 从抵押里扣，空头的亏损币量回补进池
// sizeDelta == size 时为全平: 剩余抵押全额随 usdOut 退出，持仓删除。

package vault

import "math/big"

// DecreasePositionRequest 减仓请求
type DecreasePositionRequest struct {
	Sender          string
	Account         string
	CollateralToken string
	IndexToken      string
	CollateralDelta *big.Int // 主动提取的抵押 (USD)，可为 0
	SizeDelta       *big.Int // 名义仓位减量 (USD)
	IsLong          bool
	Receiver        string
	GasPrice        int64
}

// DecreasePosition 减仓 / 全平，返回实际转出的抵押币数量
func (v *Vault) DecreasePosition(req *DecreasePositionRequest) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.validateGasPrice(req.GasPrice); err != nil {
		return nil, err
	}
	if err := v.validateSender(req.Sender, req.Account); err != nil {
		return nil, err
	}
	return v.decreasePosition(req)
}

// decreasePosition 内部减仓，调用方须持锁 (清算的 maxLeverage 分支复用)
func (v *Vault) decreasePosition(req *DecreasePositionRequest) (*big.Int, error) {
	collateralDelta := req.CollateralDelta
	if collateralDelta == nil {
		collateralDelta = new(big.Int)
	}
	sizeDelta := req.SizeDelta
	if sizeDelta == nil {
		sizeDelta = new(big.Int)
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
		return nil, ErrEmptyPosition
	}
	if pos.Size.Cmp(sizeDelta) < 0 {
		v.restore(snap)
		return nil, ErrPositionSizeExceeded
	}
	if pos.Collateral.Cmp(collateralDelta) < 0 {
		v.restore(snap)
		return nil, ErrPositionCollateralExceeded
	}

	collateral0 := clone(pos.Collateral)

	// 预留按减仓比例释放
	reserveDelta := mulDiv(pos.ReserveAmount, sizeDelta, pos.Size)
	pos.ReserveAmount = sub(pos.ReserveAmount, reserveDelta)
	if err := v.decreaseReservedAmount(req.CollateralToken, reserveDelta); err != nil {
		v.restore(snap)
		return nil, err
	}

	usdOut, usdOutAfterFee, fee, hasProfit, adjustedDelta, err := v.reduceCollateral(key, pos, collateralDelta, sizeDelta)
	if err != nil {
		v.restore(snap)
		return nil, err
	}

	fullClose := pos.Size.Cmp(sizeDelta) == 0
	if !fullClose {
		pos.EntryFundingRate = clone(v.cumulativeFundingRate(req.CollateralToken))
		pos.Size = sub(pos.Size, sizeDelta)
		if err := validatePosition(pos.Size, pos.Collateral); err != nil {
			v.restore(snap)
			return nil, err
		}
		if _, _, err := v.validateLiquidation(key, pos, true); err != nil {
			v.restore(snap)
			return nil, err
		}
		if req.IsLong {
			v.increaseGuaranteedUsd(req.CollateralToken, sub(collateral0, pos.Collateral))
			v.decreaseGuaranteedUsd(req.CollateralToken, sizeDelta)
		}
	} else {
		if req.IsLong {
			v.increaseGuaranteedUsd(req.CollateralToken, collateral0)
			v.decreaseGuaranteedUsd(req.CollateralToken, sizeDelta)
		}
	}

	price, err := v.oracle.GetPrice(req.IndexToken, !req.IsLong)
	if err != nil {
		v.restore(snap)
		return nil, err
	}

	if !req.IsLong {
		v.decreaseGlobalShortSize(req.IndexToken, sizeDelta)
	}

	var amountOut *big.Int
	if isPositive(usdOut) {
		if req.IsLong {
			// 多头的兑付从池子出币
			poolTokens, err := v.usdToTokenMin(req.CollateralToken, usdOut)
			if err != nil {
				v.restore(snap)
				return nil, err
			}
			if err := v.decreasePoolAmount(req.CollateralToken, poolTokens); err != nil {
				v.restore(snap)
				return nil, err
			}
		}
		amountOut, err = v.usdToTokenMin(req.CollateralToken, usdOutAfterFee)
		if err != nil {
			v.restore(snap)
			return nil, err
		}
		if err := v.transferOut(req.CollateralToken, req.Receiver, amountOut); err != nil {
			v.restore(snap)
			return nil, err
		}
	} else {
		amountOut = new(big.Int)
	}

	realisedPnl := clone(pos.RealisedPnl)
	if fullClose {
		delete(v.positions, key)
		v.persistPosition(key, nil)
	} else {
		v.persistPosition(key, pos)
	}
	v.persistPool(req.CollateralToken)

	subject := SubjectDecreasePosition
	if fullClose {
		subject = SubjectClosePosition
	}
	v.publish(subject, &DecreasePositionEvent{
		Account:         req.Account,
		CollateralToken: req.CollateralToken,
		IndexToken:      req.IndexToken,
		IsLong:          req.IsLong,
		CollateralDelta: clone(collateralDelta),
		SizeDelta:       clone(sizeDelta),
		Price:           clone(price),
		Fee:             clone(fee),
		UsdOut:          clone(usdOut),
		RealisedPnl:     realisedPnl,
		HasProfit:       hasProfit && isPositive(adjustedDelta),
	})
	return amountOut, nil
}

// reduceCollateral 结算盈亏并提取抵押
//
// 返回 (usdOut 税前应付, usdOutAfterFee 税后应付, fee, hasProfit, 按比例盈亏)。
// usdOut 不够抵费时，差额继续从留存抵押里扣。
func (v *Vault) reduceCollateral(key PositionKey, pos *Position, collateralDelta, sizeDelta *big.Int) (*big.Int, *big.Int, *big.Int, bool, *big.Int, error) {
	fee, err := v.collectMarginFees(key.CollateralToken, sizeDelta, pos.Size, pos.EntryFundingRate)
	if err != nil {
		return nil, nil, nil, false, nil, err
	}

	hasProfit, delta, err := v.getDelta(key.IndexToken, pos.Size, pos.AveragePrice, key.IsLong, pos.LastIncreasedTime)
	if err != nil {
		return nil, nil, nil, false, nil, err
	}
	// 只结算本次减掉部分的盈亏
	adjustedDelta := mulDiv(delta, sizeDelta, pos.Size)

	usdOut := new(big.Int)
	if hasProfit && isPositive(adjustedDelta) {
		usdOut = clone(adjustedDelta)
		pos.RealisedPnl = add(pos.RealisedPnl, adjustedDelta)
		pos.HasRealisedProfit = pos.RealisedPnl.Sign() >= 0
		if !key.IsLong {
			// 空头盈利由池子里的稳定币兑付
			tokens, err := v.usdToTokenMin(key.CollateralToken, adjustedDelta)
			if err != nil {
				return nil, nil, nil, false, nil, err
			}
			if err := v.decreasePoolAmount(key.CollateralToken, tokens); err != nil {
				return nil, nil, nil, false, nil, err
			}
		}
	}
	if !hasProfit && isPositive(adjustedDelta) {
		if pos.Collateral.Cmp(adjustedDelta) < 0 {
			return nil, nil, nil, false, nil, ErrLossesExceedCollateral
		}
		pos.Collateral = sub(pos.Collateral, adjustedDelta)
		pos.RealisedPnl = sub(pos.RealisedPnl, adjustedDelta)
		pos.HasRealisedProfit = pos.RealisedPnl.Sign() >= 0
		if !key.IsLong {
			// 空头亏掉的抵押归池
			tokens, err := v.usdToTokenMin(key.CollateralToken, adjustedDelta)
			if err != nil {
				return nil, nil, nil, false, nil, err
			}
			if err := v.increasePoolAmount(key.CollateralToken, tokens); err != nil {
				return nil, nil, nil, false, nil, err
			}
		}
	}

	if isPositive(collateralDelta) {
		if pos.Collateral.Cmp(collateralDelta) < 0 {
			return nil, nil, nil, false, nil, ErrPositionCollateralExceeded
		}
		usdOut = add(usdOut, collateralDelta)
		pos.Collateral = sub(pos.Collateral, collateralDelta)
	}
	if pos.Size.Cmp(sizeDelta) == 0 {
		// 全平: 剩余抵押全部退出
		usdOut = add(usdOut, pos.Collateral)
		pos.Collateral = new(big.Int)
	}

	usdOutAfterFee := clone(usdOut)
	if usdOut.Cmp(fee) > 0 {
		usdOutAfterFee = sub(usdOut, fee)
	} else {
		if pos.Collateral.Cmp(fee) < 0 {
			return nil, nil, nil, false, nil, ErrFeesExceedCollateral
		}
		pos.Collateral = sub(pos.Collateral, fee)
		if key.IsLong {
			feeTokens, err := v.usdToTokenMin(key.CollateralToken, fee)
			if err != nil {
				return nil, nil, nil, false, nil, err
			}
			if err := v.decreasePoolAmount(key.CollateralToken, feeTokens); err != nil {
				return nil, nil, nil, false, nil, err
			}
		}
	}
	return usdOut, usdOutAfterFee, fee, hasProfit, adjustedDelta, nil
}
