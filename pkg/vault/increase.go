// 文件: pkg/vault/increase.go
// 加仓
//
// 加仓 = 入金 + 放大名义仓位，一次操作内完成:
//   1. 推进资金费率
//   2. 已有仓位按新价重定均价 (保持未实现盈亏不跳变)
//   3. 收保证金费 (开仓费 + 欠的资金费)，从抵押里扣
//   4. 名义仓位对应的币量全额预留 (ReservedAmounts)，保证盈利可兑付
//
// 多头抵押进池、名义敞口记进 GuaranteedUsd；空头不进池，
// 只推进全局空头均价和规模。

package vault

import "math/big"

// IncreasePositionRequest 加仓请求
type IncreasePositionRequest struct {
	Sender          string // 实际调用方，须是 Account 本人或其授权 router
	Account         string
	CollateralToken string
	IndexToken      string
	SizeDelta       *big.Int // 名义仓位增量 (USD)，0 表示纯追加抵押
	IsLong          bool
	GasPrice        int64
}

// IncreasePosition 加仓 / 追加抵押
func (v *Vault) IncreasePosition(req *IncreasePositionRequest) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.validateGasPrice(req.GasPrice); err != nil {
		return err
	}
	if err := v.validateSender(req.Sender, req.Account); err != nil {
		return err
	}
	if err := v.validateTokens(req.CollateralToken, req.IndexToken, req.IsLong); err != nil {
		return err
	}
	sizeDelta := req.SizeDelta
	if sizeDelta == nil {
		sizeDelta = new(big.Int)
	}
	// 纯追加抵押 (sizeDelta == 0) 不受杠杆开关限制
	if !v.cfg.IsLeverageEnabled && sizeDelta.Sign() != 0 {
		return ErrLeverageNotEnabled
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
	if pos == nil {
		pos = newPosition()
		v.positions[key] = pos
	}

	// 多头吃最高价 (入场更贵)，空头吃最低价
	price, err := v.oracle.GetPrice(req.IndexToken, req.IsLong)
	if err != nil {
		v.restore(snap)
		return err
	}

	if isZero(pos.Size) {
		pos.AveragePrice = clone(price)
	} else if isPositive(sizeDelta) {
		nextAvg, err := v.getNextAveragePrice(req.IndexToken, pos, sizeDelta, price, req.IsLong)
		if err != nil {
			v.restore(snap)
			return err
		}
		pos.AveragePrice = nextAvg
	}

	fee, err := v.collectMarginFees(req.CollateralToken, sizeDelta, pos.Size, pos.EntryFundingRate)
	if err != nil {
		v.restore(snap)
		return err
	}

	collateralDelta := v.transferIn(req.CollateralToken)
	collateralDeltaUsd, err := v.tokenToUSDMin(req.CollateralToken, collateralDelta)
	if err != nil {
		v.restore(snap)
		return err
	}

	pos.Collateral = add(pos.Collateral, collateralDeltaUsd)
	if pos.Collateral.Cmp(fee) < 0 {
		v.restore(snap)
		return ErrInsufficientCollateralForFees
	}
	pos.Collateral = sub(pos.Collateral, fee)
	pos.EntryFundingRate = clone(v.cumulativeFundingRate(req.CollateralToken))
	pos.Size = add(pos.Size, sizeDelta)
	pos.LastIncreasedTime = v.now()

	if err := validatePosition(pos.Size, pos.Collateral); err != nil {
		v.restore(snap)
		return err
	}
	if _, _, err := v.validateLiquidation(key, pos, true); err != nil {
		v.restore(snap)
		return err
	}

	// 名义仓位足额预留: 盈利封顶于预留量，池子永远兑付得起
	reserveDelta, err := v.usdToTokenMax(req.CollateralToken, sizeDelta)
	if err != nil {
		v.restore(snap)
		return err
	}
	pos.ReserveAmount = add(pos.ReserveAmount, reserveDelta)
	if err := v.increaseReservedAmount(req.CollateralToken, reserveDelta); err != nil {
		v.restore(snap)
		return err
	}

	if req.IsLong {
		// GuaranteedUsd = 名义 − 抵押，多头池子隐含承接的 USD 敞口。
		// 费用已从抵押扣走但币还在池里，等价于 guaranteed 多记 fee。
		v.increaseGuaranteedUsd(req.CollateralToken, add(sizeDelta, fee))
		v.decreaseGuaranteedUsd(req.CollateralToken, collateralDeltaUsd)
		if err := v.increasePoolAmount(req.CollateralToken, collateralDelta); err != nil {
			v.restore(snap)
			return err
		}
		feeTokens, err := v.usdToTokenMin(req.CollateralToken, fee)
		if err != nil {
			v.restore(snap)
			return err
		}
		if err := v.decreasePoolAmount(req.CollateralToken, feeTokens); err != nil {
			v.restore(snap)
			return err
		}
	} else {
		if isPositive(sizeDelta) {
			if err := v.updateGlobalShortAveragePrice(req.IndexToken, price, sizeDelta); err != nil {
				v.restore(snap)
				return err
			}
			v.increaseGlobalShortSize(req.IndexToken, sizeDelta)
		}
	}

	v.persistPosition(key, pos)
	v.persistPool(req.CollateralToken)
	v.publish(SubjectIncreasePosition, &IncreasePositionEvent{
		Account:         req.Account,
		CollateralToken: req.CollateralToken,
		IndexToken:      req.IndexToken,
		IsLong:          req.IsLong,
		CollateralDelta: clone(collateralDeltaUsd),
		SizeDelta:       clone(sizeDelta),
		Price:           clone(price),
		Fee:             clone(fee),
	})
	return nil
}

// validateTokens 抵押币与指数币的搭配规则
//
// 多头: 抵押币必须就是指数币本身，且不能是稳定币。
// 空头: 抵押币必须是稳定币，指数币必须是可做空的非稳定币。
func (v *Vault) validateTokens(collateralToken, indexToken string, isLong bool) error {
	collateralCfg := v.tokens[collateralToken]
	if collateralCfg == nil {
		return ErrTokenNotWhitelisted
	}
	if isLong {
		if collateralToken != indexToken {
			return ErrMismatchedTokens
		}
		if collateralCfg.IsStable {
			return ErrCollateralIsStable
		}
		return nil
	}

	if !collateralCfg.IsStable {
		return ErrCollateralNotStable
	}
	indexCfg := v.tokens[indexToken]
	if indexCfg == nil {
		return ErrTokenNotWhitelisted
	}
	if indexCfg.IsStable {
		return ErrIndexIsStable
	}
	if !indexCfg.IsShortable {
		return ErrIndexNotShortable
	}
	return nil
}

// getDelta 持仓未实现盈亏
//
// 估值价取对持有人不利的一侧: 多头看最低价，空头看最高价。
// 开仓后 MinProfitTime 秒内，浮盈不超过 minProfitBps 视为 0，
// 防止在报价抖动里开平仓薅点差。
func (v *Vault) getDelta(indexToken string, size, averagePrice *big.Int, isLong bool, lastIncreasedTime int64) (bool, *big.Int, error) {
	if !isPositive(averagePrice) {
		return false, nil, ErrInvalidAveragePrice
	}
	price, err := v.oracle.GetPrice(indexToken, !isLong)
	if err != nil {
		return false, nil, err
	}

	priceDelta := absDiff(averagePrice, price)
	delta := mulDiv(size, priceDelta, averagePrice)

	var hasProfit bool
	if isLong {
		hasProfit = price.Cmp(averagePrice) > 0
	} else {
		hasProfit = averagePrice.Cmp(price) > 0
	}

	minBps := int64(0)
	if v.now() <= lastIncreasedTime+v.cfg.MinProfitTime {
		if cfg := v.tokens[indexToken]; cfg != nil {
			minBps = cfg.MinProfitBasisPoints
		}
	}
	if hasProfit && minBps > 0 {
		// delta/size <= minBps/10000 则按 0 计
		lhs := new(big.Int).Mul(delta, bigInt(BasisPointsDivisor))
		rhs := new(big.Int).Mul(size, bigInt(minBps))
		if lhs.Cmp(rhs) <= 0 {
			delta = new(big.Int)
		}
	}
	return hasProfit, delta, nil
}

// getNextAveragePrice 加仓后的新均价
//
// 选取的均价使得加仓前后未实现盈亏 (按当前价) 不变:
//
//	nextAvg = nextPrice × nextSize / (nextSize ± delta)
func (v *Vault) getNextAveragePrice(indexToken string, pos *Position, sizeDelta, nextPrice *big.Int, isLong bool) (*big.Int, error) {
	hasProfit, delta, err := v.getDelta(indexToken, pos.Size, pos.AveragePrice, isLong, pos.LastIncreasedTime)
	if err != nil {
		return nil, err
	}
	nextSize := add(pos.Size, sizeDelta)

	var divisor *big.Int
	if isLong {
		if hasProfit {
			divisor = add(nextSize, delta)
		} else {
			divisor = sub(nextSize, delta)
		}
	} else {
		if hasProfit {
			divisor = sub(nextSize, delta)
		} else {
			divisor = add(nextSize, delta)
		}
	}
	return mulDiv(nextPrice, nextSize, divisor), nil
}

// cumulativeFundingRate 内部读取 (零值安全)
func (v *Vault) cumulativeFundingRate(token string) *big.Int {
	if cum, ok := v.cumulativeFundingRates[token]; ok && cum != nil {
		return cum
	}
	return new(big.Int)
}
