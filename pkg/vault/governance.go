// 文件: pkg/vault/governance.go
// 治理配置入口
//
// 所有配置写入都要求 sender == gov。gov 本身通常是 pkg/gov 的
// 两阶段时间锁 (先 signal 再 execute)，这里只消费"调用者是否是 gov"。

package vault

import "math/big"

// SetGov 转移治理身份
func (v *Vault) SetGov(sender, newGov string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	v.gov = newGov
	return nil
}

// SetTokenConfig 注册/更新白名单代币
func (v *Vault) SetTokenConfig(sender string, cfg *TokenConfig) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	if err := ValidateTokenConfig(cfg); err != nil {
		return err
	}
	if old, ok := v.tokens[cfg.Token]; ok {
		v.totalTokenWeights -= old.Weight
	} else {
		v.whitelistOrder = append(v.whitelistOrder, cfg.Token)
	}
	v.tokens[cfg.Token] = cfg
	v.totalTokenWeights += cfg.Weight
	v.mustPool(cfg.Token)
	return nil
}

// ClearTokenConfig 移除白名单代币
//
// 已有持仓/债务不受影响，只是不再接受新敞口
func (v *Vault) ClearTokenConfig(sender, token string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	cfg, ok := v.tokens[token]
	if !ok {
		return ErrTokenNotWhitelisted
	}
	v.totalTokenWeights -= cfg.Weight
	delete(v.tokens, token)
	for i, t := range v.whitelistOrder {
		if t == token {
			v.whitelistOrder = append(v.whitelistOrder[:i], v.whitelistOrder[i+1:]...)
			break
		}
	}
	return nil
}

// SetFees 设置手续费档位
func (v *Vault) SetFees(sender string, fees FeeConfig) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	if err := ValidateFeeConfig(&fees); err != nil {
		return err
	}
	v.cfg.Fees = fees
	return nil
}

// SetMaxLeverage 设置最大杠杆 (万分比)
func (v *Vault) SetMaxLeverage(sender string, maxLeverage int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	v.cfg.MaxLeverage = maxLeverage
	return nil
}

// SetMinProfitTime 设置最小盈利时间窗 (秒)
func (v *Vault) SetMinProfitTime(sender string, seconds int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	v.cfg.MinProfitTime = seconds
	return nil
}

// SetFundingRate 设置资金费率参数
func (v *Vault) SetFundingRate(sender string, interval, factor, stableFactor int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	v.cfg.FundingInterval = interval
	v.cfg.FundingRateFactor = factor
	v.cfg.StableFundingRateFactor = stableFactor
	return nil
}

// SetBufferAmount 设置池底线
func (v *Vault) SetBufferAmount(sender, token string, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	v.mustPool(token).BufferAmount = clone(amount)
	return nil
}

// SetIsLeverageEnabled 杠杆开关
func (v *Vault) SetIsLeverageEnabled(sender string, enabled bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	v.cfg.IsLeverageEnabled = enabled
	return nil
}

// SetIsSwapEnabled 换汇开关
func (v *Vault) SetIsSwapEnabled(sender string, enabled bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	v.cfg.IsSwapEnabled = enabled
	return nil
}

// SetInPrivateLiquidationMode 清算人白名单开关
func (v *Vault) SetInPrivateLiquidationMode(sender string, enabled bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	v.cfg.InPrivateLiquidationMode = enabled
	return nil
}

// SetLiquidator 增删清算人
func (v *Vault) SetLiquidator(sender, liquidator string, active bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	if active {
		v.liquidators[liquidator] = true
	} else {
		delete(v.liquidators, liquidator)
	}
	return nil
}

// SetMaxGasPrice 设置 gas 价格上限 (0 不限制)
func (v *Vault) SetMaxGasPrice(sender string, maxGasPrice int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return err
	}
	v.cfg.MaxGasPrice = maxGasPrice
	return nil
}

// WithdrawFees 提取累计手续费 (只有治理)
//
// 返回实际转出的原始代币数量
func (v *Vault) WithdrawFees(sender, token, receiver string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateGov(sender); err != nil {
		return nil, err
	}
	pool := v.mustPool(token)
	amount := clone(pool.FeeReserves)
	if isZero(amount) {
		return new(big.Int), nil
	}
	pool.FeeReserves = new(big.Int)
	if err := v.transferOut(token, receiver, amount); err != nil {
		pool.FeeReserves = amount
		return nil, err
	}
	v.persistPool(token)
	return amount, nil
}
