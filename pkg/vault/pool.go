// 文件: pkg/vault/pool.go
// 每代币资金池账本
//
// 【不变量】每次成功操作之后:
// - ReservedAmounts <= PoolAmount        (预留不能超过池子)
// - PoolAmount >= BufferAmount           (换汇/赎回不能击穿缓冲)
// - PoolAmount + FeeReserves <= 实际持有  (偿付能力，由 bank.Reconcile 对账)
//
// 所有变更都走本文件的守卫方法，不直接改字段

package vault

import "math/big"

// =============================================================================
// PoolState - 每代币池状态
// =============================================================================

// PoolState 某代币的池子账本
type PoolState struct {
	Token string

	// PoolAmount 用于交易/抵押的原始代币数量 (不含手续费)
	PoolAmount *big.Int

	// FeeReserves 累计手续费 (原始代币数量)，只有治理能提取
	FeeReserves *big.Int

	// USDXAmount 对该代币发行的 USDX 债务，用于敞口上限与换汇定价
	USDXAmount *big.Int

	// ReservedAmounts 为未平仓位预留的原始代币数量
	ReservedAmounts *big.Int

	// GuaranteedUsd 多头仓位的 (Size - Collateral) 之和 (USD)
	// 池子估值时用它净掉已承诺的赔付，避免重复计算
	GuaranteedUsd *big.Int

	// BufferAmount 治理设置的池底线，换汇不能把池子抽到线下
	BufferAmount *big.Int
}

func newPoolState(token string) *PoolState {
	return &PoolState{
		Token:           token,
		PoolAmount:      new(big.Int),
		FeeReserves:     new(big.Int),
		USDXAmount:      new(big.Int),
		ReservedAmounts: new(big.Int),
		GuaranteedUsd:   new(big.Int),
		BufferAmount:    new(big.Int),
	}
}

// Clone 深拷贝 (操作失败回滚用)
func (p *PoolState) Clone() *PoolState {
	return &PoolState{
		Token:           p.Token,
		PoolAmount:      clone(p.PoolAmount),
		FeeReserves:     clone(p.FeeReserves),
		USDXAmount:      clone(p.USDXAmount),
		ReservedAmounts: clone(p.ReservedAmounts),
		GuaranteedUsd:   clone(p.GuaranteedUsd),
		BufferAmount:    clone(p.BufferAmount),
	}
}

// Available 可用余量 = PoolAmount - ReservedAmounts
func (p *PoolState) Available() *big.Int {
	return sub(p.PoolAmount, p.ReservedAmounts)
}

// =============================================================================
// 守卫变更方法
// =============================================================================

// increasePoolAmount 增加池子数量
//
// 入账后池子不能超过实际持有的代币 (偿付能力硬约束)
func (v *Vault) increasePoolAmount(token string, amount *big.Int) error {
	pool := v.mustPool(token)
	pool.PoolAmount = add(pool.PoolAmount, amount)
	balance := v.bank.BalanceOf(token)
	if pool.PoolAmount.Cmp(balance) > 0 {
		return ErrPoolExceedsBalance
	}
	return nil
}

// decreasePoolAmount 减少池子数量
//
// 不能减成负数，也不能低于当前预留
func (v *Vault) decreasePoolAmount(token string, amount *big.Int) error {
	pool := v.mustPool(token)
	if pool.PoolAmount.Cmp(amount) < 0 {
		return ErrPoolAmountExceeded
	}
	pool.PoolAmount = sub(pool.PoolAmount, amount)
	if pool.ReservedAmounts.Cmp(pool.PoolAmount) > 0 {
		return ErrReserveExceedsPool
	}
	return nil
}

// increaseReservedAmount 增加预留
func (v *Vault) increaseReservedAmount(token string, amount *big.Int) error {
	pool := v.mustPool(token)
	pool.ReservedAmounts = add(pool.ReservedAmounts, amount)
	if pool.ReservedAmounts.Cmp(pool.PoolAmount) > 0 {
		return ErrReserveExceedsPool
	}
	return nil
}

// decreaseReservedAmount 减少预留
func (v *Vault) decreaseReservedAmount(token string, amount *big.Int) error {
	pool := v.mustPool(token)
	if pool.ReservedAmounts.Cmp(amount) < 0 {
		// 预留释放过量属于内部记账错误，按池子超支拒绝
		return ErrPoolAmountExceeded
	}
	pool.ReservedAmounts = sub(pool.ReservedAmounts, amount)
	return nil
}

// increaseUSDXAmount 增加 USDX 债务
//
// MaxUSDXAmount 是软上限: 已有债务可以超过，但新增会被挡住
func (v *Vault) increaseUSDXAmount(token string, amount *big.Int) error {
	pool := v.mustPool(token)
	pool.USDXAmount = add(pool.USDXAmount, amount)
	cfg := v.tokens[token]
	if cfg != nil && isPositive(cfg.MaxUSDXAmount) && pool.USDXAmount.Cmp(cfg.MaxUSDXAmount) > 0 {
		return ErrMaxUSDXExceeded
	}
	return nil
}

// decreaseUSDXAmount 减少 USDX 债务 (下限 0，不报错)
//
// 初始流动性没有对应债务，赎回时可能把债务减穿，直接夹到 0
func (v *Vault) decreaseUSDXAmount(token string, amount *big.Int) {
	pool := v.mustPool(token)
	if pool.USDXAmount.Cmp(amount) < 0 {
		pool.USDXAmount = new(big.Int)
		return
	}
	pool.USDXAmount = sub(pool.USDXAmount, amount)
}

// increaseGuaranteedUsd / decreaseGuaranteedUsd 多头担保额变更
func (v *Vault) increaseGuaranteedUsd(token string, usd *big.Int) {
	pool := v.mustPool(token)
	pool.GuaranteedUsd = add(pool.GuaranteedUsd, usd)
}

func (v *Vault) decreaseGuaranteedUsd(token string, usd *big.Int) {
	pool := v.mustPool(token)
	pool.GuaranteedUsd = sub(pool.GuaranteedUsd, usd)
}

// validateBufferAmount 校验池子没有击穿缓冲线
func (v *Vault) validateBufferAmount(token string) error {
	pool := v.mustPool(token)
	if pool.PoolAmount.Cmp(pool.BufferAmount) < 0 {
		return ErrPoolBelowBuffer
	}
	return nil
}

// mustPool 获取池状态，不存在则创建空池
func (v *Vault) mustPool(token string) *PoolState {
	pool, ok := v.pools[token]
	if !ok {
		pool = newPoolState(token)
		v.pools[token] = pool
	}
	return pool
}
