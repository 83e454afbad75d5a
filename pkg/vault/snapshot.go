// 文件: pkg/vault/snapshot.go
// 操作级快照与回滚
//
// 【为什么需要】
// 账本操作要求整体原子: 中途任何校验失败都不能留下部分效果。
// 操作流程里有些校验天然发生在变更之后 (比如加仓后再验杠杆上限)，
// 所以进入操作前先对该操作会触碰的状态拍快照，失败就整体还原。
// 全程持有账本锁，快照/还原期间没有并发读写。

package vault

import "math/big"

// opSnapshot 一次操作触碰到的状态切片
type opSnapshot struct {
	pools     map[string]*PoolState
	positions map[PositionKey]*Position
	posExists map[PositionKey]bool

	funding     map[string]*big.Int
	fundingTime map[string]int64

	shortSizes  map[string]*big.Int
	shortPrices map[string]*big.Int

	usdxSupply   *big.Int
	usdxBalances map[string]*big.Int

	tokenBalances map[string]*big.Int
}

// snapshot 拍快照
//
// tokens: 操作会触碰的池子/资金费率/入账余额
// keys:   操作会触碰的持仓
// accounts: 操作会触碰的 USDX 余额
func (v *Vault) snapshot(tokens []string, keys []PositionKey, accounts []string) *opSnapshot {
	snap := &opSnapshot{
		pools:         make(map[string]*PoolState),
		positions:     make(map[PositionKey]*Position),
		posExists:     make(map[PositionKey]bool),
		funding:       make(map[string]*big.Int),
		fundingTime:   make(map[string]int64),
		shortSizes:    make(map[string]*big.Int),
		shortPrices:   make(map[string]*big.Int),
		usdxSupply:    clone(v.usdxSupply),
		usdxBalances:  make(map[string]*big.Int),
		tokenBalances: make(map[string]*big.Int),
	}
	for _, token := range tokens {
		snap.pools[token] = v.mustPool(token).Clone()
		snap.funding[token] = clone(v.cumulativeFundingRates[token])
		snap.fundingTime[token] = v.lastFundingTimes[token]
		snap.shortSizes[token] = clone(v.globalShortSizes[token])
		snap.shortPrices[token] = clone(v.globalShortAveragePrices[token])
		snap.tokenBalances[token] = clone(v.tokenBalances[token])
	}
	for _, key := range keys {
		pos, ok := v.positions[key]
		snap.posExists[key] = ok
		if ok {
			snap.positions[key] = pos.Clone()
		}
	}
	for _, account := range accounts {
		snap.usdxBalances[account] = clone(v.usdxBalances[account])
	}
	return snap
}

// restore 整体还原到快照
func (v *Vault) restore(snap *opSnapshot) {
	for token, pool := range snap.pools {
		v.pools[token] = pool
		v.cumulativeFundingRates[token] = snap.funding[token]
		v.lastFundingTimes[token] = snap.fundingTime[token]
		v.globalShortSizes[token] = snap.shortSizes[token]
		v.globalShortAveragePrices[token] = snap.shortPrices[token]
		v.tokenBalances[token] = snap.tokenBalances[token]
	}
	for key, exists := range snap.posExists {
		if exists {
			v.positions[key] = snap.positions[key]
		} else {
			delete(v.positions, key)
		}
	}
	v.usdxSupply = snap.usdxSupply
	for account, bal := range snap.usdxBalances {
		if bal == nil || bal.Sign() == 0 {
			delete(v.usdxBalances, account)
		} else {
			v.usdxBalances[account] = bal
		}
	}
}
