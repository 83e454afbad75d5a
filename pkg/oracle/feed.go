// 文件: pkg/oracle/feed.go
// 价格源 - 管理各币种的双边报价
//
// 【职责】
// 1. 存储各币种的当前报价带 (低端价 / 高端价)
// 2. 给账本提供 GetPrice(token, maximize) 查询
// 3. 价格更新时回调通知 (清算 keeper 靠这个触发扫描)
//
// 【报价带】
// 实际生产中，低/高端价来自多交易所加权指数的置信区间。
// 这里简化为: 单一中间价 ± spread 基点展开成报价带。
// 账本按"对持有人不利的一侧"取价，点差天然归池子。

package oracle

import (
	"errors"
	"math/big"
	"sync"
	"time"
)

var (
	ErrNoPrice    = errors.New("no price for token")
	ErrStalePrice = errors.New("price is stale")
	ErrBadPrice   = errors.New("price must be positive")
)

// PriceDecimals 价格定点小数位，与账本一致
const PriceDecimals = 30

// 默认报价带半宽 (基点)
const defaultSpreadBasisPoints = 0

// pricePoint 某币种的当前报价带
type pricePoint struct {
	minPrice  *big.Int
	maxPrice  *big.Int
	updatedAt time.Time
}

// Feed 价格源
type Feed struct {
	mu     sync.RWMutex
	prices map[string]*pricePoint

	// 每币种的报价带半宽 (基点)，未设置用默认值
	spreads map[string]int64

	// 超过该时长没更新的价格拒绝提供，0 表示不检查
	maxStaleness time.Duration

	// 价格更新回调 (清算扫描等)
	onUpdate func(token string, minPrice, maxPrice *big.Int)

	now func() time.Time
}

// NewFeed 创建价格源
func NewFeed(maxStaleness time.Duration) *Feed {
	return &Feed{
		prices:       make(map[string]*pricePoint),
		spreads:      make(map[string]int64),
		maxStaleness: maxStaleness,
		now:          time.Now,
	}
}

// SetClock 注入时钟 (测试用)
func (f *Feed) SetClock(now func() time.Time) {
	f.now = now
}

// OnUpdate 注册价格更新回调
//
// 回调在 SetPrice 的锁外执行，不要在回调里再调 Feed 的写方法。
func (f *Feed) OnUpdate(fn func(token string, minPrice, maxPrice *big.Int)) {
	f.onUpdate = fn
}

// SetSpread 设置某币种的报价带半宽
func (f *Feed) SetSpread(token string, basisPoints int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spreads[token] = basisPoints
}

// SetPrice 推入新的中间价 (30 位小数定点)
//
// 报价带 = 中间价 × (1 ± spread/10000)。
func (f *Feed) SetPrice(token string, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return ErrBadPrice
	}

	f.mu.Lock()
	spread, ok := f.spreads[token]
	if !ok {
		spread = defaultSpreadBasisPoints
	}

	div := big.NewInt(10000)
	minPrice := new(big.Int).Mul(price, big.NewInt(10000-spread))
	minPrice.Quo(minPrice, div)
	maxPrice := new(big.Int).Mul(price, big.NewInt(10000+spread))
	maxPrice.Quo(maxPrice, div)

	f.prices[token] = &pricePoint{
		minPrice:  minPrice,
		maxPrice:  maxPrice,
		updatedAt: f.now(),
	}
	onUpdate := f.onUpdate
	f.mu.Unlock()

	if onUpdate != nil {
		onUpdate(token, new(big.Int).Set(minPrice), new(big.Int).Set(maxPrice))
	}
	return nil
}

// GetPrice 查询价格
//
// maximize=true 返回报价带高端，false 返回低端。
// 实现 vault.PriceOracle。
func (f *Feed) GetPrice(token string, maximize bool) (*big.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	point, ok := f.prices[token]
	if !ok {
		return nil, ErrNoPrice
	}
	if f.maxStaleness > 0 && f.now().Sub(point.updatedAt) > f.maxStaleness {
		return nil, ErrStalePrice
	}
	if maximize {
		return new(big.Int).Set(point.maxPrice), nil
	}
	return new(big.Int).Set(point.minPrice), nil
}

// ToPricePrecision 浮点价格转 30 位小数定点
//
// 只用于模拟器和测试数据构造，生产路径全程定点。
func ToPricePrecision(price float64) *big.Int {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(PriceDecimals), nil))
	n, _ := new(big.Float).Mul(big.NewFloat(price), scale).Int(nil)
	return n
}
