// 文件: pkg/vault/math.go
// 定点数学工具
//
// 【为什么用 big.Int 而不是 float64?】
// 金融账本必须用定点数：浮点数有精度问题，而且不同机器上
// 舍入行为可能不一致。USD 价值统一用 30 位小数的定点整数，
// 所有除法都是向下取整 (floor)，保证账本计算完全可复现。

package vault

import "math/big"

// =============================================================================
// 精度常量
// =============================================================================

const (
	// PriceDecimals USD 价值/价格的小数位数
	// 例: 40000 USD = 40000 * 10^30
	PriceDecimals = 30

	// USDXDecimals 稳定记账单位 USDX 的小数位数
	USDXDecimals = 18

	// BasisPointsDivisor 万分比基数
	// 例: 30 bps = 0.3%
	BasisPointsDivisor = 10000

	// FundingRatePrecision 资金费率精度
	FundingRatePrecision = 1000000
)

// PricePrecision = 10^30
var PricePrecision = pow10(PriceDecimals)

// =============================================================================
// big.Int 辅助函数
// =============================================================================

// bigInt 从 int64 构造
func bigInt(v int64) *big.Int {
	return big.NewInt(v)
}

// pow10 返回 10^n
func pow10(n int) *big.Int {
	return new(big.Int).Exp(bigInt(10), bigInt(int64(n)), nil)
}

// mulDiv 计算 floor(a * b / denom)
//
// 先乘后除，big.Int 不会溢出，不需要教科书上
// "先除后乘防溢出" 的折衷 (那样会丢精度)
func mulDiv(a, b, denom *big.Int) *big.Int {
	n := new(big.Int).Mul(a, b)
	return n.Quo(n, denom)
}

// add 返回 a + b (新分配，不修改入参)
func add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

// sub 返回 a - b
func sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

// absDiff 返回 |a - b|
func absDiff(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return sub(a, b)
	}
	return sub(b, a)
}

// isZero 判断是否为 0 (nil 视为 0)
func isZero(a *big.Int) bool {
	return a == nil || a.Sign() == 0
}

// isPositive 判断是否 > 0
func isPositive(a *big.Int) bool {
	return a != nil && a.Sign() > 0
}

// clone 复制一个 big.Int (nil 返回 0)
func clone(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a)
}

// applyBasisPoints 计算 amount * bps / 10000
func applyBasisPoints(amount *big.Int, bps int64) *big.Int {
	return mulDiv(amount, bigInt(bps), bigInt(BasisPointsDivisor))
}

// adjustForDecimals 在不同小数位的计量单位之间换算
// amount * 10^mulDecimals / 10^divDecimals
func adjustForDecimals(amount *big.Int, divDecimals, mulDecimals int) *big.Int {
	return mulDiv(amount, pow10(mulDecimals), pow10(divDecimals))
}
