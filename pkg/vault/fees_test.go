// 文件: pkg/vault/fees_test.go
// 动态费率测试
//
// 场景固定在: 总 USDX 发行 1000，BTC/DAI 权重各半 → 每币目标 500。
// BTC 记账 300 (低配)，DAI 记账 700 (超配)。

package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// setupDynamicFees 手工摆好动态费率的前置状态
func setupDynamicFees(t *testing.T) *testEnv {
	env := newTestEnv(t)
	env.vault.cfg.Fees.HasDynamicFees = true
	env.vault.usdxSupply = dec(t, "1000", 18)
	env.vault.mustPool("BTC").USDXAmount = dec(t, "300", 18)
	env.vault.mustPool("DAI").USDXAmount = dec(t, "700", 18)
	return env
}

func TestGetTargetUSDXAmount(t *testing.T) {
	env := setupDynamicFees(t)
	assert.Equal(t, dec(t, "500", 18).String(), env.vault.getTargetUSDXAmount("BTC").String())
	assert.Equal(t, dec(t, "500", 18).String(), env.vault.getTargetUSDXAmount("DAI").String())

	env.vault.usdxSupply.SetInt64(0)
	assert.Equal(t, "0", env.vault.getTargetUSDXAmount("BTC").String())
}

func TestFeeBasisPointsRebateTowardsTarget(t *testing.T) {
	env := setupDynamicFees(t)

	// BTC 300 → 400: 靠近目标 500
	// rebate = 50 × 200/500 = 20 > 基础费 30 → 封在 0
	bps := env.vault.getFeeBasisPoints("BTC", dec(t, "100", 18), 30, 50, true)
	assert.Equal(t, int64(10), bps)

	// 折扣大于基础费时出 0 而不是负数
	bps = env.vault.getFeeBasisPoints("BTC", dec(t, "100", 18), 4, 50, true)
	assert.Equal(t, int64(0), bps)
}

func TestFeeBasisPointsTaxAwayFromTarget(t *testing.T) {
	env := setupDynamicFees(t)

	// DAI 700 → 800: 偏离加剧
	// avgDiff = (200+300)/2 = 250, tax = 50 × 250/500 = 25
	bps := env.vault.getFeeBasisPoints("DAI", dec(t, "100", 18), 30, 50, true)
	assert.Equal(t, int64(55), bps)

	// BTC 300 → 200 (减少, 远离目标): avgDiff = (200+300)/2 = 250
	bps = env.vault.getFeeBasisPoints("BTC", dec(t, "100", 18), 30, 50, false)
	assert.Equal(t, int64(55), bps)
}

func TestFeeBasisPointsDisabledReturnsBase(t *testing.T) {
	env := setupDynamicFees(t)
	env.vault.cfg.Fees.HasDynamicFees = false
	bps := env.vault.getFeeBasisPoints("DAI", dec(t, "100", 18), 30, 50, true)
	assert.Equal(t, int64(30), bps)
}

func TestFeeBasisPointsDecrementBelowZeroClamps(t *testing.T) {
	env := setupDynamicFees(t)
	// 减量超过现有记账: next 夹在 0
	// BTC 300 → 0: initialDiff 200, nextDiff 500 → 加税
	// avgDiff = 350, tax = 50 × 350/500 = 35
	bps := env.vault.getFeeBasisPoints("BTC", dec(t, "900", 18), 30, 50, false)
	assert.Equal(t, int64(65), bps)
}

func TestSwapFeeBasisPointsTakesWorseLeg(t *testing.T) {
	env := setupDynamicFees(t)

	// BTC → DAI 两腿各算一次: 输入腿按增量、输出腿按减量，取较大值
	usdxAmount := dec(t, "100", 18)
	in := env.vault.getFeeBasisPoints("BTC", usdxAmount, 30, 50, true)
	out := env.vault.getFeeBasisPoints("DAI", usdxAmount, 30, 50, false)
	got := env.vault.getSwapFeeBasisPoints("BTC", "DAI", usdxAmount)
	want := in
	if out > in {
		want = out
	}
	assert.Equal(t, want, got)
}

func TestStableSwapUsesLowTier(t *testing.T) {
	env := newTestEnv(t)
	// 再挂一个稳定币，稳定对走 StableSwap/StableTax 档
	env.vault.tokens["USDC"] = &TokenConfig{Token: "USDC", Decimals: 6, IsStable: true, Weight: 10}
	env.vault.whitelistOrder = append(env.vault.whitelistOrder, "USDC")
	env.vault.totalTokenWeights += 10
	env.vault.mustPool("USDC")

	bps := env.vault.getSwapFeeBasisPoints("DAI", "USDC", dec(t, "100", 18))
	assert.Equal(t, env.vault.cfg.Fees.StableSwapFeeBasisPoints, bps)

	bps = env.vault.getSwapFeeBasisPoints("BTC", "DAI", dec(t, "100", 18))
	assert.Equal(t, env.vault.cfg.Fees.SwapFeeBasisPoints, bps)
}

func TestPositionFee(t *testing.T) {
	env := newTestEnv(t)
	// 90 USD × 10bps = 0.09
	fee := env.vault.getPositionFee(usd(90))
	assert.Equal(t, dec(t, "0.09", 30).String(), fee.String())
	assert.Equal(t, "0", env.vault.getPositionFee(nil).String())
}
