// 文件: pkg/vault/liquidate_test.go
// 清算三态判定与执行测试

package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateLiquidationHealthy(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "1", 8))
	key := env.openLong(t, dec(t, "0.00025", 8), usd(90))

	state, _, err := env.vault.ValidateLiquidation(key)
	require.NoError(t, err)
	assert.Equal(t, LiquidationStateHealthy, state)

	// 健康仓位不可清算
	err = env.vault.LiquidatePosition(&LiquidatePositionRequest{
		Liquidator:      "keeper",
		Account:         testTrader,
		CollateralToken: "BTC",
		IndexToken:      "BTC",
		IsLong:          true,
		FeeReceiver:     "keeper",
	})
	assert.ErrorIs(t, err, ErrPositionHealthy)
}

func TestLiquidateInsolventLong(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "1", 8))
	key := env.openLong(t, dec(t, "0.00025", 8), usd(90))

	// 跌 10%: 亏 9 USD，剩余 0.91 < 保证金费 + 清算费 → 穿仓
	env.oracle.set("BTC", usd(36000))
	env.advance(60)

	state, _, err := env.vault.ValidateLiquidation(key)
	require.NoError(t, err)
	assert.Equal(t, LiquidationStateInsolvent, state)

	poolBefore := env.vault.GetPoolState("BTC")
	err = env.vault.LiquidatePosition(&LiquidatePositionRequest{
		Liquidator:      "keeper",
		Account:         testTrader,
		CollateralToken: "BTC",
		IndexToken:      "BTC",
		IsLong:          true,
		FeeReceiver:     "keeper",
	})
	require.NoError(t, err)

	assert.Nil(t, env.vault.GetPosition(key))

	pool := env.vault.GetPoolState("BTC")
	assert.Equal(t, "0", pool.ReservedAmounts.String())
	// guaranteed 释放了 size - collateral = 80.09
	assert.Equal(t, "0", pool.GuaranteedUsd.String())

	// 保证金费 0.09 USD @36000 = 250 聪进 FeeReserves
	feeDelta := sub(pool.FeeReserves, poolBefore.FeeReserves)
	assert.Equal(t, "250", feeDelta.String())

	// 清算费 5 USD @36000 = 13888 聪付给 keeper (从池里出)
	// pool 变化 = -费 250 - 清算费 13888
	poolDelta := sub(poolBefore.PoolAmount, pool.PoolAmount)
	assert.Equal(t, "14138", poolDelta.String())
}

func TestLiquidateInsolventShortConfiscatesCollateral(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "DAI", dec(t, "1000", 18))
	key := env.openShort(t, dec(t, "10", 18), usd(90))

	// 空头方向涨 10%: 亏 9 USD → 穿仓
	env.oracle.set("BTC", usd(44000))
	env.advance(60)

	state, _, err := env.vault.ValidateLiquidation(key)
	require.NoError(t, err)
	assert.Equal(t, LiquidationStateInsolvent, state)

	poolBefore := env.vault.GetPoolState("DAI")
	require.NoError(t, env.vault.LiquidatePosition(&LiquidatePositionRequest{
		Liquidator:      "keeper",
		Account:         testTrader,
		CollateralToken: "DAI",
		IndexToken:      "BTC",
		IsLong:          false,
		FeeReceiver:     "keeper",
	}))

	assert.Nil(t, env.vault.GetPosition(key))
	assert.Equal(t, "0", env.vault.GlobalShortSize("BTC").String())

	// 扣完保证金费后剩余抵押 9.91 - 0.09 = 9.82 DAI 没收进池，
	// 清算费 5 DAI 再从池里付出: 净变化 +4.82
	pool := env.vault.GetPoolState("DAI")
	delta := sub(pool.PoolAmount, poolBefore.PoolAmount)
	assert.Equal(t, dec(t, "4.82", 18).String(), delta.String())
	feeDelta := sub(pool.FeeReserves, poolBefore.FeeReserves)
	assert.Equal(t, dec(t, "0.09", 18).String(), feeDelta.String())
}

func TestLiquidateOverLeverageClosesToAccount(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "10", 8))

	// 30 USD 抵押开 1000 USD 仓 (开仓费 1 → 净抵押 29)
	key := env.openLong(t, dec(t, "0.00075", 8), usd(1000))

	// 跌到 39500: 亏 12.5，剩余 16.5。
	// 16.5 够付费用+清算费，但 16.5 × 50 < 1000 → 仅超杠杆
	env.oracle.set("BTC", usd(39500))
	env.advance(60)

	state, _, err := env.vault.ValidateLiquidation(key)
	require.NoError(t, err)
	assert.Equal(t, LiquidationStateOverLeverage, state)

	custodyBefore := env.bank.BalanceOf("BTC")
	require.NoError(t, env.vault.LiquidatePosition(&LiquidatePositionRequest{
		Liquidator:      "keeper",
		Account:         testTrader,
		CollateralToken: "BTC",
		IndexToken:      "BTC",
		IsLong:          true,
		FeeReceiver:     "keeper",
	}))

	// 走正常全平: 持仓删除，结余退给持仓人而不是没收
	assert.Nil(t, env.vault.GetPosition(key))
	paid := sub(custodyBefore, env.bank.BalanceOf("BTC"))
	// 结余 16.5 - 平仓费 1 = 15.5 USD @39500
	expected := mulDiv(dec(t, "15.5", 30), pow10(8), usd(39500))
	assert.Equal(t, expected.String(), paid.String())
}

func TestLiquidatePrivateMode(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "1", 8))
	env.openLong(t, dec(t, "0.00025", 8), usd(90))
	env.oracle.set("BTC", usd(36000))

	require.NoError(t, env.vault.SetInPrivateLiquidationMode(testGov, true))

	req := &LiquidatePositionRequest{
		Liquidator:      "rando",
		Account:         testTrader,
		CollateralToken: "BTC",
		IndexToken:      "BTC",
		IsLong:          true,
		FeeReceiver:     "rando",
	}
	assert.ErrorIs(t, env.vault.LiquidatePosition(req), ErrInvalidLiquidator)

	require.NoError(t, env.vault.SetLiquidator(testGov, "rando", true))
	assert.NoError(t, env.vault.LiquidatePosition(req))
}

func TestLiquidateGasPriceGuard(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "1", 8))
	env.openLong(t, dec(t, "0.00025", 8), usd(90))
	env.oracle.set("BTC", usd(36000))

	require.NoError(t, env.vault.SetMaxGasPrice(testGov, 100))

	req := &LiquidatePositionRequest{
		Liquidator:      "rando",
		Account:         testTrader,
		CollateralToken: "BTC",
		IndexToken:      "BTC",
		IsLong:          true,
		FeeReceiver:     "rando",
		GasPrice:        101,
	}
	assert.ErrorIs(t, env.vault.LiquidatePosition(req), ErrGasPriceExceeded)

	req.GasPrice = 100
	assert.NoError(t, env.vault.LiquidatePosition(req))
}

func TestGetRiskInfo(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "1", 8))
	key := env.openLong(t, dec(t, "0.00025", 8), usd(90))

	env.oracle.set("BTC", usd(38000))
	env.advance(60)

	info, err := env.vault.GetRiskInfo(key)
	require.NoError(t, err)
	assert.Equal(t, usd(90).String(), info.Size.String())
	assert.Equal(t, dec(t, "9.91", 30).String(), info.Collateral.String())
	assert.False(t, info.HasProfit)
	// 亏 90 × 2000/40000 = 4.5
	assert.Equal(t, dec(t, "4.5", 30).String(), info.Delta.String())
	assert.Equal(t, LiquidationStateHealthy, info.State)

	_, err = env.vault.GetRiskInfo(PositionKey{Account: "nobody", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true})
	assert.ErrorIs(t, err, ErrEmptyPosition)
}
