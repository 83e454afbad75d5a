// 文件: pkg/vault/decrease_test.go
// 减仓/平仓路径测试
//
// 基准场景: 10 DAI 抵押开 90 USD 空头 @40000，跌到 36000 全平。
// 盈利 = 90 × 4000/40000 = 9，平仓费 0.09，
// 应付 = 9 + 9.91 = 18.91，税后 18.82 DAI。

package vault

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecreasePositionShortFullCloseWithProfit(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "DAI", dec(t, "1000", 18))
	key := env.openShort(t, dec(t, "10", 18), usd(90))

	env.oracle.set("BTC", usd(36000))
	env.advance(60)

	amountOut, err := env.vault.DecreasePosition(&DecreasePositionRequest{
		Sender:          testTrader,
		Account:         testTrader,
		CollateralToken: "DAI",
		IndexToken:      "BTC",
		CollateralDelta: new(big.Int),
		SizeDelta:       usd(90),
		IsLong:          false,
		Receiver:        testReceiver,
	})
	require.NoError(t, err)
	assert.Equal(t, dec(t, "18.82", 18).String(), amountOut.String())
	// 托管余额: 1000 池 + 10 抵押 - 18.82 出金
	assert.Equal(t, dec(t, "991.18", 18).String(), env.bank.BalanceOf("DAI").String())

	// 持仓已删除
	assert.Nil(t, env.vault.GetPosition(key))
	assert.Equal(t, "0", env.vault.GlobalShortSize("BTC").String())

	pool := env.vault.GetPoolState("DAI")
	// 空头盈利由池子兑付: 1000 - 9
	assert.Equal(t, dec(t, "991", 18).String(), pool.PoolAmount.String())
	assert.Equal(t, "0", pool.ReservedAmounts.String())
	// 开仓费 0.09 + 平仓费 0.09
	assert.Equal(t, dec(t, "0.18", 18).String(), pool.FeeReserves.String())
}

func TestDecreasePositionLongPartialWithLoss(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "1", 8))
	key := env.openLong(t, dec(t, "0.00025", 8), usd(90))

	// 跌 2%: 亏损 90 × 800/40000 = 1.8，减一半仓结算一半
	env.oracle.set("BTC", usd(39200))
	env.advance(60)

	amountOut, err := env.vault.DecreasePosition(&DecreasePositionRequest{
		Sender:          testTrader,
		Account:         testTrader,
		CollateralToken: "BTC",
		IndexToken:      "BTC",
		SizeDelta:       usd(45),
		IsLong:          true,
		Receiver:        testReceiver,
	})
	require.NoError(t, err)
	// 不提抵押、亏损仓: 没有应付出金
	assert.Equal(t, "0", amountOut.String())

	pos := env.vault.GetPosition(key)
	require.NotNil(t, pos)
	assert.Equal(t, usd(45).String(), pos.Size.String())
	// 抵押 9.91 - 减半亏损 0.9 - 平仓费 0.045
	assert.Equal(t, dec(t, "8.965", 30).String(), pos.Collateral.String())
	// 预留按比例释放一半
	assert.Equal(t, dec(t, "0.001125", 8).String(), pos.ReserveAmount.String())
	assert.Equal(t, pos.RealisedPnl.String(), dec(t, "-0.9", 30).String())
	assert.False(t, pos.HasRealisedProfit)
}

func TestDecreasePositionWithdrawCollateral(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "1", 8))
	key := env.openLong(t, dec(t, "0.00025", 8), usd(90))
	env.advance(60)

	// 价格不动，只提 3 USD 抵押，不减仓
	amountOut, err := env.vault.DecreasePosition(&DecreasePositionRequest{
		Sender:          testTrader,
		Account:         testTrader,
		CollateralToken: "BTC",
		IndexToken:      "BTC",
		CollateralDelta: usd(3),
		SizeDelta:       new(big.Int),
		IsLong:          true,
		Receiver:        testReceiver,
	})
	require.NoError(t, err)
	// 3 USD @40000 = 0.000075 BTC
	assert.Equal(t, dec(t, "0.000075", 8).String(), amountOut.String())

	pos := env.vault.GetPosition(key)
	assert.Equal(t, dec(t, "6.91", 30).String(), pos.Collateral.String())
	assert.Equal(t, usd(90).String(), pos.Size.String())
}

func TestDecreasePositionGuards(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "1", 8))
	env.openLong(t, dec(t, "0.00025", 8), usd(90))

	// 减超过持仓
	_, err := env.vault.DecreasePosition(&DecreasePositionRequest{
		Sender:          testTrader,
		Account:         testTrader,
		CollateralToken: "BTC",
		IndexToken:      "BTC",
		SizeDelta:       usd(91),
		IsLong:          true,
		Receiver:        testReceiver,
	})
	assert.ErrorIs(t, err, ErrPositionSizeExceeded)

	// 提超过抵押
	_, err = env.vault.DecreasePosition(&DecreasePositionRequest{
		Sender:          testTrader,
		Account:         testTrader,
		CollateralToken: "BTC",
		IndexToken:      "BTC",
		CollateralDelta: usd(10),
		SizeDelta:       usd(45),
		IsLong:          true,
		Receiver:        testReceiver,
	})
	assert.ErrorIs(t, err, ErrPositionCollateralExceeded)

	// 空仓
	_, err = env.vault.DecreasePosition(&DecreasePositionRequest{
		Sender:          "bob",
		Account:         "bob",
		CollateralToken: "BTC",
		IndexToken:      "BTC",
		SizeDelta:       usd(1),
		IsLong:          true,
		Receiver:        "bob",
	})
	assert.ErrorIs(t, err, ErrEmptyPosition)
}

func TestDecreasePositionRollbackOnWithdrawFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "DAI", dec(t, "1000", 18))
	key := env.openShort(t, dec(t, "10", 18), usd(90))

	before := env.vault.GetPoolState("DAI")
	posBefore := env.vault.GetPosition(key)

	// 出金失败: 整个平仓回滚，账本无变化
	fb := &failingBank{inner: env.bank, failWithdraw: true}
	env.vault.bank = fb
	env.oracle.set("BTC", usd(36000))

	_, err := env.vault.DecreasePosition(&DecreasePositionRequest{
		Sender:          testTrader,
		Account:         testTrader,
		CollateralToken: "DAI",
		IndexToken:      "BTC",
		SizeDelta:       usd(90),
		IsLong:          false,
		Receiver:        testReceiver,
	})
	require.Error(t, err)

	after := env.vault.GetPoolState("DAI")
	assert.Equal(t, before.PoolAmount.String(), after.PoolAmount.String())
	assert.Equal(t, before.FeeReserves.String(), after.FeeReserves.String())
	assert.Equal(t, before.ReservedAmounts.String(), after.ReservedAmounts.String())

	posAfter := env.vault.GetPosition(key)
	require.NotNil(t, posAfter)
	assert.Equal(t, posBefore.Size.String(), posAfter.Size.String())
	assert.Equal(t, posBefore.Collateral.String(), posAfter.Collateral.String())
	assert.Equal(t, usd(90).String(), env.vault.GlobalShortSize("BTC").String())

	// 恢复出金后同一请求成功
	fb.failWithdraw = false
	amountOut, err := env.vault.DecreasePosition(&DecreasePositionRequest{
		Sender:          testTrader,
		Account:         testTrader,
		CollateralToken: "DAI",
		IndexToken:      "BTC",
		SizeDelta:       usd(90),
		IsLong:          false,
		Receiver:        testReceiver,
	})
	require.NoError(t, err)
	assert.Equal(t, dec(t, "18.82", 18).String(), amountOut.String())
}
