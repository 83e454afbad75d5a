// 文件: pkg/vault/swap_test.go
// 换汇与 USDX 铸销测试

package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuyUSDX(t *testing.T) {
	env := newTestEnv(t)

	// 存 0.001 BTC (40 USD)，铸造费 4bps
	env.fund(t, "BTC", dec(t, "0.001", 8))
	minted, err := env.vault.BuyUSDX(&BuyUSDXRequest{
		Sender:   testTrader,
		Token:    "BTC",
		Receiver: testTrader,
	})
	require.NoError(t, err)

	// 税后 99960 聪 × 40000 = 39.984 USDX
	assert.Equal(t, dec(t, "39.984", 18).String(), minted.String())
	assert.Equal(t, minted.String(), env.vault.USDXBalanceOf(testTrader).String())
	assert.Equal(t, minted.String(), env.vault.USDXSupply().String())

	pool := env.vault.GetPoolState("BTC")
	assert.Equal(t, "99960", pool.PoolAmount.String())
	assert.Equal(t, "40", pool.FeeReserves.String())
	assert.Equal(t, dec(t, "39.984", 18).String(), pool.USDXAmount.String())
}

func TestSellUSDX(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "BTC", dec(t, "0.001", 8))
	minted, err := env.vault.BuyUSDX(&BuyUSDXRequest{
		Sender:   testTrader,
		Token:    "BTC",
		Receiver: testTrader,
	})
	require.NoError(t, err)

	amountOut, err := env.vault.SellUSDX(&SellUSDXRequest{
		Sender:     testTrader,
		Token:      "BTC",
		USDXAmount: minted,
		Receiver:   testReceiver,
	})
	require.NoError(t, err)

	// 买入再卖出严格亏损 (两次 4bps)
	assert.True(t, amountOut.Cmp(dec(t, "0.001", 8)) < 0)
	assert.Equal(t, "99920", amountOut.String())
	assert.Equal(t, "0", env.vault.USDXSupply().String())
	assert.Equal(t, "0", env.vault.USDXBalanceOf(testTrader).String())

	pool := env.vault.GetPoolState("BTC")
	assert.Equal(t, "0", pool.USDXAmount.String())
	assert.Equal(t, "0", pool.PoolAmount.String())
	// 两腿的费都留在 FeeReserves: 40 + 40
	assert.Equal(t, "80", pool.FeeReserves.String())
}

func TestSellUSDXGuards(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.vault.SellUSDX(&SellUSDXRequest{
		Sender:     testTrader,
		Token:      "BTC",
		USDXAmount: dec(t, "1", 18),
		Receiver:   testTrader,
	})
	assert.ErrorIs(t, err, ErrInsufficientUSDX)

	_, err = env.vault.SellUSDX(&SellUSDXRequest{
		Sender:   testTrader,
		Token:    "BTC",
		Receiver: testTrader,
	})
	assert.ErrorIs(t, err, ErrInvalidUSDXAmount)

	_, err = env.vault.SellUSDX(&SellUSDXRequest{
		Sender:     testTrader,
		Token:      "ETH",
		USDXAmount: dec(t, "1", 18),
		Receiver:   testTrader,
	})
	assert.ErrorIs(t, err, ErrTokenNotWhitelisted)
}

func TestSwapBTCForDAI(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "1", 8))
	env.seedPool(t, "DAI", dec(t, "100000", 18))

	// 0.001 BTC → 40 DAI 名义，30bps 换汇费从输出扣
	env.fund(t, "BTC", dec(t, "0.001", 8))
	amountOut, err := env.vault.Swap(&SwapRequest{
		Sender:   testTrader,
		TokenIn:  "BTC",
		TokenOut: "DAI",
		Receiver: testReceiver,
	})
	require.NoError(t, err)
	assert.Equal(t, dec(t, "39.88", 18).String(), amountOut.String())

	poolIn := env.vault.GetPoolState("BTC")
	poolOut := env.vault.GetPoolState("DAI")
	assert.Equal(t, dec(t, "1.001", 8).String(), poolIn.PoolAmount.String())
	assert.Equal(t, dec(t, "99960", 18).String(), poolOut.PoolAmount.String())
	assert.Equal(t, dec(t, "0.12", 18).String(), poolOut.FeeReserves.String())

	// USDX 记账迁移: 输入腿 +40，输出腿本来是 0 夹在 0
	assert.Equal(t, dec(t, "40", 18).String(), poolIn.USDXAmount.String())
	assert.Equal(t, "0", poolOut.USDXAmount.String())
}

func TestSwapRespectsBufferAmount(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "1", 8))
	env.seedPool(t, "DAI", dec(t, "100", 18))

	// 缓冲线 70 DAI，换出 40 DAI 会击穿
	require.NoError(t, env.vault.SetBufferAmount(testGov, "DAI", dec(t, "70", 18)))

	env.fund(t, "BTC", dec(t, "0.001", 8))
	_, err := env.vault.Swap(&SwapRequest{
		Sender:   testTrader,
		TokenIn:  "BTC",
		TokenOut: "DAI",
		Receiver: testReceiver,
	})
	assert.ErrorIs(t, err, ErrPoolBelowBuffer)

	// 回滚后池子原样
	pool := env.vault.GetPoolState("DAI")
	assert.Equal(t, dec(t, "100", 18).String(), pool.PoolAmount.String())
}

func TestSwapGuards(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "BTC", dec(t, "1", 8))

	_, err := env.vault.Swap(&SwapRequest{Sender: testTrader, TokenIn: "BTC", TokenOut: "BTC", Receiver: testTrader})
	assert.ErrorIs(t, err, ErrInvalidTokenPair)

	_, err = env.vault.Swap(&SwapRequest{Sender: testTrader, TokenIn: "BTC", TokenOut: "ETH", Receiver: testTrader})
	assert.ErrorIs(t, err, ErrTokenNotWhitelisted)

	// 没有入金
	_, err = env.vault.Swap(&SwapRequest{Sender: testTrader, TokenIn: "BTC", TokenOut: "DAI", Receiver: testTrader})
	assert.ErrorIs(t, err, ErrInvalidAmountIn)

	require.NoError(t, env.vault.SetIsSwapEnabled(testGov, false))
	_, err = env.vault.Swap(&SwapRequest{Sender: testTrader, TokenIn: "BTC", TokenOut: "DAI", Receiver: testTrader})
	assert.ErrorIs(t, err, ErrSwapsNotEnabled)
}

func TestDirectPoolDeposit(t *testing.T) {
	env := newTestEnv(t)

	env.fund(t, "BTC", dec(t, "0.5", 8))
	amount, err := env.vault.DirectPoolDeposit("BTC")
	require.NoError(t, err)
	assert.Equal(t, dec(t, "0.5", 8).String(), amount.String())

	pool := env.vault.GetPoolState("BTC")
	assert.Equal(t, dec(t, "0.5", 8).String(), pool.PoolAmount.String())
	// 无偿注入不铸 USDX 不记费
	assert.Equal(t, "0", pool.USDXAmount.String())
	assert.Equal(t, "0", pool.FeeReserves.String())

	_, err = env.vault.DirectPoolDeposit("BTC")
	assert.ErrorIs(t, err, ErrInvalidAmountIn)
}
