// 文件: pkg/vault/vault_test.go
// 测试基础设施: 桩预言机 + 内存资金账户 + 标准两币环境
//
// 环境约定 (各测试文件共用):
//   BTC: 8 位小数，非稳定可做空，默认价 40000
//   DAI: 18 位小数，稳定币，默认价 1
//   初始池子通过 DirectPoolDeposit 注入

package vault

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultx.com/pkg/bank"
)

// =============================================================================
// 桩预言机
// =============================================================================

type stubOracle struct {
	minPrices map[string]*big.Int
	maxPrices map[string]*big.Int
}

func newStubOracle() *stubOracle {
	return &stubOracle{
		minPrices: make(map[string]*big.Int),
		maxPrices: make(map[string]*big.Int),
	}
}

func (o *stubOracle) set(token string, price *big.Int) {
	o.minPrices[token] = clone(price)
	o.maxPrices[token] = clone(price)
}

func (o *stubOracle) setBand(token string, minPrice, maxPrice *big.Int) {
	o.minPrices[token] = clone(minPrice)
	o.maxPrices[token] = clone(maxPrice)
}

func (o *stubOracle) GetPrice(token string, maximize bool) (*big.Int, error) {
	m := o.minPrices
	if maximize {
		m = o.maxPrices
	}
	p, ok := m[token]
	if !ok {
		return nil, errors.New("no price for " + token)
	}
	return clone(p), nil
}

// =============================================================================
// 数值辅助
// =============================================================================

// usd 整数 USD → 30 位定点
func usd(v int64) *big.Int {
	return mulDiv(bigInt(v), PricePrecision, bigInt(1))
}

// dec 十进制字符串按小数位转定点整数，如 dec("9.91", 30)
func dec(t *testing.T, s string, decimals int) *big.Int {
	t.Helper()
	intPart, fracPart, _ := strings.Cut(s, ".")
	if len(fracPart) > decimals {
		t.Fatalf("dec: %q has more than %d decimals", s, decimals)
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))
	n, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		t.Fatalf("dec: bad number %q", s)
	}
	return n
}

// =============================================================================
// 测试环境
// =============================================================================

const (
	testGov      = "gov"
	testTrader   = "alice"
	testReceiver = "alice-wallet"
)

type testEnv struct {
	vault  *Vault
	oracle *stubOracle
	bank   *bank.Bank
	now    int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		oracle: newStubOracle(),
		bank:   bank.New(),
		now:    1_700_000_000,
	}
	env.vault = New(env.oracle, env.bank, testGov)
	env.vault.SetClock(func() int64 { return env.now })

	require.NoError(t, env.vault.SetTokenConfig(testGov, &TokenConfig{
		Token:       "BTC",
		Decimals:    8,
		IsShortable: true,
		Weight:      10,
	}))
	require.NoError(t, env.vault.SetTokenConfig(testGov, &TokenConfig{
		Token:    "DAI",
		Decimals: 18,
		IsStable: true,
		Weight:   10,
	}))

	env.oracle.set("BTC", usd(40000))
	env.oracle.set("DAI", usd(1))
	return env
}

// fund 把币打进资金账户 (下一个操作的 transferIn 会计量到)
func (e *testEnv) fund(t *testing.T, token string, amount *big.Int) {
	t.Helper()
	require.NoError(t, e.bank.Deposit(token, testTrader, amount))
}

// seedPool 注入初始流动性
func (e *testEnv) seedPool(t *testing.T, token string, amount *big.Int) {
	t.Helper()
	e.fund(t, token, amount)
	_, err := e.vault.DirectPoolDeposit(token)
	require.NoError(t, err)
}

// advance 推进时钟
func (e *testEnv) advance(seconds int64) {
	e.now += seconds
}

// openLong 标准多头: 存入 collateralTokens 的 BTC，开 sizeUsd 名义仓
func (e *testEnv) openLong(t *testing.T, collateralTokens, sizeUsd *big.Int) PositionKey {
	t.Helper()
	e.fund(t, "BTC", collateralTokens)
	require.NoError(t, e.vault.IncreasePosition(&IncreasePositionRequest{
		Sender:          testTrader,
		Account:         testTrader,
		CollateralToken: "BTC",
		IndexToken:      "BTC",
		SizeDelta:       sizeUsd,
		IsLong:          true,
	}))
	return PositionKey{Account: testTrader, CollateralToken: "BTC", IndexToken: "BTC", IsLong: true}
}

// openShort 标准空头: 存入 DAI 抵押做空 BTC
func (e *testEnv) openShort(t *testing.T, collateralTokens, sizeUsd *big.Int) PositionKey {
	t.Helper()
	e.fund(t, "DAI", collateralTokens)
	require.NoError(t, e.vault.IncreasePosition(&IncreasePositionRequest{
		Sender:          testTrader,
		Account:         testTrader,
		CollateralToken: "DAI",
		IndexToken:      "BTC",
		SizeDelta:       sizeUsd,
		IsLong:          false,
	}))
	return PositionKey{Account: testTrader, CollateralToken: "DAI", IndexToken: "BTC", IsLong: false}
}

// =============================================================================
// 故障注入 bank
// =============================================================================

// failingBank 包一层真 bank，可以让 Withdraw 固定失败 (回滚路径测试)
type failingBank struct {
	inner        *bank.Bank
	failWithdraw bool
}

func (b *failingBank) BalanceOf(token string) *big.Int {
	return b.inner.BalanceOf(token)
}

func (b *failingBank) Withdraw(token, receiver string, amount *big.Int) error {
	if b.failWithdraw {
		return errors.New("withdraw disabled")
	}
	return b.inner.Withdraw(token, receiver, amount)
}
