// 文件: pkg/vault/repository_test.go
// 写穿持久化与重启恢复测试

package vault

import (
	"math/big"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThroughAndRehydrate(t *testing.T) {
	env := newTestEnv(t)
	posRepo := NewMemoryPositionRepository()
	poolRepo := NewMemoryPoolRepository()
	env.vault.SetRepositories(posRepo, poolRepo)

	env.seedPool(t, "BTC", dec(t, "1", 8))
	key := env.openLong(t, dec(t, "0.00025", 8), usd(90))

	// 写穿已发生
	saved, err := posRepo.LoadAll()
	require.NoError(t, err)
	require.Contains(t, saved, key)
	assert.Equal(t, usd(90).String(), saved[key].Size.String())

	// 新账本从存储恢复
	v2 := New(env.oracle, env.bank, testGov)
	require.NoError(t, env.vault.SetTokenConfig(testGov, env.vault.tokens["BTC"])) // no-op, 保持配置
	require.NoError(t, v2.SetTokenConfig(testGov, &TokenConfig{Token: "BTC", Decimals: 8, IsShortable: true, Weight: 10}))
	require.NoError(t, v2.SetTokenConfig(testGov, &TokenConfig{Token: "DAI", Decimals: 18, IsStable: true, Weight: 10}))
	v2.SetRepositories(posRepo, poolRepo)
	require.NoError(t, v2.Rehydrate())

	pos := v2.GetPosition(key)
	require.NotNil(t, pos)
	assert.Equal(t, usd(90).String(), pos.Size.String())
	assert.Equal(t, dec(t, "9.91", 30).String(), pos.Collateral.String())

	pool := v2.GetPoolState("BTC")
	require.NotNil(t, pool)
	assert.Equal(t, "100024775", pool.PoolAmount.String())
}

func TestWriteThroughDeletesClosedPosition(t *testing.T) {
	env := newTestEnv(t)
	posRepo := NewMemoryPositionRepository()
	env.vault.SetRepositories(posRepo, NewMemoryPoolRepository())

	env.seedPool(t, "DAI", dec(t, "1000", 18))
	key := env.openShort(t, dec(t, "10", 18), usd(90))

	_, err := env.vault.DecreasePosition(&DecreasePositionRequest{
		Sender:          testTrader,
		Account:         testTrader,
		CollateralToken: "DAI",
		IndexToken:      "BTC",
		SizeDelta:       usd(90),
		IsLong:          false,
		Receiver:        testReceiver,
	})
	require.NoError(t, err)

	saved, err := posRepo.LoadAll()
	require.NoError(t, err)
	assert.NotContains(t, saved, key)
}

func TestMemoryRepositoryIsolation(t *testing.T) {
	repo := NewMemoryPositionRepository()
	key := PositionKey{Account: "a", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true}
	pos := newPosition()
	pos.Size = usd(10)
	require.NoError(t, repo.Save(key, pos))

	// 保存后改原对象不影响已存副本
	pos.Size.SetInt64(0)
	saved, err := repo.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, usd(10).String(), saved[key].Size.String())
}

// TestMySQLRepositoryRoundTrip 真库集成测试，需要本地 MySQL:
//
//	MYSQL_TEST_DSN="root:123456@tcp(127.0.0.1:3306)/vaultx_test?charset=utf8mb4&parseTime=True&loc=Local" go test
func TestMySQLRepositoryRoundTrip(t *testing.T) {
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}

	db, err := OpenMySQL(dsn)
	require.NoError(t, err)
	db.Exec("DELETE FROM vault_positions WHERE account LIKE 'itest%'")
	db.Exec("DELETE FROM vault_pools WHERE token = 'ITESTBTC'")

	posRepo := NewMySQLPositionRepository(db)
	key := PositionKey{Account: "itest-a", CollateralToken: "ITESTBTC", IndexToken: "ITESTBTC", IsLong: true}
	pos := newPosition()
	pos.Size = usd(90)
	pos.Collateral = dec(t, "9.91", 30)
	pos.AveragePrice = usd(40000)
	pos.ReserveAmount = dec(t, "0.00225", 8)
	require.NoError(t, posRepo.Save(key, pos))

	// upsert 覆盖而非追加
	pos.Size = usd(180)
	require.NoError(t, posRepo.Save(key, pos))

	saved, err := posRepo.LoadAll()
	require.NoError(t, err)
	require.Contains(t, saved, key)
	assert.Equal(t, usd(180).String(), saved[key].Size.String())

	require.NoError(t, posRepo.Delete(key))
	saved, err = posRepo.LoadAll()
	require.NoError(t, err)
	assert.NotContains(t, saved, key)

	poolRepo := NewMySQLPoolRepository(db)
	pool := newPoolState("ITESTBTC")
	pool.PoolAmount = dec(t, "1", 8)
	pool.FeeReserves = big.NewInt(225)
	require.NoError(t, poolRepo.Save(pool))

	pools, err := poolRepo.LoadAll()
	require.NoError(t, err)
	var got *PoolState
	for _, p := range pools {
		if p.Token == "ITESTBTC" {
			got = p
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, dec(t, "1", 8).String(), got.PoolAmount.String())
	assert.Equal(t, "225", got.FeeReserves.String())

	db.Exec("DELETE FROM vault_pools WHERE token = 'ITESTBTC'")
}

func TestPositionRecordRoundTrip(t *testing.T) {
	pos := &Position{
		Size:              usd(90),
		Collateral:        dec(t, "9.91", 30),
		AveragePrice:      usd(40000),
		EntryFundingRate:  big.NewInt(1500),
		ReserveAmount:     dec(t, "0.00225", 8),
		RealisedPnl:       big.NewInt(-42),
		HasRealisedProfit: false,
		LastIncreasedTime: 1_700_000_000,
	}
	key := PositionKey{Account: "a", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true}

	record := newPositionRecord(key, pos)
	got, err := record.toPosition()
	require.NoError(t, err)

	assert.Equal(t, pos.Size.String(), got.Size.String())
	assert.Equal(t, pos.Collateral.String(), got.Collateral.String())
	assert.Equal(t, pos.AveragePrice.String(), got.AveragePrice.String())
	assert.Equal(t, pos.RealisedPnl.String(), got.RealisedPnl.String())
	assert.Equal(t, pos.LastIncreasedTime, got.LastIncreasedTime)
}
