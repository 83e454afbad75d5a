// 文件: cmd/simulation/main.go
// 全链路本地模拟
//
// 在单进程里把系统跑起来:
//
//	Ticker --> Feed --> Vault <-- 随机交易员
//	              |        |
//	              v        v
//	           Keeper    Bank (WAL)
//
// 行情先随机游走，随后强制暴跌，观察 keeper 分级监控到
// 清算执行的完整链路。设置了 MYSQL_DSN / NATS_URL / REDIS_ADDR
// 环境变量时额外接上持久化、事件广播和风险告警。

package main

import (
	"fmt"
	"log"
	"math/big"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vaultx.com/pkg/bank"
	"vaultx.com/pkg/gov"
	"vaultx.com/pkg/keeper"
	"vaultx.com/pkg/nats"
	"vaultx.com/pkg/oracle"
	"vaultx.com/pkg/vault"
)

const (
	govTimelock = "timelock"
	govOps      = "ops"

	keeperBot      = "keeper-bot"
	keeperReceiver = "keeper-fees"
)

// usd 整数 USD 转 30 位定点
func usd(v int64) *big.Int {
	return oracle.ToPricePrecision(float64(v))
}

// btc 整数聪 (8 位小数)
func btc(sats int64) *big.Int {
	return big.NewInt(sats)
}

// dai 整数 DAI 转 18 位定点
func dai(v int64) *big.Int {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(v), one)
}

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Println("🚀 Starting vault simulation...")

	// 1. 资金账户 (WAL 持久化)
	// -------------------------------------------------------------------------
	walDir := "./wal_data"
	os.RemoveAll(walDir)
	custody, err := bank.Open(walDir)
	if err != nil {
		log.Fatalf("open bank: %v", err)
	}
	defer custody.Close()

	// 2. 价格源
	// -------------------------------------------------------------------------
	feed := oracle.NewFeed(30 * time.Second)
	feed.SetSpread("BTC", 10) // ±0.1% 报价带
	feed.SetPrice("BTC", oracle.ToPricePrecision(50000))
	feed.SetPrice("DAI", oracle.ToPricePrecision(1))

	// 3. 账本 + 治理时间锁
	// -------------------------------------------------------------------------
	ledger := vault.New(feed, custody, govTimelock)

	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err := vault.OpenMySQL(dsn)
		if err != nil {
			log.Fatalf("open mysql: %v", err)
		}
		ledger.SetRepositories(
			vault.NewMySQLPositionRepository(db),
			vault.NewMySQLPoolRepository(db),
		)
		if err := ledger.Rehydrate(); err != nil {
			log.Fatalf("rehydrate ledger: %v", err)
		}
		log.Println("✅ MySQL write-through persistence enabled")
	}

	if url := os.Getenv("NATS_URL"); url != "" {
		publisher, err := nats.NewPublisher(url)
		if err != nil {
			log.Fatalf("connect nats: %v", err)
		}
		defer publisher.Close()
		ledger.SetPublisher(publisher)
		log.Println("✅ NATS event publishing enabled")
	}

	timelock, err := gov.New(govOps, 3*time.Second)
	if err != nil {
		log.Fatalf("create timelock: %v", err)
	}

	mustConfig := func(err error) {
		if err != nil {
			log.Fatalf("configure ledger: %v", err)
		}
	}
	mustConfig(ledger.SetTokenConfig(govTimelock, &vault.TokenConfig{
		Token:       "BTC",
		Decimals:    8,
		IsShortable: true,
		Weight:      10,
	}))
	mustConfig(ledger.SetTokenConfig(govTimelock, &vault.TokenConfig{
		Token:    "DAI",
		Decimals: 18,
		IsStable: true,
		Weight:   10,
	}))
	log.Println("✅ Ledger configured: BTC (8dp, shortable), DAI (18dp, stable)")

	// 4. 初始流动性
	// -------------------------------------------------------------------------
	seed := func(token string, amount *big.Int) {
		if err := custody.Deposit(token, "lp", amount); err != nil {
			log.Fatalf("seed %s: %v", token, err)
		}
		if _, err := ledger.DirectPoolDeposit(token); err != nil {
			log.Fatalf("seed pool %s: %v", token, err)
		}
	}
	seed("BTC", btc(10_0000_0000)) // 10 BTC
	seed("DAI", dai(500_000))
	log.Println("✅ Pools seeded: 10 BTC + 500,000 DAI")

	// 5. 清算 keeper
	// -------------------------------------------------------------------------
	k := keeper.New(ledger, keeperBot, keeperReceiver)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		alerter := keeper.NewRedisAlerter(addr)
		defer alerter.Close()
		k.SetAlerter(alerter)
		log.Println("✅ Redis risk alerts enabled")
	}
	if err := k.Start(); err != nil {
		log.Fatalf("start keeper: %v", err)
	}
	defer k.Stop()

	// 临界区持仓毫秒级复核
	feed.OnUpdate(k.OnPriceChange)
	log.Println("✅ Keeper started (price-triggered rechecks wired)")

	// 6. 治理演示: 时间锁调高保证金费率
	// -------------------------------------------------------------------------
	fees := vault.DefaultFeeConfig()
	fees.MarginFeeBasisPoints = 20
	actionKey, err := timelock.Signal(govOps, "setFees(margin=20bps)", func() error {
		return ledger.SetFees(govTimelock, fees)
	})
	if err != nil {
		log.Fatalf("signal timelock: %v", err)
	}
	go func() {
		time.Sleep(4 * time.Second)
		if err := timelock.Execute(govOps, actionKey); err != nil {
			log.Printf("[Gov] execute failed: %v", err)
			return
		}
		log.Println("[Gov] 📜 Margin fee raised to 20bps via timelock")
	}()

	// 7. 行情与交易模拟
	// -------------------------------------------------------------------------
	ticker := oracle.NewTicker("BTC", 50000, 200*time.Millisecond)
	prices := ticker.Start()
	defer ticker.Stop()

	stopSim := make(chan struct{})

	// 行情泵: 前 15 秒跟随 GBM，之后强制阴跌触发清算链路
	go func() {
		crashAt := time.Now().Add(15 * time.Second)
		crashPrice := 50000.0
		crashed := false

		for {
			select {
			case <-stopSim:
				return
			case snap, ok := <-prices:
				if !ok {
					return
				}
				if !crashed && time.Now().After(crashAt) {
					crashed = true
					log.Println("[Market] 📉 FORCED DECLINE begins")
				}
				if crashed {
					crashPrice *= 0.997
					if err := feed.SetPrice("BTC", oracle.ToPricePrecision(crashPrice)); err != nil {
						log.Printf("[Market] set price: %v", err)
					}
					continue
				}
				if err := feed.SetPrice(snap.Token, snap.Price); err != nil {
					log.Printf("[Market] set price: %v", err)
				}
			}
		}
	}()

	// 交易员: 随机开高杠杆多仓，跌下来就是 keeper 的靶子
	go func() {
		tick := time.NewTicker(2 * time.Second)
		defer tick.Stop()
		trader := 0

		for {
			select {
			case <-stopSim:
				return
			case <-tick.C:
				trader++
				account := fmt.Sprintf("trader-%02d", trader%20)

				collateral := btc(rand.Int63n(50_000) + 25_000) // 0.00025 ~ 0.00075 BTC
				if err := custody.Deposit("BTC", account, collateral); err != nil {
					log.Printf("[Trader] deposit: %v", err)
					continue
				}
				leverage := rand.Int63n(20) + 10
				size := usd(collateral.Int64() * 50000 / 100_000_000 * leverage)

				err := ledger.IncreasePosition(&vault.IncreasePositionRequest{
					Sender:          account,
					Account:         account,
					CollateralToken: "BTC",
					IndexToken:      "BTC",
					SizeDelta:       size,
					IsLong:          true,
				})
				if err != nil {
					log.Printf("[Trader] %s open rejected: %v", account, err)
					continue
				}
				log.Printf("[Trader] %s opened long: %dx leverage", account, leverage)
			}
		}
	}()

	// 8. 周期巡检: keeper 统计 + 托管对账 + WAL 检查点
	// -------------------------------------------------------------------------
	go func() {
		tick := time.NewTicker(5 * time.Second)
		defer tick.Stop()

		for {
			select {
			case <-stopSim:
				return
			case <-tick.C:
				stats := k.GetStats()
				log.Printf("[Monitor] risk index: warn=%d danger=%d critical=%d queued=%d",
					stats.WarningPositions, stats.DangerPositions,
					stats.CriticalPositions, stats.QueuedTasks)

				if diffs := custody.Reconcile(ledger.ExpectedCustody()); len(diffs) > 0 {
					for _, d := range diffs {
						log.Printf("[Monitor] ⚠️ custody mismatch: %s custody=%s expected=%s",
							d.Token, d.Custody, d.Expected)
					}
				}
				if err := custody.Checkpoint(); err != nil {
					log.Printf("[Monitor] checkpoint: %v", err)
				}
			}
		}
	}()

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(stopSim)
	log.Println("🛑 Shutting down...")
}
