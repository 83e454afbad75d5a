// 文件: pkg/keeper/keeper.go
// 清算 keeper 引擎
//
// 职责:
// 1. 管理风险等级索引
// 2. 分级检查器: 等级越高查得越勤
// 3. 价格触发: 临界区持仓在行情变化时立即复核
// 4. 清算队列 + Worker Pool 执行
//
// 架构:
//
//	┌─────────────────────────────────────────────────┐
//	│                    Keeper                       │
//	│                                                 │
//	│  ┌─────────┐  ┌─────────┐  ┌─────────┐          │
//	│  │ Scanner │  │ Checkers│  │ Workers │          │
//	│  └────┬────┘  └────┬────┘  └────┬────┘          │
//	│       │            │            │               │
//	│       └────────────┴────────────┘               │
//	│                RiskLevelIndex                   │
//	└─────────────────────────────────────────────────┘

package keeper

import (
	"log"
	"math/big"
	"sync"
	"time"

	"vaultx.com/pkg/vault"
)

const (
	// 各等级检查间隔
	CheckIntervalWarning  = 5 * time.Second
	CheckIntervalDanger   = 2 * time.Second
	CheckIntervalCritical = 500 * time.Millisecond

	// 清算执行配置
	LiquidationWorkers   = 10
	LiquidationQueueSize = 100
)

// Alerter 风险告警接口 (可选注入，见 alerts.go)
type Alerter interface {
	Alert(data PositionRiskData)
}

// Keeper 清算 keeper
type Keeper struct {
	index   *RiskLevelIndex
	scanner *Scanner
	vault   *vault.Vault

	// liquidator 调用账本清算接口的身份 (私有清算模式下须在账本白名单)
	liquidator string
	// feeReceiver 清算费收款账户
	feeReceiver string

	alerter Alerter

	liquidationQueue chan LiquidationTask

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// New 创建 keeper
func New(v *vault.Vault, liquidator, feeReceiver string) *Keeper {
	k := &Keeper{
		index:            NewRiskLevelIndex(),
		vault:            v,
		liquidator:       liquidator,
		feeReceiver:      feeReceiver,
		liquidationQueue: make(chan LiquidationTask, LiquidationQueueSize),
		stopCh:           make(chan struct{}),
	}
	k.scanner = NewScanner(k.index, v, k.enqueue)
	return k
}

// SetAlerter 注入告警器
func (k *Keeper) SetAlerter(a Alerter) {
	k.alerter = a
}

// Index 暴露索引 (监控面板用)
func (k *Keeper) Index() *RiskLevelIndex {
	return k.index
}

// Start 启动: 扫描器 + 三级检查器 + Worker Pool
func (k *Keeper) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.running {
		return nil
	}
	k.running = true
	k.stopCh = make(chan struct{})

	k.scanner.Start()

	k.startChecker(RiskLevelWarning, CheckIntervalWarning)
	k.startChecker(RiskLevelDanger, CheckIntervalDanger)
	k.startChecker(RiskLevelCritical, CheckIntervalCritical)

	k.startWorkers()

	log.Println("[Keeper] Started")
	return nil
}

// Stop 停止
func (k *Keeper) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.running {
		return
	}

	close(k.stopCh)
	k.scanner.Stop()
	close(k.liquidationQueue)
	k.wg.Wait()

	k.running = false
	log.Println("[Keeper] Stopped")
}

// =============================================================================
// 检查器
// =============================================================================

func (k *Keeper) startChecker(level RiskLevel, interval time.Duration) {
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-k.stopCh:
				return
			case <-ticker.C:
				k.checkLevel(level)
			}
		}
	}()
	log.Printf("[Keeper] Checker started: level=%s, interval=%v", level, interval)
}

// checkLevel 复核某等级的所有持仓
func (k *Keeper) checkLevel(level RiskLevel) {
	positions := k.index.GetByLevel(level)
	if len(positions) == 0 {
		return
	}

	liquidationFee := k.vault.LiquidationFeeUSD()
	for _, data := range positions {
		k.recheck(data, liquidationFee)
	}
}

// recheck 重算单个持仓的风险并处理等级变化
func (k *Keeper) recheck(data PositionRiskData, liquidationFee *big.Int) {
	info, err := k.vault.GetRiskInfo(data.Key)
	if err != nil {
		// 持仓已不存在 (被平/被清算)，移出索引
		k.index.UpdatePosition(PositionRiskData{Key: data.Key, RiskRatio: 0})
		return
	}

	ratio := RiskRatio(info, liquidationFee)
	newLevel := CalculateRiskLevel(ratio)
	oldLevel := data.Level

	data.RiskRatio = ratio
	data.State = info.State
	data.UpdatedAt = time.Now().UnixNano()

	if newLevel == oldLevel {
		k.index.UpdatePosition(data)
		return
	}

	log.Printf("[Keeper] Position %s level changed: %s -> %s (riskRatio=%.4f)",
		data.Key, oldLevel, newLevel, ratio)

	switch newLevel {
	case RiskLevelLiquidate:
		k.enqueue(LiquidationTask{
			Key:       data.Key,
			RiskRatio: ratio,
			State:     info.State,
			CreatedAt: time.Now(),
		})
		// 从索引移除，清算结果由下轮扫描确认
		k.index.UpdatePosition(PositionRiskData{Key: data.Key, RiskRatio: 0})
	case RiskLevelSafe:
		k.index.UpdatePosition(PositionRiskData{Key: data.Key, RiskRatio: 0})
	default:
		data.Level = newLevel
		k.index.UpdatePosition(data)
		if k.alerter != nil && newLevel > oldLevel {
			k.alerter.Alert(data)
		}
	}
}

// =============================================================================
// 清算执行
// =============================================================================

// enqueue 任务入队 (非阻塞，队列满了丢弃，下轮扫描兜底)
func (k *Keeper) enqueue(task LiquidationTask) {
	select {
	case k.liquidationQueue <- task:
		log.Printf("[Keeper] Liquidation task queued: %s riskRatio=%.4f",
			task.Key, task.RiskRatio)
	default:
		log.Printf("[Keeper] WARNING: liquidation queue full, task dropped: %s", task.Key)
	}
}

func (k *Keeper) startWorkers() {
	for i := 0; i < LiquidationWorkers; i++ {
		k.wg.Add(1)
		go func(workerID int) {
			defer k.wg.Done()
			k.runWorker(workerID)
		}(i)
	}
	log.Printf("[Keeper] %d liquidation workers started", LiquidationWorkers)
}

func (k *Keeper) runWorker(workerID int) {
	for task := range k.liquidationQueue {
		err := k.vault.LiquidatePosition(&vault.LiquidatePositionRequest{
			Liquidator:      k.liquidator,
			Account:         task.Key.Account,
			CollateralToken: task.Key.CollateralToken,
			IndexToken:      task.Key.IndexToken,
			IsLong:          task.Key.IsLong,
			FeeReceiver:     k.feeReceiver,
		})
		if err != nil {
			// 常见于价格回暖: 入队时可清算，执行时已健康
			log.Printf("[Worker-%d] Liquidation skipped: %s, err=%v", workerID, task.Key, err)
			continue
		}
		log.Printf("[Worker-%d] Liquidated: %s riskRatio=%.4f", workerID, task.Key, task.RiskRatio)
	}
}

// =============================================================================
// 价格触发 (临界区)
// =============================================================================

// OnPriceChange 行情回调，复核持有该标的的临界区持仓
//
// 挂到 oracle.Feed.OnUpdate 上，实现毫秒级触发。
func (k *Keeper) OnPriceChange(indexToken string, _, _ *big.Int) {
	keys := k.index.GetKeysByToken(indexToken)
	if len(keys) == 0 {
		return
	}

	liquidationFee := k.vault.LiquidationFeeUSD()
	for _, key := range keys {
		data, ok := k.index.GetPosition(key)
		if !ok || data.Level != RiskLevelCritical {
			continue
		}
		k.recheck(data, liquidationFee)
	}
}

// =============================================================================
// 监控接口
// =============================================================================

// Stats 引擎统计
type Stats struct {
	TotalHighRisk     int
	WarningPositions  int
	DangerPositions   int
	CriticalPositions int
	QueuedTasks       int
}

// GetStats 获取统计信息
func (k *Keeper) GetStats() Stats {
	return Stats{
		TotalHighRisk:     k.index.TotalCount(),
		WarningPositions:  len(k.index.GetByLevel(RiskLevelWarning)),
		DangerPositions:   len(k.index.GetByLevel(RiskLevelDanger)),
		CriticalPositions: len(k.index.GetByLevel(RiskLevelCritical)),
		QueuedTasks:       len(k.liquidationQueue),
	}
}
