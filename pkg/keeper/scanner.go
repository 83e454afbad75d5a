// 文件: pkg/keeper/scanner.go
// 风险扫描器
//
// 定期全量扫描账本持仓，算风险率，分级入索引。
// 全量扫描是兜底: 增量触发 (价格回调、定级检查) 漏掉的
// 状态漂移，最迟一个扫描周期内被纠正。

package keeper

import (
	"log"
	"sync"
	"time"

	"vaultx.com/pkg/vault"
)

// DefaultScanInterval 默认全量扫描间隔
const DefaultScanInterval = 5 * time.Second

// Scanner 风险扫描器
type Scanner struct {
	index *RiskLevelIndex
	vault *vault.Vault

	// onLiquidate 扫描发现可清算持仓时的回调 (进清算队列)
	onLiquidate func(task LiquidationTask)

	scanInterval time.Duration
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewScanner 创建扫描器
func NewScanner(index *RiskLevelIndex, v *vault.Vault, onLiquidate func(LiquidationTask)) *Scanner {
	return &Scanner{
		index:        index,
		vault:        v,
		onLiquidate:  onLiquidate,
		scanInterval: DefaultScanInterval,
		stopCh:       make(chan struct{}),
	}
}

// SetScanInterval 设置扫描间隔
func (s *Scanner) SetScanInterval(d time.Duration) {
	if d > 0 {
		s.scanInterval = d
	}
}

// Start 启动
func (s *Scanner) Start() {
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop()
	}()

	log.Printf("[Scanner] Started with interval=%v", s.scanInterval)
}

// Stop 停止
func (s *Scanner) Stop() {
	if !s.running {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	s.running = false
	log.Println("[Scanner] Stopped")
}

func (s *Scanner) runLoop() {
	// 启动时立即扫一次
	s.Scan()

	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Scan()
		}
	}
}

// Scan 执行一次全量扫描
func (s *Scanner) Scan() {
	startTime := time.Now()
	scanTime := startTime.UnixNano()

	positions := s.vault.Positions()
	if len(positions) == 0 {
		return
	}

	liquidationFee := s.vault.LiquidationFeeUSD()

	levelWarning := make([]PositionRiskData, 0)
	levelDanger := make([]PositionRiskData, 0)
	levelCritical := make([]PositionRiskData, 0)
	all := make([]PositionRiskData, 0, len(positions))

	for key := range positions {
		info, err := s.vault.GetRiskInfo(key)
		if err != nil {
			// 价格缺失或持仓刚被平掉，下轮再看
			continue
		}

		data := PositionRiskData{
			Key:       key,
			RiskRatio: RiskRatio(info, liquidationFee),
			State:     info.State,
			UpdatedAt: scanTime,
		}
		data.Level = CalculateRiskLevel(data.RiskRatio)

		switch data.Level {
		case RiskLevelWarning:
			levelWarning = append(levelWarning, data)
		case RiskLevelDanger:
			levelDanger = append(levelDanger, data)
		case RiskLevelCritical:
			levelCritical = append(levelCritical, data)
		case RiskLevelLiquidate:
			if s.onLiquidate != nil {
				s.onLiquidate(LiquidationTask{
					Key:       key,
					RiskRatio: data.RiskRatio,
					State:     data.State,
					CreatedAt: startTime,
				})
			}
		}
		if data.Level != RiskLevelSafe && data.Level != RiskLevelLiquidate {
			all = append(all, data)
		}
	}

	s.index.BatchUpdateLevel(RiskLevelWarning, levelWarning)
	s.index.BatchUpdateLevel(RiskLevelDanger, levelDanger)
	s.index.BatchUpdateLevel(RiskLevelCritical, levelCritical)
	s.index.RebuildTokenIndex(all)

	log.Printf("[Scanner] Scanned %d positions in %v: warn=%d danger=%d critical=%d",
		len(positions), time.Since(startTime),
		len(levelWarning), len(levelDanger), len(levelCritical))
}
