// 文件: pkg/oracle/ticker.go
// 模拟行情生成器
//
// 用几何布朗运动 (GBM) 生成逼真价格，喂给价格源做本地联调
// 和压测。生产部署时换成真实指数源，Feed 接口不变。

package oracle

import (
	"math"
	"math/big"
	"math/rand"
	"time"
)

// PriceSnapshot 一条生成的行情
type PriceSnapshot struct {
	Token string
	Price *big.Int // 30 位小数定点
	Ts    time.Time
}

// Ticker 模拟行情生成器
type Ticker struct {
	Token    string
	Price    float64 // 当前价格 (内部用浮点演化，出口转定点)
	Interval time.Duration

	// Volatility 年化波动率 (0.5 = 50%，加密资产典型值)
	Volatility float64

	stopChan chan struct{}
	outChan  chan PriceSnapshot

	lastUpdated time.Time
}

// NewTicker 创建行情生成器
func NewTicker(token string, startPrice float64, interval time.Duration) *Ticker {
	return &Ticker{
		Token:      token,
		Price:      startPrice,
		Volatility: 0.5,
		Interval:   interval,
		stopChan:   make(chan struct{}),
		// 缓冲抵抗下游短暂停顿 (如 GC pause)
		outChan:     make(chan PriceSnapshot, 100),
		lastUpdated: time.Now(),
	}
}

// Start 启动，返回只读行情通道
func (t *Ticker) Start() <-chan PriceSnapshot {
	go t.loop()
	return t.outChan
}

// Stop 停止
func (t *Ticker) Stop() {
	close(t.stopChan)
}

func (t *Ticker) loop() {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	defer close(t.outChan)

	// 独立随机源: 全局 rand 内部带锁，高频下是瓶颈
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-t.stopChan:
			return

		case now := <-ticker.C:
			// dt 按年化，GBM: S_new = S * exp(-0.5σ²dt + σ√dt·Z)
			// 乘法演化保证价格恒正，且符合对数正态分布
			dt := now.Sub(t.lastUpdated).Hours() / 24 / 365
			if dt <= 0 {
				dt = 1e-9
			}

			sigma := t.Volatility
			z := r.NormFloat64()
			change := math.Exp(-0.5*sigma*sigma*dt + sigma*math.Sqrt(dt)*z)
			t.Price *= change
			t.lastUpdated = now

			snap := PriceSnapshot{
				Token: t.Token,
				Price: ToPricePrecision(t.Price),
				Ts:    now,
			}

			// 非阻塞发送: 行情是易逝数据，下游追不上就丢，
			// 绝不让生产者卡死
			select {
			case t.outChan <- snap:
			default:
			}
		}
	}
}
