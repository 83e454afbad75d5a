// 文件: pkg/journal/recorder.go
// 流水录制器 - NATS 到 Kafka 的桥
//
// 订阅账本的 NATS 事件，编号后转投 Kafka。账本事件在 NATS 上
// 是易逝的，经过这里才变成可靠的审计流。

package journal

import (
	"encoding/json"
	"sync"
	"time"

	"vaultx.com/pkg/kafka"
	"vaultx.com/pkg/nats"
	"vaultx.com/pkg/vault"
)

// 主题到流水类型的映射
var subjectTypes = map[string]EntryType{
	vault.SubjectIncreasePosition:  EntryIncrease,
	vault.SubjectDecreasePosition:  EntryDecrease,
	vault.SubjectClosePosition:     EntryClose,
	vault.SubjectLiquidatePosition: EntryLiquidate,
	vault.SubjectSwap:              EntrySwap,
	vault.SubjectBuyUSDX:           EntryBuyUSDX,
	vault.SubjectSellUSDX:          EntrySellUSDX,
	vault.SubjectDirectPoolDeposit: EntryDeposit,
}

// Recorder 流水录制器
type Recorder struct {
	subscriber *nats.Subscriber
	producer   *kafka.Producer

	// 统计
	stats struct {
		Received int64
		Produced int64
		Errors   int64
	}
	mu sync.Mutex
}

// NewRecorder 创建录制器
func NewRecorder(natsURL string, brokers []string) (*Recorder, error) {
	producer, err := kafka.NewProducer(kafka.DefaultProducerConfig(brokers))
	if err != nil {
		return nil, err
	}

	r := &Recorder{producer: producer}
	subscriber, err := nats.NewSubscriber(natsURL, r.handleMessage)
	if err != nil {
		producer.Close()
		return nil, err
	}
	r.subscriber = subscriber
	return r, nil
}

// Start 开始录制
//
// 队列订阅: 多实例部署时同一条事件只被一个录制器处理。
func (r *Recorder) Start() error {
	for subject := range subjectTypes {
		if err := r.subscriber.SubscribeQueue(subject, "journal-recorder"); err != nil {
			return err
		}
	}
	return nil
}

// Stop 停止
func (r *Recorder) Stop() error {
	if err := r.subscriber.Close(); err != nil {
		return err
	}
	return r.producer.Close()
}

// handleMessage 处理一条账本事件
func (r *Recorder) handleMessage(subject string, data []byte) error {
	entryType, ok := subjectTypes[subject]
	if !ok {
		return nil // 不关心的主题
	}

	r.mu.Lock()
	r.stats.Received++
	r.mu.Unlock()

	// 账户和币种字段各事件都有，用宽松结构提取
	var head struct {
		Account string `json:"account"`
		Token   string `json:"token"`
		// 持仓类事件用 collateral_token，换汇用 token_in
		CollateralToken string `json:"collateral_token"`
		TokenIn         string `json:"token_in"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		r.mu.Lock()
		r.stats.Errors++
		r.mu.Unlock()
		return err
	}
	token := head.Token
	if token == "" {
		token = head.CollateralToken
	}
	if token == "" {
		token = head.TokenIn
	}

	entry := &Entry{
		EntryID:   NextEntryID(),
		Type:      entryType,
		Account:   head.Account,
		Token:     token,
		Payload:   json.RawMessage(data),
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := r.producer.Send(entry); err != nil {
		r.mu.Lock()
		r.stats.Errors++
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.stats.Produced++
	r.mu.Unlock()
	return nil
}
