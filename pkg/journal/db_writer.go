// 文件: pkg/journal/db_writer.go
// 流水落库器
//
// 消费 Kafka 流水，批量写入 MySQL:
// - 批量写入提高吞吐
// - EntryID 主键天然幂等，重复消费不产生重复行
// - 定时 + 定量双触发刷新

package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vaultx.com/pkg/kafka"
)

// DBWriter 流水落库器
type DBWriter struct {
	db       *gorm.DB
	consumer *kafka.Consumer

	// 批量缓冲
	buffer    []*Entry
	bufferMu  sync.Mutex
	batchSize int
	flushCh   chan struct{}

	// 统计
	stats DBWriterStats

	// 生命周期
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DBWriterStats 写入统计
type DBWriterStats struct {
	ReceivedCount int64
	WrittenCount  int64
	ErrorCount    int64
	BatchCount    int64
}

// DBWriterConfig 配置
type DBWriterConfig struct {
	Brokers       []string
	GroupID       string
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultDBWriterConfig 默认配置
func DefaultDBWriterConfig(brokers []string) DBWriterConfig {
	return DBWriterConfig{
		Brokers:       brokers,
		GroupID:       "vault_journal_writer",
		BatchSize:     100,
		FlushInterval: 500 * time.Millisecond,
	}
}

// NewDBWriter 创建落库器
func NewDBWriter(cfg DBWriterConfig, db *gorm.DB) (*DBWriter, error) {
	ctx, cancel := context.WithCancel(context.Background())

	w := &DBWriter{
		db:        db,
		buffer:    make([]*Entry, 0, cfg.BatchSize),
		batchSize: cfg.BatchSize,
		flushCh:   make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}

	consumerCfg := kafka.DefaultConsumerConfig(
		cfg.Brokers,
		cfg.GroupID,
		[]string{TopicJournalEntries},
	)
	consumer, err := kafka.NewConsumer(consumerCfg, w.handleMessage)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	w.consumer = consumer
	return w, nil
}

// handleMessage 处理单条消息
func (w *DBWriter) handleMessage(topic string, partition int32, offset int64, key, value []byte) error {
	var entry Entry
	if err := json.Unmarshal(value, &entry); err != nil {
		w.stats.ErrorCount++
		return fmt.Errorf("unmarshal entry: %w", err)
	}

	w.stats.ReceivedCount++

	w.bufferMu.Lock()
	w.buffer = append(w.buffer, &entry)
	shouldFlush := len(w.buffer) >= w.batchSize
	w.bufferMu.Unlock()

	if shouldFlush {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// flush 刷新缓冲写入数据库
func (w *DBWriter) flush() {
	w.bufferMu.Lock()
	entries := w.buffer
	w.buffer = make([]*Entry, 0, w.batchSize)
	w.bufferMu.Unlock()

	if len(entries) == 0 {
		return
	}

	records := make([]*EntryRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, &EntryRecord{
			EntryID:   entry.EntryID,
			Type:      string(entry.Type),
			Account:   entry.Account,
			Token:     entry.Token,
			Payload:   string(entry.Payload),
			CreatedAt: entry.CreatedAt,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 主键冲突直接跳过: 重复消费产生的行已经在库里
	err := w.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(records, len(records)).Error
	if err != nil {
		w.stats.ErrorCount++
		fmt.Printf("[JournalWriter] batch insert error: %v\n", err)
		return
	}

	w.stats.WrittenCount += int64(len(entries))
	w.stats.BatchCount++
}

// Start 启动
func (w *DBWriter) Start(flushInterval time.Duration) {
	w.consumer.Start()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				w.flush() // 最后刷新一次
				return
			case <-ticker.C:
				w.flush()
			case <-w.flushCh:
				w.flush()
			}
		}
	}()
}

// Stop 停止
func (w *DBWriter) Stop() error {
	w.cancel()
	w.wg.Wait()
	return w.consumer.Stop()
}

// Stats 获取统计
func (w *DBWriter) Stats() DBWriterStats {
	return w.stats
}
