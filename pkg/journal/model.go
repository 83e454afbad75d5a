// 文件: pkg/journal/model.go
// 账本流水 - 模型定义
//
// 账本每个成功操作产出一条流水，链路:
//
//	vault --NATS--> Recorder --Kafka--> DBWriter --> MySQL
//
// NATS 管实时扇出 (风控/告警/行情)，Kafka 管可靠落库:
// 流水是审计数据，不能因为消费端重启而丢。

package journal

import (
	"encoding/json"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Kafka Topic
const TopicJournalEntries = "vault_journal_entries"

// EntryType 流水类型，与账本事件主题一一对应
type EntryType string

const (
	EntryIncrease  EntryType = "INCREASE"
	EntryDecrease  EntryType = "DECREASE"
	EntryClose     EntryType = "CLOSE"
	EntryLiquidate EntryType = "LIQUIDATE"
	EntrySwap      EntryType = "SWAP"
	EntryBuyUSDX   EntryType = "BUY_USDX"
	EntrySellUSDX  EntryType = "SELL_USDX"
	EntryDeposit   EntryType = "POOL_DEPOSIT"
)

// Entry 一条流水
type Entry struct {
	EntryID   int64           `json:"entry_id"` // 雪花 ID，全局有序
	Type      EntryType       `json:"type"`
	Account   string          `json:"account"`
	Token     string          `json:"token"`      // 主币种 (抵押币/换入币)
	Payload   json.RawMessage `json:"payload"`    // 原始账本事件
	CreatedAt int64           `json:"created_at"` // 毫秒
}

// Topic 实现 kafka.Message
func (e *Entry) Topic() string {
	return TopicJournalEntries
}

// Key 按账户分区，同一账户的流水落在同一分区保持有序
func (e *Entry) Key() string {
	return e.Account
}

// Value 实现 kafka.Message
func (e *Entry) Value() ([]byte, error) {
	return json.Marshal(e)
}

// EntryRecord 流水表行
type EntryRecord struct {
	EntryID   int64  `gorm:"primaryKey;autoIncrement:false;column:entry_id"`
	Type      string `gorm:"column:type;type:varchar(16);index"`
	Account   string `gorm:"column:account;type:varchar(64);index"`
	Token     string `gorm:"column:token;type:varchar(32)"`
	Payload   string `gorm:"column:payload;type:json"`
	CreatedAt int64  `gorm:"column:created_at;index"`
}

// TableName GORM 表名
func (EntryRecord) TableName() string {
	return "vault_journal_entries"
}

// =============================================================================
// 雪花 ID
// =============================================================================

var (
	node     *snowflake.Node
	initOnce sync.Once
)

// InitSnowflake 初始化雪花算法
// nodeID: 节点ID (0-1023)
func InitSnowflake(nodeID int64) error {
	var err error
	initOnce.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// NextEntryID 生成流水 ID
func NextEntryID() int64 {
	if node == nil {
		// 未初始化则使用默认节点0
		InitSnowflake(0)
	}
	return node.Generate().Int64()
}
