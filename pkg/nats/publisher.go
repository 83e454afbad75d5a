// 文件: pkg/nats/publisher.go
// NATS 发布者 - 账本事件扇出
//
// 账本的事件走 NATS 广播: 流水录制器、风控、行情推送各自订阅。
// 易逝语义，订阅方掉线错过的事件不补，可靠落库走 Kafka 链路。

package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher NATS 发布者，实现 vault.EventPublisher
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher 创建发布者
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("vaultx-publisher"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// Publish 发布 JSON 消息
func (p *Publisher) Publish(subject string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.conn.Publish(subject, bytes)
}

// PublishRaw 发布原始消息
func (p *Publisher) PublishRaw(subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

// Close 关闭连接
func (p *Publisher) Close() {
	p.conn.Close()
}
