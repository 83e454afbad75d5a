// 文件: pkg/oracle/nats_source.go
// NATS 价格接入
//
// 订阅外部指数服务发布的价格更新，推进本地价格源。
// 账本进程和指数计算进程解耦，价格链路:
//
//	指数服务 --NATS--> Source --> Feed --> vault.GetPrice

package oracle

import (
	"fmt"
	"math/big"

	vnats "vaultx.com/pkg/nats"
)

// SubjectPrices 价格主题前缀，完整主题为 vault.prices.{token}
const SubjectPrices = "vault.prices"

// PriceUpdate 价格更新消息
type PriceUpdate struct {
	Token string `json:"token"`
	Price string `json:"price"` // 30 位小数定点，十进制字符串
	Ts    int64  `json:"ts"`    // 毫秒
}

// PriceSubject 某币种的完整价格主题
func PriceSubject(token string) string {
	return fmt.Sprintf("%s.%s", SubjectPrices, token)
}

// Source NATS 价格接入器
type Source struct {
	feed *Feed
	sub  *vnats.Subscriber
}

// NewSource 创建接入器并开始订阅
func NewSource(url string, feed *Feed) (*Source, error) {
	s := &Source{feed: feed}

	sub, err := vnats.NewSubscriber(url, s.handle)
	if err != nil {
		return nil, err
	}
	if err := sub.Subscribe(SubjectPrices + ".*"); err != nil {
		sub.Close()
		return nil, err
	}
	s.sub = sub
	return s, nil
}

// handle 消息处理
func (s *Source) handle(subject string, data []byte) error {
	update, err := vnats.UnmarshalJSON[PriceUpdate](data)
	if err != nil {
		return err
	}
	price, ok := new(big.Int).SetString(update.Price, 10)
	if !ok {
		return fmt.Errorf("malformed price %q for %s", update.Price, update.Token)
	}
	return s.feed.SetPrice(update.Token, price)
}

// Close 停止订阅
func (s *Source) Close() error {
	return s.sub.Close()
}
