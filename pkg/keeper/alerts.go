// 文件: pkg/keeper/alerts.go
// 风险升级告警 (Redis 实现)
//
// 持仓风险等级上升时向 Redis 频道推送告警，下游 (通知服务 / 监控面板)
// 订阅 vault:risk:alerts 即可。
// 用 SetNX 做冷却去重，防止价格在阈值附近打摆子时告警刷屏。

package keeper

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// AlertChannel 告警推送频道
	AlertChannel = "vault:risk:alerts"

	// alertCooldown 同一持仓同一等级的告警冷却时间
	alertCooldown = 60 * time.Second

	alertOpTimeout = 500 * time.Millisecond
)

// RiskAlert 推送给下游的告警消息
type RiskAlert struct {
	Account         string  `json:"account"`
	CollateralToken string  `json:"collateral_token"`
	IndexToken      string  `json:"index_token"`
	IsLong          bool    `json:"is_long"`
	Level           string  `json:"level"`
	RiskRatio       float64 `json:"risk_ratio"`
	Timestamp       int64   `json:"timestamp"`
}

// RedisAlerter 实现 Alerter
type RedisAlerter struct {
	client *redis.Client
}

func NewRedisAlerter(addr string) *RedisAlerter {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisAlerter{client: rdb}
}

// NewRedisAlerterWithClient 复用已有连接
func NewRedisAlerterWithClient(client *redis.Client) *RedisAlerter {
	return &RedisAlerter{client: client}
}

// Alert 推送风险升级告警
//
// 告警是尽力而为: Redis 不可用只记日志，不影响清算主链路。
func (a *RedisAlerter) Alert(data PositionRiskData) {
	ctx, cancel := context.WithTimeout(context.Background(), alertOpTimeout)
	defer cancel()

	// 冷却: key 带等级，升级到更高等级时仍会告警
	cooldownKey := "vault:risk:cooldown:" + data.Key.String() + ":" + data.Level.String()
	allowed, err := a.client.SetNX(ctx, cooldownKey, "1", alertCooldown).Result()
	if err != nil {
		log.Printf("[Alerter] cooldown check failed: %v", err)
		return
	}
	if !allowed {
		return // 冷却中
	}

	msg := RiskAlert{
		Account:         data.Key.Account,
		CollateralToken: data.Key.CollateralToken,
		IndexToken:      data.Key.IndexToken,
		IsLong:          data.Key.IsLong,
		Level:           data.Level.String(),
		RiskRatio:       data.RiskRatio,
		Timestamp:       time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	if err := a.client.Publish(ctx, AlertChannel, payload).Err(); err != nil {
		log.Printf("[Alerter] publish failed: %v", err)
	}
}

// Close 关闭 Redis 连接
func (a *RedisAlerter) Close() error {
	return a.client.Close()
}
