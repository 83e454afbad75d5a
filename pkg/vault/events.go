// 文件: pkg/vault/events.go
// 账本事件
//
// 每个改变账本状态的操作成功后发布一条事件 (NATS JetStream)，
// 下游的流水落库、风控指数、告警都靠订阅这些主题驱动。
// 金额字段统一用 *big.Int，经 json 序列化成十进制字符串。

package vault

import "math/big"

// NATS 主题，与 pkg/nats 的 stream 配置对应
const (
	SubjectIncreasePosition  = "vault.position.increase"
	SubjectDecreasePosition  = "vault.position.decrease"
	SubjectClosePosition     = "vault.position.close"
	SubjectLiquidatePosition = "vault.position.liquidate"
	SubjectSwap              = "vault.swap"
	SubjectBuyUSDX           = "vault.usdx.buy"
	SubjectSellUSDX          = "vault.usdx.sell"
	SubjectDirectPoolDeposit = "vault.pool.deposit"
	SubjectCollectMarginFees = "vault.fees.margin"
	SubjectUpdateFundingRate = "vault.funding.update"
	SubjectPositionUpdated   = "vault.position.updated"
	SubjectPoolUpdated       = "vault.pool.updated"
)

// IncreasePositionEvent 加仓事件
type IncreasePositionEvent struct {
	Account         string   `json:"account"`
	CollateralToken string   `json:"collateral_token"`
	IndexToken      string   `json:"index_token"`
	IsLong          bool     `json:"is_long"`
	CollateralDelta *big.Int `json:"collateral_delta"` // 本次入金 (USD)
	SizeDelta       *big.Int `json:"size_delta"`       // 名义仓位增量 (USD)
	Price           *big.Int `json:"price"`            // 成交标记价
	Fee             *big.Int `json:"fee"`              // 保证金费 (USD)
}

// DecreasePositionEvent 减仓事件 (含全平)
type DecreasePositionEvent struct {
	Account         string   `json:"account"`
	CollateralToken string   `json:"collateral_token"`
	IndexToken      string   `json:"index_token"`
	IsLong          bool     `json:"is_long"`
	CollateralDelta *big.Int `json:"collateral_delta"`
	SizeDelta       *big.Int `json:"size_delta"`
	Price           *big.Int `json:"price"`
	Fee             *big.Int `json:"fee"`
	UsdOut          *big.Int `json:"usd_out"` // 税前应付 (USD)
	RealisedPnl     *big.Int `json:"realised_pnl"`
	HasProfit       bool     `json:"has_profit"`
}

// LiquidatePositionEvent 清算事件
type LiquidatePositionEvent struct {
	Account         string   `json:"account"`
	CollateralToken string   `json:"collateral_token"`
	IndexToken      string   `json:"index_token"`
	IsLong          bool     `json:"is_long"`
	Size            *big.Int `json:"size"`
	Collateral      *big.Int `json:"collateral"`
	ReserveAmount   *big.Int `json:"reserve_amount"`
	RealisedPnl     *big.Int `json:"realised_pnl"`
	MarkPrice       *big.Int `json:"mark_price"`
	Liquidator      string   `json:"liquidator"`
}

// SwapEvent 换汇事件
type SwapEvent struct {
	Account            string   `json:"account"`
	TokenIn            string   `json:"token_in"`
	TokenOut           string   `json:"token_out"`
	AmountIn           *big.Int `json:"amount_in"`
	AmountOut          *big.Int `json:"amount_out"`
	AmountOutAfterFees *big.Int `json:"amount_out_after_fees"`
	FeeBasisPoints     int64    `json:"fee_basis_points"`
}

// BuyUSDXEvent 铸入事件
type BuyUSDXEvent struct {
	Account        string   `json:"account"`
	Token          string   `json:"token"`
	TokenAmount    *big.Int `json:"token_amount"`
	USDXAmount     *big.Int `json:"usdx_amount"`
	FeeBasisPoints int64    `json:"fee_basis_points"`
}

// SellUSDXEvent 赎回事件
type SellUSDXEvent struct {
	Account        string   `json:"account"`
	Token          string   `json:"token"`
	USDXAmount     *big.Int `json:"usdx_amount"`
	TokenAmount    *big.Int `json:"token_amount"`
	FeeBasisPoints int64    `json:"fee_basis_points"`
}

// DirectPoolDepositEvent 无偿注入事件
type DirectPoolDepositEvent struct {
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

// UpdateFundingRateEvent 资金费率推进事件
type UpdateFundingRateEvent struct {
	Token                 string   `json:"token"`
	CumulativeFundingRate *big.Int `json:"cumulative_funding_rate"`
}

// PositionSnapshotEvent 持仓写穿事件，供缓存层与风控索引刷新
type PositionSnapshotEvent struct {
	Key      string    `json:"key"`
	Position *Position `json:"position"` // nil 表示持仓已删除
}

// PoolSnapshotEvent 池子写穿事件
type PoolSnapshotEvent struct {
	Token string     `json:"token"`
	Pool  *PoolState `json:"pool"`
}
