// 文件: pkg/vault/errors.go
// 错误分类
//
// 【设计】每一种拒绝原因都是一个独立的、文案稳定的错误值。
// 集成方和测试都会对错误文案做精确匹配，所以这里的字符串
// 一旦发布就不能再改。
//
// 分类 (见各分组注释):
// - 权限类: 调用者身份不对，重试无意义
// - 配置类: 代币未白名单/功能未开启，需要治理操作才能解决
// - 偿付能力类: 池子容量不足，等池子状态变化后可重试
// - 保证金类: 参数不满足杠杆/手续费约束，换参数重发
// - 状态机类: 调用方逻辑错误 (清算健康仓位等)

package vault

import "errors"

// ===== 权限类 =====
var (
	ErrForbiddenSender   = errors.New("forbidden sender")
	ErrForbiddenGov      = errors.New("forbidden: not gov")
	ErrInvalidLiquidator = errors.New("invalid liquidator")
	ErrGasPriceExceeded  = errors.New("max gas price exceeded")
)

// ===== 配置类 =====
var (
	ErrLeverageNotEnabled  = errors.New("leverage not enabled")
	ErrSwapsNotEnabled     = errors.New("swaps not enabled")
	ErrTokenNotWhitelisted = errors.New("token not whitelisted")
	ErrTokenNotInitialized = errors.New("token config not initialized")
	ErrMismatchedTokens    = errors.New("mismatched collateral and index token")
	ErrCollateralIsStable  = errors.New("collateralToken must not be a stable token")
	ErrCollateralNotStable = errors.New("collateralToken must be a stable token")
	ErrIndexIsStable       = errors.New("indexToken must not be a stable token")
	ErrIndexNotShortable   = errors.New("indexToken not shortable")
	ErrInvalidTokenPair    = errors.New("tokenIn must not equal tokenOut")
)

// ===== 偿付能力/容量类 =====
var (
	ErrReserveExceedsPool = errors.New("reserve exceeds pool")
	ErrMaxUSDXExceeded    = errors.New("max USDX exceeded")
	ErrPoolBelowBuffer    = errors.New("poolAmount below buffer")
	ErrPoolAmountExceeded = errors.New("poolAmount exceeded")
	ErrPoolExceedsBalance = errors.New("poolAmount exceeds balance")
	ErrInsufficientUSDX   = errors.New("insufficient USDX balance")
)

// ===== 保证金/抵押类 =====
var (
	ErrInsufficientCollateralForFees   = errors.New("insufficient collateral for fees")
	ErrLossesExceedCollateral          = errors.New("losses exceed collateral")
	ErrFeesExceedCollateral            = errors.New("fees exceed collateral")
	ErrLiquidationFeesExceedCollateral = errors.New("liquidation fees exceed collateral")
	ErrMaxLeverageExceeded             = errors.New("maxLeverage exceeded")
	ErrSizeBelowCollateral             = errors.New("size must be more than collateral")
	ErrCollateralNotWithdrawn          = errors.New("collateral should be withdrawn")
)

// ===== 状态机类 =====
var (
	ErrEmptyPosition              = errors.New("empty position")
	ErrPositionSizeExceeded       = errors.New("position size exceeded")
	ErrPositionCollateralExceeded = errors.New("position collateral exceeded")
	ErrPositionHealthy            = errors.New("position cannot be liquidated")
)

// ===== 参数类 =====
var (
	ErrInvalidAmountIn     = errors.New("invalid amountIn")
	ErrInvalidAmountOut    = errors.New("invalid amountOut")
	ErrInvalidUSDXAmount   = errors.New("invalid USDX amount")
	ErrInvalidRedemption   = errors.New("invalid redemption amount")
	ErrInvalidAveragePrice = errors.New("invalid average price")
)
