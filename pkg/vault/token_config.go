// 文件: pkg/vault/token_config.go
// 代币配置定义
//
// 【设计】
// 每个白名单代币一份配置，创建后只通过治理入口整体替换，
// 一次操作内不会出现前后不一致的读取。
// 稳定币 (isStable) 与非稳定币在开仓校验、换汇手续费上走不同分支，
// 这个 "代币类别" 在操作开始时解析一次，不在中途反复查询。

package vault

import (
	"errors"
	"math/big"
)

// =============================================================================
// TokenConfig - 代币配置 (核心结构)
// =============================================================================

// TokenConfig 白名单代币配置
//
// 决定了:
// - 该代币的原始单位精度 (decimals)
// - 能否做空/充当稳定抵押
// - 动态费率的目标权重
// - USDX 债务上限
type TokenConfig struct {
	// ===== 标识 =====
	Token    string // 代币符号，如 "BTC"
	Decimals int    // 原始单位小数位，如 BTC=8, DAI=18

	// ===== 类别 =====
	IsStable    bool // 稳定币: 可作为空头抵押，不可开多
	IsShortable bool // 可作为做空标的 (仅非稳定币)

	// ===== 权重与上限 =====
	Weight        int64    // 目标池权重 (动态费率用)
	MaxUSDXAmount *big.Int // USDX 债务上限，0 表示不限制 (软上限)

	// ===== 最小盈利门槛 =====
	// 开仓后 minProfitTime 内，涨跌幅不超过 MinProfitBasisPoints
	// 的盈利按 0 处理，防止同块闪电套利
	MinProfitBasisPoints int64
}

// ValidateTokenConfig 校验代币配置
func ValidateTokenConfig(cfg *TokenConfig) error {
	if cfg.Token == "" {
		return errors.New("token symbol is required")
	}
	if cfg.Decimals <= 0 || cfg.Decimals > 30 {
		return errors.New("token decimals must be between 1 and 30")
	}
	if cfg.Weight <= 0 {
		return errors.New("token weight must be positive")
	}
	if cfg.IsStable && cfg.IsShortable {
		return errors.New("stable token cannot be shortable")
	}
	if cfg.MinProfitBasisPoints < 0 || cfg.MinProfitBasisPoints >= BasisPointsDivisor {
		return errors.New("minProfitBasisPoints out of range")
	}
	if cfg.MaxUSDXAmount == nil {
		cfg.MaxUSDXAmount = new(big.Int)
	}
	return nil
}

// =============================================================================
// FeeConfig - 手续费配置
// =============================================================================

// FeeConfig 手续费档位 (全部万分比)
//
// 档位是配置不是常量: 默认值对应 50/10/4/30/4/10 的测试档
type FeeConfig struct {
	TaxBasisPoints           int64 // 非稳定币动态税
	StableTaxBasisPoints     int64 // 稳定币动态税
	MintBurnFeeBasisPoints   int64 // USDX 铸造/销毁基础费
	SwapFeeBasisPoints       int64 // 换汇基础费
	StableSwapFeeBasisPoints int64 // 稳定币互换基础费
	MarginFeeBasisPoints     int64 // 保证金费 (按名义仓位收)

	// LiquidationFeeUSD 固定清算费 (30 位小数 USD)，付给清算人
	LiquidationFeeUSD *big.Int

	// HasDynamicFees 是否启用按目标权重调整的动态费率
	HasDynamicFees bool
}

// DefaultFeeConfig 默认手续费档位
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		TaxBasisPoints:           50,
		StableTaxBasisPoints:     10,
		MintBurnFeeBasisPoints:   4,
		SwapFeeBasisPoints:       30,
		StableSwapFeeBasisPoints: 4,
		MarginFeeBasisPoints:     10,
		LiquidationFeeUSD:        mulDiv(bigInt(5), PricePrecision, bigInt(1)),
		HasDynamicFees:           false,
	}
}

// ValidateFeeConfig 校验手续费配置
func ValidateFeeConfig(cfg *FeeConfig) error {
	const maxFeeBasisPoints = 500 // 5%
	for _, bps := range []int64{
		cfg.TaxBasisPoints, cfg.StableTaxBasisPoints,
		cfg.MintBurnFeeBasisPoints, cfg.SwapFeeBasisPoints,
		cfg.StableSwapFeeBasisPoints, cfg.MarginFeeBasisPoints,
	} {
		if bps < 0 || bps > maxFeeBasisPoints {
			return errors.New("fee basis points out of range")
		}
	}
	if cfg.LiquidationFeeUSD == nil || cfg.LiquidationFeeUSD.Sign() < 0 {
		return errors.New("liquidation fee must be non-negative")
	}
	return nil
}

// =============================================================================
// Config - 账本全局配置
// =============================================================================

// Config 账本全局参数
//
// 治理通过 pkg/gov 的两阶段时间锁修改；一次账本操作执行期间
// 配置不会变 (全程持有账本锁)
type Config struct {
	Fees FeeConfig

	// MaxLeverage 最大杠杆 (万分比: 500000 = 50x)
	MaxLeverage int64

	// MinProfitTime 最小盈利时间窗 (秒)
	MinProfitTime int64

	// FundingInterval 资金费率累计间隔 (秒)
	FundingInterval int64
	// FundingRateFactor 资金费率系数 (FundingRatePrecision 精度)
	FundingRateFactor int64
	// StableFundingRateFactor 稳定币抵押的资金费率系数
	StableFundingRateFactor int64

	// 功能开关
	IsLeverageEnabled bool
	IsSwapEnabled     bool

	// InPrivateLiquidationMode 开启后只有白名单清算人可以清算
	InPrivateLiquidationMode bool

	// MaxGasPrice 防 DoS: 操作声明的 gas 价格超过此值直接拒绝，0 不限制
	MaxGasPrice int64
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Fees:                    DefaultFeeConfig(),
		MaxLeverage:             50 * BasisPointsDivisor,
		MinProfitTime:           0,
		FundingInterval:         8 * 3600,
		FundingRateFactor:       600,
		StableFundingRateFactor: 600,
		IsLeverageEnabled:       true,
		IsSwapEnabled:           true,
	}
}
