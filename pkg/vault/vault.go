// 文件: pkg/vault/vault.go
// 杠杆永续资金库 - 账本主体
//
// 【职责】
// 1. 持仓账本: 开仓/加仓/减仓/平仓/清算
// 2. 池子账本: 每代币的池量/手续费/预留/USDX 债务
// 3. 换汇与 USDX 铸造销毁
// 4. 每次状态变更后重新校验偿付能力
//
// 【并发模型】
// 所有变更操作串行通过一把互斥锁，等价于"一次只有一个账本操作
// 在执行"。价格在操作开始时读取一次，操作期间视为静态。
// 操作内部任何一步失败，整个操作回滚，不留部分效果。
//
// 【架构说明】
// - 价格 (oracle): 外部协作者，只通过 PriceOracle 接口消费
// - 代币托管 (bank): 外部协作者，账本用"余额差额"计量入金 (pull 记账)
// - 持久化 (repo): 可选，操作成功后写穿
// - 事件 (publisher): 可选，操作成功后发布 NATS 事件

package vault

import (
	"math/big"
	"sync"
	"time"
)

// =============================================================================
// 外部协作者接口
// =============================================================================

// PriceOracle 价格预言机适配器
//
// maximize=true 返回价格带的高端，false 返回低端。
// 返回值为 30 位小数定点数。账本自己从不计算价格。
type PriceOracle interface {
	GetPrice(token string, maximize bool) (*big.Int, error)
}

// TokenBank 代币托管
//
// 账本假设入金在操作开始前已经到账 (pull 记账:
// 账本比对自己记录的余额和托管的实际余额，差额就是入金)
type TokenBank interface {
	// BalanceOf 资金库当前实际持有的原始代币数量
	BalanceOf(token string) *big.Int
	// Withdraw 从资金库转出给外部账户
	Withdraw(token, receiver string, amount *big.Int) error
}

// EventPublisher 账本事件发布 (可选注入)
type EventPublisher interface {
	Publish(subject string, data any) error
}

// =============================================================================
// Vault - 账本主体
// =============================================================================

// Vault 永续资金库账本
//
// 使用示例:
//
//	v := vault.New(oracle, bank, "gov")
//	v.SetTokenConfig("gov", &vault.TokenConfig{Token: "BTC", Decimals: 8, ...})
//	out, err := v.IncreasePosition(&vault.IncreasePositionRequest{...})
type Vault struct {
	// mu 全局账本锁: 所有变更操作串行执行，结构性防重入
	mu sync.Mutex

	cfg Config
	gov string // 治理身份，唯一能改配置的调用者

	// ===== 配置状态 =====
	tokens            map[string]*TokenConfig
	whitelistOrder    []string // 白名单顺序 (AUM 估值遍历用，顺序稳定)
	totalTokenWeights int64

	// ===== 账本状态 =====
	pools     map[string]*PoolState
	positions map[PositionKey]*Position

	// 累计资金费率 (FundingRatePrecision 精度)，按抵押币记
	cumulativeFundingRates map[string]*big.Int
	lastFundingTimes       map[string]int64

	// 全局空头聚合，按标的币记
	globalShortSizes         map[string]*big.Int
	globalShortAveragePrices map[string]*big.Int

	// USDX (稳定记账单位) 总量与持有人余额
	usdxSupply   *big.Int
	usdxBalances map[string]*big.Int

	// tokenBalances 账本记录的"已入账"余额，用于 pull 记账计量入金
	tokenBalances map[string]*big.Int

	// ===== 权限 =====
	routers     map[string]map[string]bool // account -> router -> approved
	liquidators map[string]bool

	// ===== 外部协作者 =====
	oracle    PriceOracle
	bank      TokenBank
	publisher EventPublisher

	// 持久化 (可选，成功后写穿)
	positionRepo PositionRepository
	poolRepo     PoolRepository

	// now 当前时间 (秒)，可注入便于测试
	now func() int64
}

// New 创建账本
func New(oracle PriceOracle, bank TokenBank, gov string) *Vault {
	return &Vault{
		cfg:                      DefaultConfig(),
		gov:                      gov,
		tokens:                   make(map[string]*TokenConfig),
		pools:                    make(map[string]*PoolState),
		positions:                make(map[PositionKey]*Position),
		cumulativeFundingRates:   make(map[string]*big.Int),
		lastFundingTimes:         make(map[string]int64),
		globalShortSizes:         make(map[string]*big.Int),
		globalShortAveragePrices: make(map[string]*big.Int),
		usdxSupply:               new(big.Int),
		usdxBalances:             make(map[string]*big.Int),
		tokenBalances:            make(map[string]*big.Int),
		routers:                  make(map[string]map[string]bool),
		liquidators:              make(map[string]bool),
		oracle:                   oracle,
		bank:                     bank,
		now:                      func() int64 { return time.Now().Unix() },
	}
}

// SetPublisher 设置事件发布器
func (v *Vault) SetPublisher(p EventPublisher) {
	v.publisher = p
}

// SetRepositories 设置持久化仓库 (写穿)
func (v *Vault) SetRepositories(posRepo PositionRepository, poolRepo PoolRepository) {
	v.positionRepo = posRepo
	v.poolRepo = poolRepo
}

// SetClock 注入时钟 (测试用)
func (v *Vault) SetClock(now func() int64) {
	v.now = now
}

// =============================================================================
// 权限
// =============================================================================

// validateSender 交易类操作的调用者校验
//
// 调用者必须是账户本人，或该账户批准过的 router
func (v *Vault) validateSender(sender, account string) error {
	if sender == account {
		return nil
	}
	if v.routers[account][sender] {
		return nil
	}
	return ErrForbiddenSender
}

// validateGov 配置写入只允许治理身份
func (v *Vault) validateGov(sender string) error {
	if sender != v.gov {
		return ErrForbiddenGov
	}
	return nil
}

// validateGasPrice 防 DoS: 拒绝声明 gas 价格超限的操作
func (v *Vault) validateGasPrice(gasPrice int64) error {
	if v.cfg.MaxGasPrice > 0 && gasPrice > v.cfg.MaxGasPrice {
		return ErrGasPriceExceeded
	}
	return nil
}

// AddRouter 账户批准一个 router 代为操作
func (v *Vault) AddRouter(account, router string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.routers[account] == nil {
		v.routers[account] = make(map[string]bool)
	}
	v.routers[account][router] = true
}

// RemoveRouter 撤销批准
func (v *Vault) RemoveRouter(account, router string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.routers[account], router)
}

// =============================================================================
// 入金/出金 (pull 记账)
// =============================================================================

// transferIn 计量入金: 托管实际余额 - 账本已入账余额
//
// 不信任调用方声称的金额，只认自己看到的余额差
func (v *Vault) transferIn(token string) *big.Int {
	prev := v.tokenBalances[token]
	if prev == nil {
		prev = new(big.Int)
	}
	next := clone(v.bank.BalanceOf(token))
	v.tokenBalances[token] = next
	return sub(next, prev)
}

// transferOut 出金并同步已入账余额
//
// 只在操作的最后一步调用 (之后不会再有可失败的校验)
func (v *Vault) transferOut(token, receiver string, amount *big.Int) error {
	if err := v.bank.Withdraw(token, receiver, amount); err != nil {
		return err
	}
	v.tokenBalances[token] = clone(v.bank.BalanceOf(token))
	return nil
}

// =============================================================================
// 单位换算
// =============================================================================

// tokenToUSDMin 原始代币数量按低端价换成 USD (对池子保守)
func (v *Vault) tokenToUSDMin(token string, amount *big.Int) (*big.Int, error) {
	if isZero(amount) {
		return new(big.Int), nil
	}
	price, err := v.oracle.GetPrice(token, false)
	if err != nil {
		return nil, err
	}
	cfg := v.tokens[token]
	if cfg == nil {
		return nil, ErrTokenNotInitialized
	}
	return mulDiv(amount, price, pow10(cfg.Decimals)), nil
}

// usdToTokenMax USD 按低端价换成代币数量 (得到的代币数量最多)
func (v *Vault) usdToTokenMax(token string, usd *big.Int) (*big.Int, error) {
	price, err := v.oracle.GetPrice(token, false)
	if err != nil {
		return nil, err
	}
	return v.usdToToken(token, usd, price)
}

// usdToTokenMin USD 按高端价换成代币数量 (得到的代币数量最少)
func (v *Vault) usdToTokenMin(token string, usd *big.Int) (*big.Int, error) {
	price, err := v.oracle.GetPrice(token, true)
	if err != nil {
		return nil, err
	}
	return v.usdToToken(token, usd, price)
}

// usdToToken 精度换算依赖代币配置; 配置被治理移除后挂着的旧仓位
// 走到这里必须报错而不是崩
func (v *Vault) usdToToken(token string, usd, price *big.Int) (*big.Int, error) {
	if isZero(usd) {
		return new(big.Int), nil
	}
	cfg := v.tokens[token]
	if cfg == nil {
		return nil, ErrTokenNotInitialized
	}
	return mulDiv(usd, pow10(cfg.Decimals), price), nil
}

// =============================================================================
// 只读查询
// =============================================================================

// GetPosition 查询持仓副本
func (v *Vault) GetPosition(key PositionKey) *Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.positions[key]
	if !ok {
		return nil
	}
	return pos.Clone()
}

// GetPoolState 查询池状态副本
func (v *Vault) GetPoolState(token string) *PoolState {
	v.mu.Lock()
	defer v.mu.Unlock()
	pool, ok := v.pools[token]
	if !ok {
		return nil
	}
	return pool.Clone()
}

// Positions 导出所有非空持仓 (清算 keeper 扫描用)
//
// 账本自身不需要遍历持仓，这是给外部 keeper 的快照接口
func (v *Vault) Positions() map[PositionKey]*Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[PositionKey]*Position, len(v.positions))
	for k, p := range v.positions {
		out[k] = p.Clone()
	}
	return out
}

// ExpectedCustody 账本已入账的各币种余额 (托管对账用)
//
// 托管实际持有 >= 这里的数字才算账实相符，差额只能是
// 已入金未计量的在途款。
func (v *Vault) ExpectedCustody() map[string]*big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]*big.Int, len(v.tokenBalances))
	for token, bal := range v.tokenBalances {
		out[token] = clone(bal)
	}
	return out
}

// USDXBalanceOf 查询 USDX 余额
func (v *Vault) USDXBalanceOf(account string) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.usdxBalances[account])
}

// USDXSupply USDX 总发行量
func (v *Vault) USDXSupply() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.usdxSupply)
}

// WhitelistedTokens 白名单代币 (注册顺序)
func (v *Vault) WhitelistedTokens() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.whitelistOrder))
	copy(out, v.whitelistOrder)
	return out
}

// Config 当前配置副本
func (v *Vault) Config() Config {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cfg
}

// CumulativeFundingRate 某抵押币的累计资金费率
func (v *Vault) CumulativeFundingRate(token string) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return clone(v.cumulativeFundingRates[token])
}

// =============================================================================
// 操作后钩子: 写穿持久化 + 事件发布
// =============================================================================

// persistPosition 持仓写穿 (失败只记录，不影响已提交的内存账本)
func (v *Vault) persistPosition(key PositionKey, pos *Position) {
	if v.positionRepo == nil {
		return
	}
	if pos == nil || pos.IsEmpty() {
		v.positionRepo.Delete(key)
		return
	}
	v.positionRepo.Save(key, pos.Clone())
}

// persistPool 池状态写穿
func (v *Vault) persistPool(tokens ...string) {
	if v.poolRepo == nil {
		return
	}
	for _, token := range tokens {
		if pool, ok := v.pools[token]; ok {
			v.poolRepo.Save(pool.Clone())
		}
	}
}

// publish 发布事件 (publisher 未设置则跳过)
func (v *Vault) publish(subject string, data any) {
	if v.publisher == nil {
		return
	}
	// 发布失败不回滚账本: 事件是旁路，账本为准
	_ = v.publisher.Publish(subject, data)
}
