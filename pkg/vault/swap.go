// 文件: pkg/vault/swap.go
// 换汇与 USDX 铸销
//
// 三条资金进出路径:
//   - BuyUSDX:  存入白名单币，按最低价铸 USDX (注入流动性)
//   - SellUSDX: 销毁 USDX，按最高价赎回白名单币 (撤出流动性)
//   - Swap:     币换币，输入按最低价、输出按最高价，点差归池子
//
// 统一采用拉取式入账: 调用方先把币打进资金账户，操作内部用
// transferIn 对比余额差确认实际到账数量，杜绝虚报。

package vault

import "math/big"

// BuyUSDXRequest 铸入请求
type BuyUSDXRequest struct {
	Sender   string
	Token    string // 存入的白名单币
	Receiver string // USDX 记账给谁
	GasPrice int64
}

// SellUSDXRequest 赎回请求
type SellUSDXRequest struct {
	Sender     string
	Token      string   // 赎回成哪种白名单币
	USDXAmount *big.Int // 销毁多少 USDX
	Receiver   string
	GasPrice   int64
}

// SwapRequest 币换币请求
type SwapRequest struct {
	Sender   string
	TokenIn  string
	TokenOut string
	Receiver string
	GasPrice int64
}

// BuyUSDX 存入白名单币，铸出 USDX
//
// 定价用最低价 (对存入方不利)，铸出量按 18 位精度换算。
// 返回实际铸出的 USDX 数量。
func (v *Vault) BuyUSDX(req *BuyUSDXRequest) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.validateGasPrice(req.GasPrice); err != nil {
		return nil, err
	}
	cfg := v.tokens[req.Token]
	if cfg == nil {
		return nil, ErrTokenNotWhitelisted
	}

	snap := v.snapshot([]string{req.Token}, nil, []string{req.Receiver})

	v.updateCumulativeFundingRate(req.Token)

	amountIn := v.transferIn(req.Token)
	if !isPositive(amountIn) {
		v.restore(snap)
		return nil, ErrInvalidAmountIn
	}

	price, err := v.oracle.GetPrice(req.Token, false)
	if err != nil {
		v.restore(snap)
		return nil, err
	}

	usdxAmount := mulDiv(amountIn, price, PricePrecision)
	usdxAmount = adjustForDecimals(usdxAmount, cfg.Decimals, USDXDecimals)
	if !isPositive(usdxAmount) {
		v.restore(snap)
		return nil, ErrInvalidUSDXAmount
	}

	feeBasisPoints := v.getBuyUSDXFeeBasisPoints(req.Token, usdxAmount)
	amountAfterFees := v.collectSwapFees(req.Token, amountIn, feeBasisPoints)
	mintAmount := mulDiv(amountAfterFees, price, PricePrecision)
	mintAmount = adjustForDecimals(mintAmount, cfg.Decimals, USDXDecimals)

	if err := v.increaseUSDXAmount(req.Token, mintAmount); err != nil {
		v.restore(snap)
		return nil, err
	}
	if err := v.increasePoolAmount(req.Token, amountAfterFees); err != nil {
		v.restore(snap)
		return nil, err
	}

	v.usdxSupply = add(v.usdxSupply, mintAmount)
	bal := v.usdxBalances[req.Receiver]
	if bal == nil {
		bal = new(big.Int)
	}
	v.usdxBalances[req.Receiver] = add(bal, mintAmount)

	v.persistPool(req.Token)
	v.publish(SubjectBuyUSDX, &BuyUSDXEvent{
		Account:        req.Receiver,
		Token:          req.Token,
		TokenAmount:    clone(amountIn),
		USDXAmount:     clone(mintAmount),
		FeeBasisPoints: feeBasisPoints,
	})
	return mintAmount, nil
}

// SellUSDX 销毁 USDX，赎回白名单币
//
// 定价用最高价 (对赎回方不利)。赎回量先离池，再扣换汇费转出。
// 返回实际转出的币数量。
func (v *Vault) SellUSDX(req *SellUSDXRequest) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.validateGasPrice(req.GasPrice); err != nil {
		return nil, err
	}
	cfg := v.tokens[req.Token]
	if cfg == nil {
		return nil, ErrTokenNotWhitelisted
	}
	if req.USDXAmount == nil || !isPositive(req.USDXAmount) {
		return nil, ErrInvalidUSDXAmount
	}
	bal := v.usdxBalances[req.Sender]
	if bal == nil || bal.Cmp(req.USDXAmount) < 0 {
		return nil, ErrInsufficientUSDX
	}

	snap := v.snapshot([]string{req.Token}, nil, []string{req.Sender})

	v.updateCumulativeFundingRate(req.Token)

	price, err := v.oracle.GetPrice(req.Token, true)
	if err != nil {
		v.restore(snap)
		return nil, err
	}

	redemptionAmount := mulDiv(req.USDXAmount, PricePrecision, price)
	redemptionAmount = adjustForDecimals(redemptionAmount, USDXDecimals, cfg.Decimals)
	if !isPositive(redemptionAmount) {
		v.restore(snap)
		return nil, ErrInvalidRedemption
	}

	v.decreaseUSDXAmount(req.Token, req.USDXAmount)
	if err := v.decreasePoolAmount(req.Token, redemptionAmount); err != nil {
		v.restore(snap)
		return nil, err
	}

	v.usdxSupply = sub(v.usdxSupply, req.USDXAmount)
	v.usdxBalances[req.Sender] = sub(bal, req.USDXAmount)

	feeBasisPoints := v.getSellUSDXFeeBasisPoints(req.Token, req.USDXAmount)
	amountOut := v.collectSwapFees(req.Token, redemptionAmount, feeBasisPoints)
	if !isPositive(amountOut) {
		v.restore(snap)
		return nil, ErrInvalidAmountOut
	}

	// 转出放最后: 到这一步所有账都已记好，提现失败才整体回滚
	if err := v.transferOut(req.Token, req.Receiver, amountOut); err != nil {
		v.restore(snap)
		return nil, err
	}

	v.persistPool(req.Token)
	v.publish(SubjectSellUSDX, &SellUSDXEvent{
		Account:        req.Sender,
		Token:          req.Token,
		USDXAmount:     clone(req.USDXAmount),
		TokenAmount:    clone(amountOut),
		FeeBasisPoints: feeBasisPoints,
	})
	return amountOut, nil
}

// Swap 币换币
//
// 输出数量 = 输入 × priceIn(min) / priceOut(max)，双向报价的点差留在池中。
// 两个币的 USDXAmount 记账随之迁移，保持目标权重核算一致。
func (v *Vault) Swap(req *SwapRequest) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.validateGasPrice(req.GasPrice); err != nil {
		return nil, err
	}
	if !v.cfg.IsSwapEnabled {
		return nil, ErrSwapsNotEnabled
	}
	cfgIn := v.tokens[req.TokenIn]
	cfgOut := v.tokens[req.TokenOut]
	if cfgIn == nil || cfgOut == nil {
		return nil, ErrTokenNotWhitelisted
	}
	if req.TokenIn == req.TokenOut {
		return nil, ErrInvalidTokenPair
	}

	snap := v.snapshot([]string{req.TokenIn, req.TokenOut}, nil, nil)

	v.updateCumulativeFundingRate(req.TokenIn)
	v.updateCumulativeFundingRate(req.TokenOut)

	amountIn := v.transferIn(req.TokenIn)
	if !isPositive(amountIn) {
		v.restore(snap)
		return nil, ErrInvalidAmountIn
	}

	priceIn, err := v.oracle.GetPrice(req.TokenIn, false)
	if err != nil {
		v.restore(snap)
		return nil, err
	}
	priceOut, err := v.oracle.GetPrice(req.TokenOut, true)
	if err != nil {
		v.restore(snap)
		return nil, err
	}

	amountOut := mulDiv(amountIn, priceIn, priceOut)
	amountOut = adjustForDecimals(amountOut, cfgIn.Decimals, cfgOut.Decimals)

	// 动态费率按这笔换汇搬动的 USDX 记账量计
	usdxAmount := mulDiv(amountIn, priceIn, PricePrecision)
	usdxAmount = adjustForDecimals(usdxAmount, cfgIn.Decimals, USDXDecimals)

	feeBasisPoints := v.getSwapFeeBasisPoints(req.TokenIn, req.TokenOut, usdxAmount)
	amountOutAfterFees := v.collectSwapFees(req.TokenOut, amountOut, feeBasisPoints)

	if err := v.increaseUSDXAmount(req.TokenIn, usdxAmount); err != nil {
		v.restore(snap)
		return nil, err
	}
	v.decreaseUSDXAmount(req.TokenOut, usdxAmount)

	if err := v.increasePoolAmount(req.TokenIn, amountIn); err != nil {
		v.restore(snap)
		return nil, err
	}
	if err := v.decreasePoolAmount(req.TokenOut, amountOut); err != nil {
		v.restore(snap)
		return nil, err
	}
	if err := v.validateBufferAmount(req.TokenOut); err != nil {
		v.restore(snap)
		return nil, err
	}

	if err := v.transferOut(req.TokenOut, req.Receiver, amountOutAfterFees); err != nil {
		v.restore(snap)
		return nil, err
	}

	v.persistPool(req.TokenIn, req.TokenOut)
	v.publish(SubjectSwap, &SwapEvent{
		Account:            req.Receiver,
		TokenIn:            req.TokenIn,
		TokenOut:           req.TokenOut,
		AmountIn:           clone(amountIn),
		AmountOut:          clone(amountOut),
		AmountOutAfterFees: clone(amountOutAfterFees),
		FeeBasisPoints:     feeBasisPoints,
	})
	return amountOutAfterFees, nil
}

// DirectPoolDeposit 无偿注入: 只加 PoolAmount，不铸 USDX 不记费
//
// 用于外部补贴池子，存入的币没有任何对价。
func (v *Vault) DirectPoolDeposit(token string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.tokens[token] == nil {
		return nil, ErrTokenNotWhitelisted
	}

	snap := v.snapshot([]string{token}, nil, nil)

	amount := v.transferIn(token)
	if !isPositive(amount) {
		v.restore(snap)
		return nil, ErrInvalidAmountIn
	}
	if err := v.increasePoolAmount(token, amount); err != nil {
		v.restore(snap)
		return nil, err
	}

	v.persistPool(token)
	v.publish(SubjectDirectPoolDeposit, &DirectPoolDepositEvent{
		Token:  token,
		Amount: clone(amount),
	})
	return amount, nil
}
