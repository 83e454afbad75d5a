// 文件: pkg/bank/bank.go
// 代币托管账户
//
// 账本 (pkg/vault) 不直接碰代币: 入金先打到这里，账本用
// "实际余额 − 已入账余额" 的差额计量到账数量 (pull 记账)；
// 出金由账本在操作最后一步调用 Withdraw。
//
// 【持久化】
// WAL 先行: 每笔入金/出金先落日志再改内存，崩溃后
// 快照 + 重放恢复。定期 Checkpoint 截断日志。

package bank

import (
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"time"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient custody balance")
)

// Bank 托管账户，进程内唯一
type Bank struct {
	mu       sync.RWMutex
	balances map[string]*big.Int // token -> 实际托管量
	wal      *WAL                // 可选，nil 则纯内存 (测试用)
}

// New 创建纯内存托管账户 (测试与模拟用)
func New() *Bank {
	return &Bank{balances: make(map[string]*big.Int)}
}

// Open 打开带 WAL 的托管账户并恢复状态
func Open(dir string) (*Bank, error) {
	wal, err := NewWAL(WALConfig{Dir: dir})
	if err != nil {
		return nil, err
	}

	b := &Bank{
		balances: make(map[string]*big.Int),
		wal:      wal,
	}

	// 1. 快照
	snapshot, _, err := wal.LoadSnapshot()
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		var m map[string]string
		if err := json.Unmarshal(snapshot, &m); err != nil {
			return nil, err
		}
		for token, s := range m {
			n, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return nil, errors.New("malformed snapshot amount")
			}
			b.balances[token] = n
		}
	}

	// 2. 重放快照之后的日志
	if _, err := wal.Recover(b.apply); err != nil {
		return nil, err
	}
	return b, nil
}

// apply WAL 重放回调
func (b *Bank) apply(entry *WALEntry) error {
	amount, ok := new(big.Int).SetString(entry.Amount, 10)
	if !ok {
		return errors.New("malformed wal amount")
	}
	bal := b.balance(entry.Token)
	switch entry.Type {
	case WALDeposit:
		b.balances[entry.Token] = new(big.Int).Add(bal, amount)
	case WALWithdraw:
		b.balances[entry.Token] = new(big.Int).Sub(bal, amount)
	default:
		return errors.New("unknown wal entry type")
	}
	return nil
}

// Deposit 入金
func (b *Bank) Deposit(token, from string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wal != nil {
		err := b.wal.Write(&WALEntry{
			Type:         WALDeposit,
			Timestamp:    time.Now().UnixNano(),
			Token:        token,
			Amount:       amount.String(),
			Counterparty: from,
		})
		if err != nil {
			return err
		}
	}
	b.balances[token] = new(big.Int).Add(b.balance(token), amount)
	return nil
}

// Withdraw 出金，余额不足直接拒绝
func (b *Bank) Withdraw(token, receiver string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.balance(token)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}

	if b.wal != nil {
		err := b.wal.Write(&WALEntry{
			Type:         WALWithdraw,
			Timestamp:    time.Now().UnixNano(),
			Token:        token,
			Amount:       amount.String(),
			Counterparty: receiver,
		})
		if err != nil {
			return err
		}
	}
	b.balances[token] = new(big.Int).Sub(bal, amount)
	return nil
}

// BalanceOf 当前托管量
func (b *Bank) BalanceOf(token string) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return new(big.Int).Set(b.balance(token))
}

// balance 内部读取，调用方须持锁
func (b *Bank) balance(token string) *big.Int {
	if bal, ok := b.balances[token]; ok && bal != nil {
		return bal
	}
	return new(big.Int)
}

// Discrepancy 对账差异
type Discrepancy struct {
	Token    string
	Custody  *big.Int // 托管实际持有
	Expected *big.Int // 账本认为应持有
}

// Reconcile 托管余额与账本预期逐币比对
//
// 托管多于预期是正常的 (入金已到账但账本尚未 transferIn 计量)，
// 少于预期说明账本超发，必须告警。
func (b *Bank) Reconcile(expected map[string]*big.Int) []Discrepancy {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Discrepancy
	for token, want := range expected {
		have := b.balance(token)
		if have.Cmp(want) < 0 {
			out = append(out, Discrepancy{
				Token:    token,
				Custody:  new(big.Int).Set(have),
				Expected: new(big.Int).Set(want),
			})
		}
	}
	return out
}

// Checkpoint 快照当前余额并截断 WAL
func (b *Bank) Checkpoint() error {
	if b.wal == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	m := make(map[string]string, len(b.balances))
	for token, bal := range b.balances {
		m[token] = bal.String()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return b.wal.Checkpoint(data, b.wal.seq)
}

// Sync WAL 刷盘
func (b *Bank) Sync() error {
	if b.wal == nil {
		return nil
	}
	return b.wal.Sync()
}

// Close 关闭
func (b *Bank) Close() error {
	if b.wal == nil {
		return nil
	}
	return b.wal.Close()
}
