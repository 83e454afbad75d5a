// 文件: pkg/gov/timelock.go
// 两阶段治理时间锁
//
// 配置变更分两步:
// 1. Signal: 管理员提交动作，记录生效时间 = now + buffer
// 2. Execute: buffer 到期后执行，调用账本的治理接口 (sender = timelock 自己)
//
// 动作以描述串的哈希为键，同一动作重复 Signal 会刷新计时。
// Cancel 可随时撤回未执行的动作。

package gov

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sync"
	"time"
)

var (
	ErrForbidden      = &Error{"Timelock: forbidden"}
	ErrInvalidBuffer  = &Error{"Timelock: invalid buffer"}
	ErrActionNotFound = &Error{"Timelock: action not signalled"}
	ErrTimeNotPassed  = &Error{"Timelock: action time not yet passed"}
)

// Error 治理错误，错误串对外稳定
type Error struct {
	s string
}

func (e *Error) Error() string { return e.s }

// MaxBuffer 延迟上限，防止误配把治理锁死
const MaxBuffer = 5 * 24 * time.Hour

// Action 待执行的治理动作
type Action struct {
	Desc string
	// ETA 最早可执行时间 (Unix 秒)
	ETA int64
	fn  func() error
}

// Timelock 两阶段时间锁
type Timelock struct {
	mu      sync.Mutex
	admin   string
	buffer  time.Duration
	pending map[string]*Action

	now func() time.Time
}

// New 创建时间锁
func New(admin string, buffer time.Duration) (*Timelock, error) {
	if buffer <= 0 || buffer > MaxBuffer {
		return nil, ErrInvalidBuffer
	}
	return &Timelock{
		admin:   admin,
		buffer:  buffer,
		pending: make(map[string]*Action),
		now:     time.Now,
	}, nil
}

// SetClock 注入时钟 (测试用)
func (t *Timelock) SetClock(now func() time.Time) {
	t.now = now
}

// SetBuffer 调整延迟，只能调大
func (t *Timelock) SetBuffer(sender string, buffer time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sender != t.admin {
		return ErrForbidden
	}
	if buffer <= t.buffer || buffer > MaxBuffer {
		return ErrInvalidBuffer
	}
	t.buffer = buffer
	return nil
}

// SetAdmin 转移管理员
func (t *Timelock) SetAdmin(sender, newAdmin string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sender != t.admin {
		return ErrForbidden
	}
	t.admin = newAdmin
	return nil
}

// ActionKey 动作键: 描述串的 sha256
func ActionKey(desc string) string {
	sum := sha256.Sum256([]byte(desc))
	return hex.EncodeToString(sum[:])
}

// Signal 提交动作
//
// desc 须唯一描述这次变更 (含目标参数)，fn 是到期后实际执行的调用。
// 返回动作键，Execute/Cancel 用。
func (t *Timelock) Signal(sender, desc string, fn func() error) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sender != t.admin {
		return "", ErrForbidden
	}

	key := ActionKey(desc)
	eta := t.now().Add(t.buffer).Unix()
	t.pending[key] = &Action{
		Desc: desc,
		ETA:  eta,
		fn:   fn,
	}
	log.Printf("[Timelock] Signalled: %s (eta=%d)", desc, eta)
	return key, nil
}

// Execute 执行到期动作
//
// 执行前从待办表移除: 动作失败也不允许重放旧闭包，须重新 Signal。
func (t *Timelock) Execute(sender, key string) error {
	t.mu.Lock()
	if sender != t.admin {
		t.mu.Unlock()
		return ErrForbidden
	}
	action, ok := t.pending[key]
	if !ok {
		t.mu.Unlock()
		return ErrActionNotFound
	}
	if t.now().Unix() < action.ETA {
		t.mu.Unlock()
		return ErrTimeNotPassed
	}
	delete(t.pending, key)
	t.mu.Unlock()

	// 锁外执行，动作本身会去拿账本的锁
	if err := action.fn(); err != nil {
		log.Printf("[Timelock] Execute failed: %s, err=%v", action.Desc, err)
		return err
	}
	log.Printf("[Timelock] Executed: %s", action.Desc)
	return nil
}

// Cancel 撤回未执行的动作
func (t *Timelock) Cancel(sender, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sender != t.admin {
		return ErrForbidden
	}
	if _, ok := t.pending[key]; !ok {
		return ErrActionNotFound
	}
	delete(t.pending, key)
	return nil
}

// Pending 待执行动作快照
func (t *Timelock) Pending() []Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Action, 0, len(t.pending))
	for _, a := range t.pending {
		out = append(out, Action{Desc: a.Desc, ETA: a.ETA})
	}
	return out
}
