// 文件: pkg/gov/timelock_test.go
package gov

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdmin = "admin"

// newTestLock 固定时钟的时间锁，返回这个可推进的时钟
func newTestLock(t *testing.T, buffer time.Duration) (*Timelock, *int64) {
	t.Helper()
	tl, err := New(testAdmin, buffer)
	require.NoError(t, err)

	now := int64(1_700_000_000)
	tl.SetClock(func() time.Time { return time.Unix(now, 0) })
	return tl, &now
}

func TestNewValidatesBuffer(t *testing.T) {
	_, err := New(testAdmin, 0)
	assert.ErrorIs(t, err, ErrInvalidBuffer)

	_, err = New(testAdmin, MaxBuffer+time.Second)
	assert.ErrorIs(t, err, ErrInvalidBuffer)

	_, err = New(testAdmin, MaxBuffer)
	assert.NoError(t, err)
}

func TestSignalExecuteDelay(t *testing.T) {
	tl, now := newTestLock(t, time.Hour)

	executed := false
	key, err := tl.Signal(testAdmin, "setMaxLeverage(BTC, 30x)", func() error {
		executed = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ActionKey("setMaxLeverage(BTC, 30x)"), key)

	// 未到期
	err = tl.Execute(testAdmin, key)
	assert.ErrorIs(t, err, ErrTimeNotPassed)
	assert.False(t, executed)

	// 刚好到期 (eta = now + 3600)
	*now += 3600
	require.NoError(t, tl.Execute(testAdmin, key))
	assert.True(t, executed)

	// 执行后动作消失
	err = tl.Execute(testAdmin, key)
	assert.ErrorIs(t, err, ErrActionNotFound)
	assert.Empty(t, tl.Pending())
}

func TestAdminOnly(t *testing.T) {
	tl, _ := newTestLock(t, time.Hour)

	_, err := tl.Signal("mallory", "anything", func() error { return nil })
	assert.ErrorIs(t, err, ErrForbidden)

	key, err := tl.Signal(testAdmin, "anything", func() error { return nil })
	require.NoError(t, err)

	assert.ErrorIs(t, tl.Execute("mallory", key), ErrForbidden)
	assert.ErrorIs(t, tl.Cancel("mallory", key), ErrForbidden)
	assert.ErrorIs(t, tl.SetBuffer("mallory", 2*time.Hour), ErrForbidden)
	assert.ErrorIs(t, tl.SetAdmin("mallory", "mallory"), ErrForbidden)
}

func TestResignalRefreshesETA(t *testing.T) {
	tl, now := newTestLock(t, time.Hour)

	key, err := tl.Signal(testAdmin, "setFees(...)", func() error { return nil })
	require.NoError(t, err)

	// 快到期时重新 Signal，计时重置
	*now += 3000
	key2, err := tl.Signal(testAdmin, "setFees(...)", func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, key, key2)

	*now += 600 // 原 eta 已过，但计时已刷新
	assert.ErrorIs(t, tl.Execute(testAdmin, key), ErrTimeNotPassed)

	*now += 3000
	assert.NoError(t, tl.Execute(testAdmin, key))
}

func TestCancel(t *testing.T) {
	tl, now := newTestLock(t, time.Hour)

	executed := false
	key, err := tl.Signal(testAdmin, "setGov(rogue)", func() error {
		executed = true
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, tl.Cancel(testAdmin, key))

	*now += 7200
	assert.ErrorIs(t, tl.Execute(testAdmin, key), ErrActionNotFound)
	assert.False(t, executed)

	assert.ErrorIs(t, tl.Cancel(testAdmin, key), ErrActionNotFound)
}

func TestFailedExecuteNotReplayable(t *testing.T) {
	tl, now := newTestLock(t, time.Hour)

	boom := errors.New("ledger rejected")
	calls := 0
	key, err := tl.Signal(testAdmin, "setBufferAmount(BTC, 70)", func() error {
		calls++
		return boom
	})
	require.NoError(t, err)

	*now += 3600
	assert.ErrorIs(t, tl.Execute(testAdmin, key), boom)
	assert.Equal(t, 1, calls)

	// 失败的闭包不留在待办表，须重新 Signal
	assert.ErrorIs(t, tl.Execute(testAdmin, key), ErrActionNotFound)
	assert.Equal(t, 1, calls)
}

func TestSetBufferOnlyIncreases(t *testing.T) {
	tl, now := newTestLock(t, time.Hour)

	assert.ErrorIs(t, tl.SetBuffer(testAdmin, 30*time.Minute), ErrInvalidBuffer)
	assert.ErrorIs(t, tl.SetBuffer(testAdmin, time.Hour), ErrInvalidBuffer)
	assert.ErrorIs(t, tl.SetBuffer(testAdmin, MaxBuffer+time.Hour), ErrInvalidBuffer)
	require.NoError(t, tl.SetBuffer(testAdmin, 2*time.Hour))

	key, err := tl.Signal(testAdmin, "x", func() error { return nil })
	require.NoError(t, err)
	*now += 3600
	assert.ErrorIs(t, tl.Execute(testAdmin, key), ErrTimeNotPassed)
	*now += 3600
	assert.NoError(t, tl.Execute(testAdmin, key))
}

func TestSetAdminTransfers(t *testing.T) {
	tl, now := newTestLock(t, time.Hour)

	require.NoError(t, tl.SetAdmin(testAdmin, "new-admin"))

	_, err := tl.Signal(testAdmin, "x", func() error { return nil })
	assert.ErrorIs(t, err, ErrForbidden)

	key, err := tl.Signal("new-admin", "x", func() error { return nil })
	require.NoError(t, err)
	*now += 3600
	assert.NoError(t, tl.Execute("new-admin", key))
}

func TestPendingSnapshot(t *testing.T) {
	tl, _ := newTestLock(t, time.Hour)

	_, err := tl.Signal(testAdmin, "a", func() error { return nil })
	require.NoError(t, err)
	_, err = tl.Signal(testAdmin, "b", func() error { return nil })
	require.NoError(t, err)

	pending := tl.Pending()
	require.Len(t, pending, 2)
	descs := []string{pending[0].Desc, pending[1].Desc}
	assert.ElementsMatch(t, []string{"a", "b"}, descs)
	assert.Equal(t, int64(1_700_000_000+3600), pending[0].ETA)
}
