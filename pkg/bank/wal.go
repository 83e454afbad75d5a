// 文件: pkg/bank/wal.go
// 资金账户 WAL (Write-Ahead Log)
//
// 核心原则:
// 1. 先写日志，再修改内存
// 2. 崩溃后通过重放日志恢复余额
// 3. 定期创建检查点减少恢复时间
//
// 金额是 30 位小数定点数 (big.Int)，条目里按十进制字符串存，
// 变长编码，无损往返。

package bank

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// =============================================================================
// WAL 条目格式
// =============================================================================

// WALEntryType 条目类型
type WALEntryType uint8

const (
	WALDeposit  WALEntryType = iota + 1 // 入金
	WALWithdraw                         // 出金
)

// WALEntry WAL 条目
type WALEntry struct {
	Seq       uint64       // 序列号 (递增)
	Type      WALEntryType // 条目类型
	Timestamp int64        // 时间戳 (纳秒)

	Token        string // 币种
	Amount       string // 金额 (十进制字符串)
	Counterparty string // 入金来源 / 出金去向
}

// =============================================================================
// WAL 写入器
// =============================================================================

// WAL Write-Ahead Log
type WAL struct {
	dir    string
	file   *os.File
	writer *bufio.Writer

	seq uint64

	mu  sync.Mutex
	buf []byte // 复用缓冲区
}

// WALConfig WAL 配置
type WALConfig struct {
	Dir string // 日志目录
}

const walFileName = "bank.wal"

// NewWAL 创建 WAL
func NewWAL(cfg WALConfig) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}

	path := filepath.Join(cfg.Dir, walFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open wal file: %w", err)
	}

	return &WAL{
		dir:    cfg.Dir,
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024), // 64KB 缓冲
		buf:    make([]byte, 256),
	}, nil
}

// Write 写入条目
func (w *WAL) Write(entry *WALEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	entry.Seq = w.seq

	data := w.encodeEntry(entry)

	// 写入: [长度 4B][数据][CRC 4B]
	length := uint32(len(data))
	crc := crc32.ChecksumIEEE(data)

	if err := binary.Write(w.writer, binary.LittleEndian, length); err != nil {
		return err
	}
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	return binary.Write(w.writer, binary.LittleEndian, crc)
}

// Sync 刷盘
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close 关闭
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	return w.file.Close()
}

// =============================================================================
// 检查点 (Checkpoint)
// =============================================================================

// Checkpoint 保存快照并截断 WAL
func (w *WAL) Checkpoint(snapshotData []byte, upToSeq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshotPath := filepath.Join(w.dir, "snapshot.json")
	if err := os.WriteFile(snapshotPath, snapshotData, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	metaPath := filepath.Join(w.dir, "checkpoint.meta")
	if err := os.WriteFile(metaPath, []byte(fmt.Sprintf("%d", upToSeq)), 0644); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}

	// 快照已覆盖全部历史，清空重建 WAL
	w.writer.Flush()
	w.file.Close()

	walPath := filepath.Join(w.dir, walFileName)
	file, err := os.Create(walPath)
	if err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}
	w.file = file
	w.writer = bufio.NewWriterSize(file, 64*1024)
	return nil
}

// LoadSnapshot 加载快照 (没有快照返回 nil, 0, nil)
func (w *WAL) LoadSnapshot() ([]byte, uint64, error) {
	metaPath := filepath.Join(w.dir, "checkpoint.meta")
	metaData, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	var seq uint64
	fmt.Sscanf(string(metaData), "%d", &seq)

	snapshotPath := filepath.Join(w.dir, "snapshot.json")
	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return nil, 0, err
	}
	return data, seq, nil
}

// =============================================================================
// WAL 恢复
// =============================================================================

// Recover 读取 WAL 并逐条重放
func (w *WAL) Recover(applyFn func(*WALEntry) error) (uint64, error) {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	reader := bufio.NewReader(w.file)
	var lastSeq uint64

	for {
		var length uint32
		if err := binary.Read(reader, binary.LittleEndian, &length); err != nil {
			if err == io.EOF {
				break
			}
			return lastSeq, fmt.Errorf("read length: %w", err)
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(reader, data); err != nil {
			return lastSeq, fmt.Errorf("read data: %w", err)
		}

		var crc uint32
		if err := binary.Read(reader, binary.LittleEndian, &crc); err != nil {
			return lastSeq, fmt.Errorf("read crc: %w", err)
		}
		if crc32.ChecksumIEEE(data) != crc {
			return lastSeq, errors.New("crc mismatch")
		}

		entry, err := w.decodeEntry(data)
		if err != nil {
			return lastSeq, fmt.Errorf("decode: %w", err)
		}
		if err := applyFn(entry); err != nil {
			return lastSeq, fmt.Errorf("apply: %w", err)
		}
		lastSeq = entry.Seq
	}

	w.seq = lastSeq
	return lastSeq, nil
}

// =============================================================================
// 序列化
// =============================================================================

// 格式: seq(8) + type(1) + ts(8) + token_len(2) + token + amount_len(2) + amount + cp_len(2) + cp
func (w *WAL) encodeEntry(e *WALEntry) []byte {
	buf := w.buf[:0]

	buf = binary.LittleEndian.AppendUint64(buf, e.Seq)
	buf = append(buf, byte(e.Type))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Timestamp))

	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Token)))
	buf = append(buf, e.Token...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Amount)))
	buf = append(buf, e.Amount...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Counterparty)))
	buf = append(buf, e.Counterparty...)

	return buf
}

func (w *WAL) decodeEntry(data []byte) (*WALEntry, error) {
	if len(data) < 17 {
		return nil, errors.New("data too short")
	}

	e := &WALEntry{}
	offset := 0

	e.Seq = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	e.Type = WALEntryType(data[offset])
	offset += 1
	e.Timestamp = int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8

	readString := func() (string, error) {
		if offset+2 > len(data) {
			return "", errors.New("truncated entry")
		}
		n := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if offset+n > len(data) {
			return "", errors.New("truncated entry")
		}
		s := string(data[offset : offset+n])
		offset += n
		return s, nil
	}

	var err error
	if e.Token, err = readString(); err != nil {
		return nil, err
	}
	if e.Amount, err = readString(); err != nil {
		return nil, err
	}
	if e.Counterparty, err = readString(); err != nil {
		return nil, err
	}
	return e, nil
}
