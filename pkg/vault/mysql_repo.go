// 文件: pkg/vault/mysql_repo.go
// 账本 MySQL 存储实现
//
// 【设计】
// - 使用 GORM，金额列存十进制字符串 (30 位小数定点数超出 BIGINT 范围，
//   DECIMAL(65) 也不够宽，varchar + big.Int 字符串往返是无损的)
// - 账本在锁内同步写穿，内部用短超时 context 兜底，慢库不拖死账本
// - upsert 用 symbol 维度的唯一键 + OnConflict 全列覆盖

package vault

import (
	"context"
	"errors"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// 写穿超时: 锁内同步写库，必须有限时
const mysqlWriteTimeout = 3 * time.Second

var errBadAmount = errors.New("malformed amount column")

// OpenMySQL 建库连接并迁移账本表结构
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&PositionRecord{}, &PoolRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}

// PositionRecord 持仓表行
type PositionRecord struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	Account           string `gorm:"column:account;type:varchar(64);uniqueIndex:uk_position,priority:1"`
	CollateralToken   string `gorm:"column:collateral_token;type:varchar(32);uniqueIndex:uk_position,priority:2"`
	IndexToken        string `gorm:"column:index_token;type:varchar(32);uniqueIndex:uk_position,priority:3"`
	IsLong            bool   `gorm:"column:is_long;uniqueIndex:uk_position,priority:4"`
	Size              string `gorm:"column:size;type:varchar(80)"`
	Collateral        string `gorm:"column:collateral;type:varchar(80)"`
	AveragePrice      string `gorm:"column:average_price;type:varchar(80)"`
	EntryFundingRate  string `gorm:"column:entry_funding_rate;type:varchar(80)"`
	ReserveAmount     string `gorm:"column:reserve_amount;type:varchar(80)"`
	RealisedPnl       string `gorm:"column:realised_pnl;type:varchar(80)"` // 可为负
	HasRealisedProfit bool   `gorm:"column:has_realised_profit"`
	LastIncreasedTime int64  `gorm:"column:last_increased_time"`
	UpdatedAt         int64  `gorm:"column:updated_at"`
}

// TableName GORM 表名
func (PositionRecord) TableName() string {
	return "vault_positions"
}

// PoolRecord 池状态表行
type PoolRecord struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	Token           string `gorm:"column:token;type:varchar(32);uniqueIndex"`
	PoolAmount      string `gorm:"column:pool_amount;type:varchar(80)"`
	FeeReserves     string `gorm:"column:fee_reserves;type:varchar(80)"`
	USDXAmount      string `gorm:"column:usdx_amount;type:varchar(80)"`
	ReservedAmounts string `gorm:"column:reserved_amounts;type:varchar(80)"`
	GuaranteedUsd   string `gorm:"column:guaranteed_usd;type:varchar(80)"`
	BufferAmount    string `gorm:"column:buffer_amount;type:varchar(80)"`
	UpdatedAt       int64  `gorm:"column:updated_at"`
}

// TableName GORM 表名
func (PoolRecord) TableName() string {
	return "vault_pools"
}

// =============================================================================
// 持仓存储
// =============================================================================

var _ PositionRepository = (*MySQLPositionRepository)(nil)

// MySQLPositionRepository 持仓 MySQL 实现
type MySQLPositionRepository struct {
	db *gorm.DB
}

// NewMySQLPositionRepository 创建持仓 MySQL 存储
func NewMySQLPositionRepository(db *gorm.DB) *MySQLPositionRepository {
	return &MySQLPositionRepository{db: db}
}

// newPositionRecord 内存持仓转 MySQL 行，金额统一十进制字符串存储
func newPositionRecord(key PositionKey, pos *Position) *PositionRecord {
	return &PositionRecord{
		Account:           key.Account,
		CollateralToken:   key.CollateralToken,
		IndexToken:        key.IndexToken,
		IsLong:            key.IsLong,
		Size:              pos.Size.String(),
		Collateral:        pos.Collateral.String(),
		AveragePrice:      pos.AveragePrice.String(),
		EntryFundingRate:  pos.EntryFundingRate.String(),
		ReserveAmount:     pos.ReserveAmount.String(),
		RealisedPnl:       pos.RealisedPnl.String(),
		HasRealisedProfit: pos.HasRealisedProfit,
		LastIncreasedTime: pos.LastIncreasedTime,
		UpdatedAt:         time.Now().UnixMilli(),
	}
}

// Save upsert 持仓
func (r *MySQLPositionRepository) Save(key PositionKey, pos *Position) error {
	ctx, cancel := context.WithTimeout(context.Background(), mysqlWriteTimeout)
	defer cancel()

	record := newPositionRecord(key, pos)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "account"}, {Name: "collateral_token"},
				{Name: "index_token"}, {Name: "is_long"},
			},
			UpdateAll: true,
		}).
		Create(record).Error
}

// Delete 删除持仓
func (r *MySQLPositionRepository) Delete(key PositionKey) error {
	ctx, cancel := context.WithTimeout(context.Background(), mysqlWriteTimeout)
	defer cancel()

	return r.db.WithContext(ctx).
		Where("account = ? AND collateral_token = ? AND index_token = ? AND is_long = ?",
			key.Account, key.CollateralToken, key.IndexToken, key.IsLong).
		Delete(&PositionRecord{}).Error
}

// LoadAll 全量恢复
func (r *MySQLPositionRepository) LoadAll() (map[PositionKey]*Position, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mysqlWriteTimeout)
	defer cancel()

	var records []*PositionRecord
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}

	out := make(map[PositionKey]*Position, len(records))
	for _, record := range records {
		key := PositionKey{
			Account:         record.Account,
			CollateralToken: record.CollateralToken,
			IndexToken:      record.IndexToken,
			IsLong:          record.IsLong,
		}
		pos, err := record.toPosition()
		if err != nil {
			return nil, err
		}
		out[key] = pos
	}
	return out, nil
}

func (record *PositionRecord) toPosition() (*Position, error) {
	pos := &Position{
		HasRealisedProfit: record.HasRealisedProfit,
		LastIncreasedTime: record.LastIncreasedTime,
	}
	fields := []struct {
		dst **big.Int
		src string
	}{
		{&pos.Size, record.Size},
		{&pos.Collateral, record.Collateral},
		{&pos.AveragePrice, record.AveragePrice},
		{&pos.EntryFundingRate, record.EntryFundingRate},
		{&pos.ReserveAmount, record.ReserveAmount},
		{&pos.RealisedPnl, record.RealisedPnl},
	}
	for _, f := range fields {
		n, ok := new(big.Int).SetString(f.src, 10)
		if !ok {
			return nil, errBadAmount
		}
		*f.dst = n
	}
	return pos, nil
}

// =============================================================================
// 池状态存储
// =============================================================================

var _ PoolRepository = (*MySQLPoolRepository)(nil)

// MySQLPoolRepository 池状态 MySQL 实现
type MySQLPoolRepository struct {
	db *gorm.DB
}

// NewMySQLPoolRepository 创建池状态 MySQL 存储
func NewMySQLPoolRepository(db *gorm.DB) *MySQLPoolRepository {
	return &MySQLPoolRepository{db: db}
}

// Save upsert 池状态
func (r *MySQLPoolRepository) Save(pool *PoolState) error {
	ctx, cancel := context.WithTimeout(context.Background(), mysqlWriteTimeout)
	defer cancel()

	record := &PoolRecord{
		Token:           pool.Token,
		PoolAmount:      pool.PoolAmount.String(),
		FeeReserves:     pool.FeeReserves.String(),
		USDXAmount:      pool.USDXAmount.String(),
		ReservedAmounts: pool.ReservedAmounts.String(),
		GuaranteedUsd:   pool.GuaranteedUsd.String(),
		BufferAmount:    pool.BufferAmount.String(),
		UpdatedAt:       time.Now().UnixMilli(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			UpdateAll: true,
		}).
		Create(record).Error
}

// LoadAll 全量恢复
func (r *MySQLPoolRepository) LoadAll() ([]*PoolState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mysqlWriteTimeout)
	defer cancel()

	var records []*PoolRecord
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}

	out := make([]*PoolState, 0, len(records))
	for _, record := range records {
		pool, err := record.toPoolState()
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, nil
}

func (record *PoolRecord) toPoolState() (*PoolState, error) {
	pool := &PoolState{Token: record.Token}
	fields := []struct {
		dst **big.Int
		src string
	}{
		{&pool.PoolAmount, record.PoolAmount},
		{&pool.FeeReserves, record.FeeReserves},
		{&pool.USDXAmount, record.USDXAmount},
		{&pool.ReservedAmounts, record.ReservedAmounts},
		{&pool.GuaranteedUsd, record.GuaranteedUsd},
		{&pool.BufferAmount, record.BufferAmount},
	}
	for _, f := range fields {
		n, ok := new(big.Int).SetString(f.src, 10)
		if !ok {
			return nil, errBadAmount
		}
		*f.dst = n
	}
	return pool, nil
}
