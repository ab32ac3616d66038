package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/updown/execution"
	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Trade persistence layer
// ═══════════════════════════════════════════════════════════════════════════════

type Database struct {
	db *gorm.DB
}

// Models

// Trade is one settled or cancelled order
type Trade struct {
	ID          string          `gorm:"primaryKey"`
	MarketSlug  string          `gorm:"index"`
	Side        string          // YES or NO
	Shares      decimal.Decimal `gorm:"type:decimal(20,6)"`
	EntryPrice  decimal.Decimal `gorm:"type:decimal(10,6)"`
	PriceToBeat decimal.Decimal `gorm:"type:decimal(20,6)"`
	SettlePrice decimal.Decimal `gorm:"type:decimal(20,6)"`
	Result      string          `gorm:"index"` // WIN, LOSS, CANCELLED
	Fees        decimal.Decimal `gorm:"type:decimal(20,6)"`
	PnL         decimal.Decimal `gorm:"column:pnl;type:decimal(20,6)"`
	Balance     decimal.Decimal `gorm:"type:decimal(20,6)"`
	ClosedAt    time.Time       `gorm:"index"`
	CreatedAt   time.Time
}

// OpenOrder holds the in-flight order so a restart can resume it
type OpenOrder struct {
	ID        string `gorm:"primaryKey"`
	State     string
	Payload   string // JSON execution.Order
	UpdatedAt time.Time
}

// Equity is one point of the equity curve
type Equity struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,6)"`
	Peak      decimal.Decimal `gorm:"type:decimal(20,6)"`
	Drawdown  decimal.Decimal `gorm:"type:decimal(10,4)"`
	Trades    int
	Wins      int
	Losses    int
	Timestamp time.Time `gorm:"index"`
}

// AuditEvent is one row of the audit log
type AuditEvent struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"index"`
	Level     string
	Message   string
	CreatedAt time.Time
}

// Open connects to PostgreSQL when path is a postgres DSN, SQLite otherwise
func Open(path string) (*Database, error) {
	var db *gorm.DB
	var err error

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
		db, err = gorm.Open(postgres.Open(path), cfg)
		if err != nil {
			return nil, fmt.Errorf("storage: open postgres: %w", err)
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(path), cfg)
		if err != nil {
			return nil, fmt.Errorf("storage: open sqlite: %w", err)
		}
		log.Info().Str("path", path).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Trade{}, &OpenOrder{}, &Equity{}, &AuditEvent{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	return &Database{db: db}, nil
}

// Close releases the connection pool
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER STATE
// ═══════════════════════════════════════════════════════════════════════════════

// SaveOrder upserts the in-flight order
func (d *Database) SaveOrder(o execution.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return d.db.Save(&OpenOrder{
		ID:      o.ID,
		State:   string(o.State),
		Payload: string(payload),
	}).Error
}

// ClearOrder removes a finished order
func (d *Database) ClearOrder(id string) error {
	return d.db.Delete(&OpenOrder{}, "id = ?", id).Error
}

// LoadOrder returns the most recent unfinished order, or nil
func (d *Database) LoadOrder() (*execution.Order, error) {
	var row OpenOrder
	err := d.db.Order("updated_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var o execution.Order
	if err := json.Unmarshal([]byte(row.Payload), &o); err != nil {
		return nil, fmt.Errorf("storage: decode order %s: %w", row.ID, err)
	}
	if o.State.Terminal() {
		return nil, nil
	}
	return &o, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRADES & EQUITY
// ═══════════════════════════════════════════════════════════════════════════════

// CloseOrder writes the trade row and equity point and deletes the open
// order in one transaction
func (d *Database) CloseOrder(rec types.TradeRecord, p *execution.EquityPoint) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tradeRow(rec)).Error; err != nil {
			return fmt.Errorf("storage: trade %s: %w", rec.ID, err)
		}
		if p != nil {
			if err := tx.Create(equityRow(*p)).Error; err != nil {
				return fmt.Errorf("storage: equity: %w", err)
			}
		}
		return tx.Delete(&OpenOrder{}, "id = ?", rec.ID).Error
	})
}

// HasTrade reports whether a trade row exists for the order id
func (d *Database) HasTrade(id string) (bool, error) {
	var n int64
	if err := d.db.Model(&Trade{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func tradeRow(rec types.TradeRecord) *Trade {
	return &Trade{
		ID:          rec.ID,
		MarketSlug:  rec.MarketSlug,
		Side:        string(rec.Side),
		Shares:      rec.Shares,
		EntryPrice:  rec.EntryPrice,
		PriceToBeat: rec.PriceToBeat,
		SettlePrice: rec.SettlePrice,
		Result:      rec.Result,
		Fees:        rec.Fees,
		PnL:         rec.PnL,
		Balance:     rec.Balance,
		ClosedAt:    rec.Timestamp,
	}
}

// RecentTrades returns up to limit trades, newest first
func (d *Database) RecentTrades(limit int) ([]types.TradeRecord, error) {
	var rows []Trade
	if err := d.db.Order("closed_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]types.TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.TradeRecord{
			ID:          r.ID,
			Timestamp:   r.ClosedAt,
			MarketSlug:  r.MarketSlug,
			Side:        types.Side(r.Side),
			Shares:      r.Shares,
			EntryPrice:  r.EntryPrice,
			SettlePrice: r.SettlePrice,
			PriceToBeat: r.PriceToBeat,
			Result:      r.Result,
			Fees:        r.Fees,
			PnL:         r.PnL,
			Balance:     r.Balance,
		})
	}
	return out, nil
}

// TotalPnL sums PnL over every settled trade
func (d *Database) TotalPnL() (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := d.db.Model(&Trade{}).Select("COALESCE(SUM(pnl), 0) as total").Scan(&result).Error
	return result.Total, err
}

func equityRow(p execution.EquityPoint) *Equity {
	return &Equity{
		Balance:   p.Balance,
		Peak:      p.Peak,
		Drawdown:  p.Drawdown,
		Trades:    p.Trades,
		Wins:      p.Wins,
		Losses:    p.Losses,
		Timestamp: p.Timestamp,
	}
}

// LastBalance returns the balance of the newest equity point, or nil
func (d *Database) LastBalance() (*decimal.Decimal, error) {
	var row Equity
	err := d.db.Order("id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row.Balance, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// AUDIT LOG
// ═══════════════════════════════════════════════════════════════════════════════

// RecordEvent appends an audit row. Error kinds are stored at warn level.
func (d *Database) RecordEvent(kind, message string) error {
	level := "info"
	switch kind {
	case "live_error", "oracle", "error", "config":
		level = "warn"
	}
	return d.db.Create(&AuditEvent{Kind: kind, Level: level, Message: message}).Error
}

// RecentEvents returns up to limit audit rows, newest first
func (d *Database) RecentEvents(limit int) ([]AuditEvent, error) {
	var rows []AuditEvent
	err := d.db.Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
