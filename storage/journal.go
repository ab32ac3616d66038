package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/web3guy0/updown/execution"
	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CSV JOURNAL - trades.csv and equity.csv for offline analysis
// ═══════════════════════════════════════════════════════════════════════════════

const (
	TradesFile = "trades.csv"
	EquityFile = "equity.csv"
	StateFile  = "bot_state.json"
)

var (
	tradeHeader  = []string{"timestamp", "id", "slug", "side", "shares", "fill_price", "price_to_beat", "settle_price", "result", "fees", "pnl", "balance"}
	equityHeader = []string{"timestamp", "balance", "peak_balance", "drawdown_pct", "trades", "wins", "losses"}
)

// CSVJournal appends rows under a state directory
type CSVJournal struct {
	mu  sync.Mutex
	dir string
}

// NewCSVJournal creates dir and writes headers for new files
func NewCSVJournal(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	j := &CSVJournal{dir: dir}
	if err := j.ensureHeader(TradesFile, tradeHeader); err != nil {
		return nil, err
	}
	if err := j.ensureHeader(EquityFile, equityHeader); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) ensureHeader(name string, header []string) error {
	path := filepath.Join(j.dir, name)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return nil
	}
	return j.append(name, header)
}

func (j *CSVJournal) append(name string, row []string) error {
	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// CloseOrder appends the trade row and, for settlements, the equity row
func (j *CSVJournal) CloseOrder(rec types.TradeRecord, p *execution.EquityPoint) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.appendTrade(rec); err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	return j.appendEquity(*p)
}

func (j *CSVJournal) appendTrade(rec types.TradeRecord) error {
	return j.append(TradesFile, []string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.ID,
		rec.MarketSlug,
		string(rec.Side),
		rec.Shares.String(),
		rec.EntryPrice.String(),
		rec.PriceToBeat.StringFixed(2),
		rec.SettlePrice.StringFixed(2),
		rec.Result,
		rec.Fees.StringFixed(4),
		rec.PnL.StringFixed(4),
		rec.Balance.StringFixed(4),
	})
}

func (j *CSVJournal) appendEquity(p execution.EquityPoint) error {
	return j.append(EquityFile, []string{
		p.Timestamp.UTC().Format(time.RFC3339),
		p.Balance.StringFixed(4),
		p.Peak.StringFixed(4),
		p.Drawdown.StringFixed(2),
		fmt.Sprint(p.Trades),
		fmt.Sprint(p.Wins),
		fmt.Sprint(p.Losses),
	})
}

// Order state, trade lookups and audit rows live in the database only
func (j *CSVJournal) SaveOrder(execution.Order) error  { return nil }
func (j *CSVJournal) ClearOrder(string) error          { return nil }
func (j *CSVJournal) HasTrade(string) (bool, error)    { return false, nil }
func (j *CSVJournal) RecordEvent(string, string) error { return nil }

// ═══════════════════════════════════════════════════════════════════════════════
// FANOUT
// ═══════════════════════════════════════════════════════════════════════════════

// Journals writes to every journal and joins their errors
type Journals []execution.Journal

func (js Journals) SaveOrder(o execution.Order) error {
	return js.each(func(j execution.Journal) error { return j.SaveOrder(o) })
}

func (js Journals) ClearOrder(id string) error {
	return js.each(func(j execution.Journal) error { return j.ClearOrder(id) })
}

func (js Journals) CloseOrder(rec types.TradeRecord, p *execution.EquityPoint) error {
	return js.each(func(j execution.Journal) error { return j.CloseOrder(rec, p) })
}

// HasTrade is true when any journal has the trade
func (js Journals) HasTrade(id string) (bool, error) {
	var errs []error
	for _, j := range js {
		ok, err := j.HasTrade(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}

func (js Journals) RecordEvent(kind, message string) error {
	return js.each(func(j execution.Journal) error { return j.RecordEvent(kind, message) })
}

func (js Journals) each(fn func(execution.Journal) error) error {
	var errs []error
	for _, j := range js {
		if err := fn(j); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATE SNAPSHOT
// ═══════════════════════════════════════════════════════════════════════════════

// WriteJSONAtomic writes v to path through a temp file and rename, so a
// reader never sees a partial document
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
