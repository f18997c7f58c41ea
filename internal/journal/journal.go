package journal

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Journal writes the append-only observability streams. It never mutates
// business state, and a failed write is a warning, never an error that could
// stop a trade.
type Journal struct {
	dir    string
	logger zerolog.Logger
}

// NewJournal creates a journal rooted at dir
func NewJournal(dir string, logger zerolog.Logger) *Journal {
	return &Journal{dir: dir, logger: logger}
}

// WriteLoop persists one full LoopResult as its own file
func (j *Journal) WriteLoop(lr *LoopResult) {
	name := fmt.Sprintf("loop_%s_%s.json", lr.Timestamp.UTC().Format("20060102T150405Z"), lr.LoopID)
	path := filepath.Join(j.dir, "loops", name)

	data, err := json.MarshalIndent(lr, "", "  ")
	if err != nil {
		j.logger.Warn().Err(err).Msg("Failed to marshal loop result")
		return
	}
	if err := j.writeFile(path, data); err != nil {
		j.logger.Warn().Err(err).Str("path", path).Msg("Failed to write loop result")
		return
	}

	j.appendDecisionCSV(lr)
}

// WriteTrade appends a trade event to today's JSONL stream and the CSV mirror
func (j *Journal) WriteTrade(ev TradeEvent) {
	name := fmt.Sprintf("trades_%s.jsonl", ev.Timestamp.UTC().Format("20060102"))
	j.appendJSONL(filepath.Join(j.dir, "trades", name), ev)

	j.appendCSV(filepath.Join(j.dir, "trades.csv"),
		[]string{"timestamp", "loop_id", "symbol", "side", "direction", "system", "notional", "order_id", "status", "exit_reason"},
		[]string{
			ev.Timestamp.UTC().Format(time.RFC3339),
			ev.LoopID,
			ev.Symbol,
			ev.Side,
			ev.Direction,
			strconv.Itoa(ev.System),
			formatFloat(ev.Notional),
			ev.OrderID,
			ev.Status,
			ev.ExitReason,
		})
}

// WriteEquity appends an equity snapshot to today's JSONL stream and the CSV mirror
func (j *Journal) WriteEquity(es EquitySnapshot) {
	name := fmt.Sprintf("equity_%s.jsonl", es.Timestamp.UTC().Format("20060102"))
	j.appendJSONL(filepath.Join(j.dir, "equity", name), es)

	j.appendCSV(filepath.Join(j.dir, "equity.csv"),
		[]string{"timestamp", "loop_id", "equity", "cash", "buying_power", "pnl_day", "positions"},
		[]string{
			es.Timestamp.UTC().Format(time.RFC3339),
			es.LoopID,
			formatFloat(es.Equity),
			formatFloat(es.Cash),
			formatFloat(es.BuyingPower),
			formatFloat(es.PnLDay),
			strconv.Itoa(es.Positions),
		})
}

// appendDecisionCSV mirrors the headline of each loop into decisions.csv
func (j *Journal) appendDecisionCSV(lr *LoopResult) {
	symbol, side, notional, confidence := "", "", "", ""
	if lr.Decision.IsTrade() {
		symbol = lr.Decision.Trade.Symbol
		side = string(lr.Decision.Trade.Side)
		notional = formatFloat(lr.Decision.Trade.NotionalUSD)
		confidence = formatFloat(lr.Decision.Trade.Confidence)
	}
	status := ""
	if lr.Order != nil {
		status = string(lr.Order.Status)
	}

	j.appendCSV(filepath.Join(j.dir, "decisions.csv"),
		[]string{"timestamp", "loop_id", "action", "symbol", "side", "notional", "confidence", "status", "reason"},
		[]string{
			lr.Timestamp.UTC().Format(time.RFC3339),
			lr.LoopID,
			string(lr.Decision.Action),
			symbol,
			side,
			notional,
			confidence,
			status,
			lr.Decision.Reason,
		})
}

func (j *Journal) appendJSONL(path string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		j.logger.Warn().Err(err).Str("path", path).Msg("Failed to marshal journal record")
		return
	}
	if err := j.appendFile(path, append(data, '\n')); err != nil {
		j.logger.Warn().Err(err).Str("path", path).Msg("Failed to append journal record")
	}
}

// appendCSV appends one row, writing the header first on a fresh file
func (j *Journal) appendCSV(path string, header, row []string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		j.logger.Warn().Err(err).Str("path", path).Msg("Failed to create journal dir")
		return
	}

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		j.logger.Warn().Err(err).Str("path", path).Msg("Failed to open CSV")
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			j.logger.Warn().Err(err).Str("path", path).Msg("Failed to write CSV header")
			return
		}
	}
	if err := w.Write(row); err != nil {
		j.logger.Warn().Err(err).Str("path", path).Msg("Failed to write CSV row")
		return
	}
	w.Flush()
	if err := w.Error(); err != nil {
		j.logger.Warn().Err(err).Str("path", path).Msg("Failed to flush CSV")
	}
}

func (j *Journal) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (j *Journal) appendFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
