package ledger

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// History is the append-only trade audit trail. Every position ever created
// gets a row per lifecycle event; rows are never updated or pruned.
type History struct {
	db *sql.DB
}

// OpenHistory opens (and migrates) the SQLite trade history in dataDir.
func OpenHistory(dataDir string) (*History, error) {
	dbPath := filepath.Join(dataDir, "history.db")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	h := &History{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return h, nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trade_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at DATETIME NOT NULL,
		event TEXT NOT NULL,
		position_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		side TEXT NOT NULL,
		size INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		strategy TEXT NOT NULL,
		simulated INTEGER NOT NULL,
		status TEXT NOT NULL,
		outcome TEXT,
		realized_pnl TEXT,
		fail_reason TEXT,
		order_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_history_position ON trade_history(position_id);
	CREATE INDEX IF NOT EXISTS idx_history_ticker ON trade_history(ticker);
	CREATE INDEX IF NOT EXISTS idx_history_recorded ON trade_history(recorded_at);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Append records one lifecycle event for a position.
func (h *History) Append(event string, p Position) error {
	pnl := ""
	if p.RealizedPnL != nil {
		pnl = p.RealizedPnL.String()
	}

	_, err := h.db.Exec(`
		INSERT INTO trade_history
			(recorded_at, event, position_id, ticker, side, size, entry_price, strategy, simulated, status, outcome, realized_pnl, fail_reason, order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), event, p.ID, p.Ticker, string(p.Side), p.Size, p.EntryPrice,
		p.Strategy, p.Simulated, string(p.Status), string(p.SettlementOutcome), pnl, p.FailReason, p.OrderID,
	)
	if err != nil {
		return fmt.Errorf("append trade history: %w", err)
	}
	return nil
}

// Event is one audit row read back from the history.
type Event struct {
	Seq        int64
	RecordedAt time.Time
	Event      string
	PositionID string
	Ticker     string
	Status     string
}

// EventsFor returns all recorded events for one position, oldest first.
func (h *History) EventsFor(positionID string) ([]Event, error) {
	rows, err := h.db.Query(`
		SELECT seq, recorded_at, event, position_id, ticker, status
		FROM trade_history WHERE position_id = ? ORDER BY seq`,
		positionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.RecordedAt, &e.Event, &e.PositionID, &e.Ticker, &e.Status); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
