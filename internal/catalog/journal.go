package catalog

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/idmlkit/internal/document"
)

// TxRow is one journaled transaction.
type TxRow struct {
	ID          string           `json:"id"`
	Archive     string           `json:"archive"`
	Dest        string           `json:"dest"`
	WorkingCopy string           `json:"working_copy"`
	State       document.TxState `json:"state"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	EndedAt     *time.Time       `json:"ended_at,omitempty"`
}

// Begin records a transaction as active.
func (db *DB) Begin(rec document.TxRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO transactions (id, archive, dest, working_copy, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Archive, rec.Dest, rec.WorkingCopy, string(document.TxActive), rec.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("catalog: journal begin: %w", err)
	}
	return nil
}

// Finish records the final state of a transaction.
func (db *DB) Finish(id string, state document.TxState, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := db.conn.Exec(`
		UPDATE transactions SET state = ?, error = ?, ended_at = ? WHERE id = ?
	`, string(state), msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("catalog: journal finish: %w", err)
	}
	return nil
}

// Transactions returns the most recent transactions, newest first.
// An empty state matches every state.
func (db *DB) Transactions(state document.TxState, limit int) ([]TxRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, archive, dest, working_copy, state, error, started_at, ended_at
		FROM transactions
		WHERE ? = '' OR state = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, string(state), string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: transactions: %w", err)
	}
	defer rows.Close()

	var out []TxRow
	for rows.Next() {
		var (
			r     TxRow
			st    string
			ended sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Archive, &r.Dest, &r.WorkingCopy, &st, &r.Error, &r.StartedAt, &ended); err != nil {
			return nil, err
		}
		r.State = document.TxState(st)
		if ended.Valid {
			t := ended.Time
			r.EndedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkReclaimed flags a retained working copy as removed.
func (db *DB) MarkReclaimed(id string) error {
	_, err := db.conn.Exec(`UPDATE transactions SET state = ? WHERE id = ?`, string(document.TxReclaimed), id)
	if err != nil {
		return fmt.Errorf("catalog: mark reclaimed: %w", err)
	}
	return nil
}

// Sweep removes the working copies of retained transactions and returns how
// many were reclaimed.
func Sweep(db *DB, logger *slog.Logger) (int, error) {
	retained, err := db.Transactions(document.TxRetained, 1000)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range retained {
		if err := os.RemoveAll(r.WorkingCopy); err != nil {
			logger.Warn("sweep: remove failed", slog.String("tx", r.ID), slog.String("dir", r.WorkingCopy), slog.String("error", err.Error()))
			continue
		}
		if err := db.MarkReclaimed(r.ID); err != nil {
			logger.Warn("sweep: mark failed", slog.String("tx", r.ID), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sweep: reclaimed", slog.String("tx", r.ID), slog.String("dir", r.WorkingCopy))
		n++
	}
	return n, nil
}
