package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

// LoadHistory returns the compare records of the grade ordered by compare
// index.
func (s *Store) LoadHistory(ctx context.Context, contestID, gradeID string) ([]domain.CompareRecord, error) {
	key := storeKey(contestID, gradeID)
	rows, err := s.db.QueryContext(ctx,
		"SELECT record_json FROM compare_history WHERE contest_id = ? AND grade_id = ? ORDER BY compare_index",
		contestID, gradeID,
	)
	if err != nil {
		return nil, ports.NewStoreError(key, "LoadHistory", err)
	}
	defer rows.Close()

	out := []domain.CompareRecord{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, ports.NewStoreError(key, "LoadHistory", err)
		}
		var rec domain.CompareRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, ports.NewStoreError(key, "LoadHistory", fmt.Errorf("decode record: %w", err))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError(key, "LoadHistory", err)
	}
	return out, nil
}

// AppendRecord appends record to the grade's history. The record's compare
// index must exceed every stored index.
func (s *Store) AppendRecord(ctx context.Context, contestID, gradeID string, record domain.CompareRecord) error {
	key := storeKey(contestID, gradeID)
	data, err := json.Marshal(record)
	if err != nil {
		return ports.NewStoreError(key, "AppendRecord", fmt.Errorf("encode record: %w", err))
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var last sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			"SELECT MAX(compare_index) FROM compare_history WHERE contest_id = ? AND grade_id = ?",
			contestID, gradeID,
		).Scan(&last); err != nil {
			return err
		}
		if last.Valid && int(last.Int64) >= record.CompareIndex {
			return fmt.Errorf("%w: compare index %d not after %d", ports.ErrConflict, record.CompareIndex, last.Int64)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO compare_history (contest_id, grade_id, compare_index, record_json) VALUES (?, ?, ?, ?)",
			contestID, gradeID, record.CompareIndex, string(data),
		)
		return err
	})
	if err != nil {
		return ports.NewStoreError(key, "AppendRecord", err)
	}
	return nil
}

// ReplaceHistory replaces the full record array of the grade.
func (s *Store) ReplaceHistory(ctx context.Context, contestID, gradeID string, records []domain.CompareRecord) error {
	key := storeKey(contestID, gradeID)
	encoded := make([]string, len(records))
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return ports.NewStoreError(key, "ReplaceHistory", fmt.Errorf("encode record: %w", err))
		}
		encoded[i] = string(data)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM compare_history WHERE contest_id = ? AND grade_id = ?", contestID, gradeID,
		); err != nil {
			return err
		}
		for i, rec := range records {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO compare_history (contest_id, grade_id, compare_index, record_json) VALUES (?, ?, ?, ?)",
				contestID, gradeID, rec.CompareIndex, encoded[i],
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ports.NewStoreError(key, "ReplaceHistory", err)
	}
	return nil
}
