package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

// ReplaceResult deletes every prior result of the grade and writes snapshot
// in its place within one transaction.
func (s *Store) ReplaceResult(ctx context.Context, snapshot domain.ResultSnapshot) error {
	key := storeKey(snapshot.ContestID, snapshot.GradeID)
	groups, err := json.Marshal(snapshot.Groups)
	if err != nil {
		return ports.NewStoreError(key, "ReplaceResult", fmt.Errorf("encode groups: %w", err))
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM results WHERE contest_id = ? AND grade_id = ?",
			snapshot.ContestID, snapshot.GradeID,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO results (contest_id, grade_id, hash, groups_json, saved_at) VALUES (?, ?, ?, ?, ?)",
			snapshot.ContestID, snapshot.GradeID, snapshot.Hash, string(groups),
			snapshot.SavedAt.UTC().Format(timeLayout),
		)
		return err
	})
	if err != nil {
		return ports.NewStoreError(key, "ReplaceResult", err)
	}
	return nil
}

// LoadResult returns the stored snapshot of the grade or ports.ErrNotFound.
func (s *Store) LoadResult(ctx context.Context, contestID, gradeID string) (domain.ResultSnapshot, error) {
	key := storeKey(contestID, gradeID)
	var hash, groups, savedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT hash, groups_json, saved_at FROM results WHERE contest_id = ? AND grade_id = ?",
		contestID, gradeID,
	).Scan(&hash, &groups, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ResultSnapshot{}, ports.NewStoreError(key, "LoadResult", ports.ErrNotFound)
	}
	if err != nil {
		return domain.ResultSnapshot{}, ports.NewStoreError(key, "LoadResult", err)
	}

	snap := domain.ResultSnapshot{ContestID: contestID, GradeID: gradeID, Hash: hash}
	if err := json.Unmarshal([]byte(groups), &snap.Groups); err != nil {
		return domain.ResultSnapshot{}, ports.NewStoreError(key, "LoadResult", fmt.Errorf("decode groups: %w", err))
	}
	if snap.SavedAt, err = parseTime(savedAt); err != nil {
		return domain.ResultSnapshot{}, ports.NewStoreError(key, "LoadResult", err)
	}
	return snap, nil
}

// DeleteResult removes the stored snapshot of the grade.
func (s *Store) DeleteResult(ctx context.Context, contestID, gradeID string) error {
	if _, err := s.execWithRetry(ctx,
		"DELETE FROM results WHERE contest_id = ? AND grade_id = ?", contestID, gradeID,
	); err != nil {
		return ports.NewStoreError(storeKey(contestID, gradeID), "DeleteResult", err)
	}
	return nil
}
