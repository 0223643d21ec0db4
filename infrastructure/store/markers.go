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

// PutMarker writes the session-open marker of the grade, replacing any
// previous marker.
func (s *Store) PutMarker(ctx context.Context, marker domain.OpenMarker) error {
	key := storeKey(marker.ContestID, marker.GradeID)
	var snapshot sql.NullString
	if marker.Snapshot != nil {
		data, err := json.Marshal(marker.Snapshot)
		if err != nil {
			return ports.NewStoreError(key, "PutMarker", fmt.Errorf("encode snapshot: %w", err))
		}
		snapshot = sql.NullString{String: string(data), Valid: true}
	}

	if _, err := s.execWithRetry(ctx, `
		INSERT INTO open_markers (contest_id, grade_id, session_id, opened_by, opened_at, snapshot_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (contest_id, grade_id) DO UPDATE SET
			session_id    = excluded.session_id,
			opened_by     = excluded.opened_by,
			opened_at     = excluded.opened_at,
			snapshot_json = excluded.snapshot_json`,
		marker.ContestID, marker.GradeID, marker.SessionID, marker.OpenedBy,
		marker.OpenedAt.UTC().Format(timeLayout), snapshot,
	); err != nil {
		return ports.NewStoreError(key, "PutMarker", err)
	}
	return nil
}

// LoadMarker returns the marker of the grade or ports.ErrNotFound.
func (s *Store) LoadMarker(ctx context.Context, contestID, gradeID string) (domain.OpenMarker, error) {
	key := storeKey(contestID, gradeID)
	var (
		marker   = domain.OpenMarker{ContestID: contestID, GradeID: gradeID}
		openedAt string
		snapshot sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT session_id, opened_by, opened_at, snapshot_json FROM open_markers WHERE contest_id = ? AND grade_id = ?",
		contestID, gradeID,
	).Scan(&marker.SessionID, &marker.OpenedBy, &openedAt, &snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OpenMarker{}, ports.NewStoreError(key, "LoadMarker", ports.ErrNotFound)
	}
	if err != nil {
		return domain.OpenMarker{}, ports.NewStoreError(key, "LoadMarker", err)
	}

	if marker.OpenedAt, err = parseTime(openedAt); err != nil {
		return domain.OpenMarker{}, ports.NewStoreError(key, "LoadMarker", err)
	}
	if snapshot.Valid {
		marker.Snapshot = &domain.CompareSession{}
		if err := json.Unmarshal([]byte(snapshot.String), marker.Snapshot); err != nil {
			return domain.OpenMarker{}, ports.NewStoreError(key, "LoadMarker", fmt.Errorf("decode snapshot: %w", err))
		}
	}
	return marker, nil
}

// DeleteMarker removes the marker of the grade.
func (s *Store) DeleteMarker(ctx context.Context, contestID, gradeID string) error {
	if _, err := s.execWithRetry(ctx,
		"DELETE FROM open_markers WHERE contest_id = ? AND grade_id = ?", contestID, gradeID,
	); err != nil {
		return ports.NewStoreError(storeKey(contestID, gradeID), "DeleteMarker", err)
	}
	return nil
}
