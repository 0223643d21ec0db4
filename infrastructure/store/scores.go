package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

// ScoreEntries returns every raw score of the grade ordered by player index,
// player number and seat.
func (s *Store) ScoreEntries(ctx context.Context, key domain.GradeKey) ([]domain.RawScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_number, player_index, player_name, player_gym, player_uid, seat_index, player_score
		FROM score_entries
		WHERE contest_id = ? AND category_id = ? AND grade_id = ?
		ORDER BY player_index, player_number, seat_index`,
		key.ContestID, key.CategoryID, key.GradeID,
	)
	if err != nil {
		return nil, ports.NewStoreError(key.String(), "ScoreEntries", err)
	}
	defer rows.Close()

	out := []domain.RawScore{}
	for rows.Next() {
		var r domain.RawScore
		if err := rows.Scan(
			&r.PlayerNumber, &r.PlayerIndex, &r.PlayerName, &r.PlayerGym, &r.PlayerUID,
			&r.SeatIndex, &r.PlayerScore,
		); err != nil {
			return nil, ports.NewStoreError(key.String(), "ScoreEntries", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError(key.String(), "ScoreEntries", err)
	}
	return out, nil
}

// PutScoreEntries upserts raw scores of the grade. A record for an existing
// (player, seat) pair replaces the earlier score.
func (s *Store) PutScoreEntries(ctx context.Context, key domain.GradeKey, entries []domain.RawScore) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO score_entries (
				contest_id, category_id, grade_id, player_number, player_index,
				player_name, player_gym, player_uid, seat_index, player_score
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (contest_id, category_id, grade_id, player_number, seat_index)
			DO UPDATE SET
				player_index = excluded.player_index,
				player_name  = excluded.player_name,
				player_gym   = excluded.player_gym,
				player_uid   = excluded.player_uid,
				player_score = excluded.player_score`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range entries {
			if _, err := stmt.ExecContext(ctx,
				key.ContestID, key.CategoryID, key.GradeID, r.PlayerNumber, r.PlayerIndex,
				r.PlayerName, r.PlayerGym, r.PlayerUID, r.SeatIndex, r.PlayerScore,
			); err != nil {
				return fmt.Errorf("insert player %d seat %d: %w", r.PlayerNumber, r.SeatIndex, err)
			}
		}
		return nil
	})
	if err != nil {
		return ports.NewStoreError(key.String(), "PutScoreEntries", err)
	}
	return nil
}

// Seats returns the judge seats assigned to the grade in ascending order.
func (s *Store) Seats(ctx context.Context, contestID, gradeID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seat_index FROM judge_seats WHERE contest_id = ? AND grade_id = ? ORDER BY seat_index",
		contestID, gradeID,
	)
	if err != nil {
		return nil, ports.NewStoreError(storeKey(contestID, gradeID), "Seats", err)
	}
	defer rows.Close()

	var seats []int
	for rows.Next() {
		var seat int
		if err := rows.Scan(&seat); err != nil {
			return nil, ports.NewStoreError(storeKey(contestID, gradeID), "Seats", err)
		}
		seats = append(seats, seat)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError(storeKey(contestID, gradeID), "Seats", err)
	}
	return seats, nil
}

// SetSeats replaces the judge seats assigned to the grade.
func (s *Store) SetSeats(ctx context.Context, contestID, gradeID string, seats []int) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM judge_seats WHERE contest_id = ? AND grade_id = ?", contestID, gradeID,
		); err != nil {
			return err
		}
		for _, seat := range seats {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO judge_seats (contest_id, grade_id, seat_index) VALUES (?, ?, ?)",
				contestID, gradeID, seat,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ports.NewStoreError(storeKey(contestID, gradeID), "SetSeats", err)
	}
	return nil
}
