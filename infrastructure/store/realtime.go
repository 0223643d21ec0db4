package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

// Top-level fields of the realtime status document owned by the engine.
// Every other field belongs to other subsystems and is carried through
// untouched.
const (
	docCompares    = "compares"
	docResultSaved = "resultSaved"
)

// realtimeDoc is the status document of one contest. Values stay raw so
// fields the engine does not own round-trip byte for byte.
type realtimeDoc map[string]json.RawMessage

func (d realtimeDoc) object(field string) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	raw, ok := d[field]
	if !ok || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	return out, nil
}

func (d realtimeDoc) set(field string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	d[field] = data
	return nil
}

func (d realtimeDoc) resultSaved() ([]string, error) {
	var out []string
	raw, ok := d[docResultSaved]
	if !ok || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", docResultSaved, err)
	}
	return out, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readDoc(ctx context.Context, q queryRower, contestID string) (realtimeDoc, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT doc FROM realtime_status WHERE contest_id = ?", contestID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return realtimeDoc{}, nil
	}
	if err != nil {
		return nil, err
	}
	doc := realtimeDoc{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode realtime document: %w", err)
	}
	return doc, nil
}

// updateDoc applies fn to the contest's document inside one transaction.
// The document is written back only when fn reports a change.
func (s *Store) updateDoc(ctx context.Context, contestID string, fn func(doc realtimeDoc) (bool, error)) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := readDoc(ctx, tx, contestID)
		if err != nil {
			return err
		}
		changed, err := fn(doc)
		if err != nil || !changed {
			return err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode realtime document: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO realtime_status (contest_id, doc, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (contest_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
			contestID, string(data), s.timestamp(),
		)
		return err
	})
}

// LoadCompare returns the compare state of the grade, or nil when there is
// none.
func (s *Store) LoadCompare(ctx context.Context, contestID, gradeID string) (*domain.CompareSession, error) {
	key := storeKey(contestID, gradeID)
	doc, err := readDoc(ctx, s.db, contestID)
	if err != nil {
		return nil, ports.NewStoreError(key, "LoadCompare", err)
	}
	compares, err := doc.object(docCompares)
	if err != nil {
		return nil, ports.NewStoreError(key, "LoadCompare", err)
	}
	raw, ok := compares[gradeID]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var session domain.CompareSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, ports.NewStoreError(key, "LoadCompare", fmt.Errorf("decode compare: %w", err))
	}
	return &session, nil
}

// SaveCompare replaces the compare entry of the session's grade.
func (s *Store) SaveCompare(ctx context.Context, session *domain.CompareSession) error {
	key := storeKey(session.ContestID, session.GradeID)
	err := s.updateDoc(ctx, session.ContestID, func(doc realtimeDoc) (bool, error) {
		compares, err := doc.object(docCompares)
		if err != nil {
			return false, err
		}
		data, err := json.Marshal(session)
		if err != nil {
			return false, fmt.Errorf("encode compare: %w", err)
		}
		compares[session.GradeID] = data
		return true, doc.set(docCompares, compares)
	})
	if err != nil {
		return ports.NewStoreError(key, "SaveCompare", err)
	}
	return nil
}

// ClearCompare removes the compare entry of the grade.
func (s *Store) ClearCompare(ctx context.Context, contestID, gradeID string) error {
	err := s.updateDoc(ctx, contestID, func(doc realtimeDoc) (bool, error) {
		compares, err := doc.object(docCompares)
		if err != nil {
			return false, err
		}
		if _, ok := compares[gradeID]; !ok {
			return false, nil
		}
		delete(compares, gradeID)
		return true, doc.set(docCompares, compares)
	})
	if err != nil {
		return ports.NewStoreError(storeKey(contestID, gradeID), "ClearCompare", err)
	}
	return nil
}

// PutBallot writes the seat's ballot slot and marks the seat submitted. Only
// the two per-seat entries change; the rest of the compare entry is carried
// through as stored.
func (s *Store) PutBallot(ctx context.Context, contestID, gradeID string, ballot domain.Ballot) error {
	seat := strconv.Itoa(ballot.SeatIndex)
	err := s.updateDoc(ctx, contestID, func(doc realtimeDoc) (bool, error) {
		compares, err := doc.object(docCompares)
		if err != nil {
			return false, err
		}
		raw, ok := compares[gradeID]
		if !ok || string(raw) == "null" {
			return false, ports.ErrNotFound
		}
		entry := realtimeDoc{}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return false, fmt.Errorf("decode compare: %w", err)
		}

		ballots, err := entry.object("ballots")
		if err != nil {
			return false, err
		}
		statuses, err := entry.object("judge_ballot_status")
		if err != nil {
			return false, err
		}
		if ballots[seat], err = json.Marshal(ballot); err != nil {
			return false, fmt.Errorf("encode ballot: %w", err)
		}
		statuses[seat] = json.RawMessage(strconv.Quote(string(domain.BallotSubmitted)))
		if err := entry.set("ballots", ballots); err != nil {
			return false, err
		}
		if err := entry.set("judge_ballot_status", statuses); err != nil {
			return false, err
		}

		if compares[gradeID], err = json.Marshal(entry); err != nil {
			return false, fmt.Errorf("encode compare: %w", err)
		}
		return true, doc.set(docCompares, compares)
	})
	if err != nil {
		return ports.NewStoreError(storeKey(contestID, gradeID), "PutBallot", err)
	}
	return nil
}

// ResultSaved returns the grade ids in the contest's resultSaved set.
func (s *Store) ResultSaved(ctx context.Context, contestID string) ([]string, error) {
	doc, err := readDoc(ctx, s.db, contestID)
	if err != nil {
		return nil, ports.NewStoreError(contestID, "ResultSaved", err)
	}
	saved, err := doc.resultSaved()
	if err != nil {
		return nil, ports.NewStoreError(contestID, "ResultSaved", err)
	}
	if saved == nil {
		saved = []string{}
	}
	return saved, nil
}

// MarkResultSaved unions gradeID into the resultSaved set.
func (s *Store) MarkResultSaved(ctx context.Context, contestID, gradeID string) error {
	err := s.updateDoc(ctx, contestID, func(doc realtimeDoc) (bool, error) {
		saved, err := doc.resultSaved()
		if err != nil {
			return false, err
		}
		if slices.Contains(saved, gradeID) {
			return false, nil
		}
		return true, doc.set(docResultSaved, append(saved, gradeID))
	})
	if err != nil {
		return ports.NewStoreError(storeKey(contestID, gradeID), "MarkResultSaved", err)
	}
	return nil
}

// ClearResultSaved removes gradeID from the resultSaved set.
func (s *Store) ClearResultSaved(ctx context.Context, contestID, gradeID string) error {
	err := s.updateDoc(ctx, contestID, func(doc realtimeDoc) (bool, error) {
		saved, err := doc.resultSaved()
		if err != nil {
			return false, err
		}
		i := slices.Index(saved, gradeID)
		if i < 0 {
			return false, nil
		}
		return true, doc.set(docResultSaved, slices.Delete(saved, i, i+1))
	})
	if err != nil {
		return ports.NewStoreError(storeKey(contestID, gradeID), "ClearResultSaved", err)
	}
	return nil
}

// Document returns the raw status document of the contest.
func (s *Store) Document(ctx context.Context, contestID string) (map[string]json.RawMessage, error) {
	doc, err := readDoc(ctx, s.db, contestID)
	if err != nil {
		return nil, ports.NewStoreError(contestID, "Document", err)
	}
	return doc, nil
}

// SetDocumentField writes a top-level field of the contest's status
// document. It is how other subsystems publish their own sibling fields.
func (s *Store) SetDocumentField(ctx context.Context, contestID, field string, value any) error {
	if field == docCompares || field == docResultSaved {
		return ports.NewStoreError(contestID, "SetDocumentField",
			fmt.Errorf("%w: field %q is owned by the engine", ports.ErrConflict, field))
	}
	err := s.updateDoc(ctx, contestID, func(doc realtimeDoc) (bool, error) {
		return true, doc.set(field, value)
	})
	if err != nil {
		return ports.NewStoreError(contestID, "SetDocumentField", err)
	}
	return nil
}
