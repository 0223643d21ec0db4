// Package testutils provides in-memory implementations of the engine's ports
// for deterministic unit and integration tests.
package testutils

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

var (
	_ ports.ScoreSource        = (*MemoryStore)(nil)
	_ ports.RosterSource       = (*MemoryStore)(nil)
	_ ports.RealtimeChannel    = (*MemoryStore)(nil)
	_ ports.ResultSink         = (*MemoryStore)(nil)
	_ ports.CompareHistorySink = (*MemoryStore)(nil)
	_ ports.SessionMarkerStore = (*MemoryStore)(nil)
)

// MemoryStore implements every persistence port in memory.
// Values are copied on the way in and out so callers cannot alias stored
// state. Failures can be injected per operation name with FailOn.
type MemoryStore struct {
	mu sync.Mutex

	scores   map[domain.GradeKey][]domain.RawScore
	seats    map[string][]int
	compares map[string]*domain.CompareSession
	saved    map[string]map[string]struct{}
	results  map[string]domain.ResultSnapshot
	history  map[string][]domain.CompareRecord
	markers  map[string]domain.OpenMarker

	failures map[string]error
	calls    map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scores:   make(map[domain.GradeKey][]domain.RawScore),
		seats:    make(map[string][]int),
		compares: make(map[string]*domain.CompareSession),
		saved:    make(map[string]map[string]struct{}),
		results:  make(map[string]domain.ResultSnapshot),
		history:  make(map[string][]domain.CompareRecord),
		markers:  make(map[string]domain.OpenMarker),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func gradeKey(contestID, gradeID string) string { return contestID + "/" + gradeID }

// FailOn makes every later call of the named operation (for example
// "AppendRecord") return err. A nil err clears the injected failure.
func (m *MemoryStore) FailOn(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, operation)
		return
	}
	m.failures[operation] = err
}

// Calls returns how many times the named operation was invoked.
func (m *MemoryStore) Calls(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[operation]
}

// enter records the call and returns the injected failure, if any.
// The caller must hold m.mu.
func (m *MemoryStore) enter(operation string) error {
	m.calls[operation]++
	if err, ok := m.failures[operation]; ok {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// SetScores seeds the raw scores of a grade.
func (m *MemoryStore) SetScores(key domain.GradeKey, scores []domain.RawScore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[key] = slices.Clone(scores)
}

// SetSeats seeds the judge seats of a grade.
func (m *MemoryStore) SetSeats(contestID, gradeID string, seats ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seats[gradeKey(contestID, gradeID)] = slices.Clone(seats)
}

// ScoreEntries implements ports.ScoreSource.
func (m *MemoryStore) ScoreEntries(_ context.Context, key domain.GradeKey) ([]domain.RawScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ScoreEntries"); err != nil {
		return nil, err
	}
	out := slices.Clone(m.scores[key])
	if out == nil {
		out = []domain.RawScore{}
	}
	return out, nil
}

// Seats implements ports.RosterSource.
func (m *MemoryStore) Seats(_ context.Context, contestID, gradeID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Seats"); err != nil {
		return nil, err
	}
	return slices.Clone(m.seats[gradeKey(contestID, gradeID)]), nil
}

// LoadCompare implements ports.RealtimeChannel.
func (m *MemoryStore) LoadCompare(_ context.Context, contestID, gradeID string) (*domain.CompareSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LoadCompare"); err != nil {
		return nil, err
	}
	return m.compares[gradeKey(contestID, gradeID)].Clone(), nil
}

// SaveCompare implements ports.RealtimeChannel.
func (m *MemoryStore) SaveCompare(_ context.Context, session *domain.CompareSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SaveCompare"); err != nil {
		return err
	}
	m.compares[gradeKey(session.ContestID, session.GradeID)] = session.Clone()
	return nil
}

// ClearCompare implements ports.RealtimeChannel.
func (m *MemoryStore) ClearCompare(_ context.Context, contestID, gradeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ClearCompare"); err != nil {
		return err
	}
	delete(m.compares, gradeKey(contestID, gradeID))
	return nil
}

// PutBallot implements ports.RealtimeChannel.
func (m *MemoryStore) PutBallot(_ context.Context, contestID, gradeID string, ballot domain.Ballot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PutBallot"); err != nil {
		return err
	}
	s, ok := m.compares[gradeKey(contestID, gradeID)]
	if !ok {
		return ports.ErrNotFound
	}
	if s.Ballots == nil {
		s.Ballots = make(map[int]domain.Ballot)
	}
	if s.JudgeBallotStatus == nil {
		s.JudgeBallotStatus = make(map[int]domain.BallotStatus)
	}
	ballot.VotedPlayers = slices.Clone(ballot.VotedPlayers)
	s.Ballots[ballot.SeatIndex] = ballot
	s.JudgeBallotStatus[ballot.SeatIndex] = domain.BallotSubmitted
	return nil
}

// ResultSaved implements ports.RealtimeChannel.
func (m *MemoryStore) ResultSaved(_ context.Context, contestID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ResultSaved"); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m.saved[contestID]))
	for g := range m.saved[contestID] {
		out = append(out, g)
	}
	slices.Sort(out)
	return out, nil
}

// MarkResultSaved implements ports.RealtimeChannel.
func (m *MemoryStore) MarkResultSaved(_ context.Context, contestID, gradeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("MarkResultSaved"); err != nil {
		return err
	}
	set, ok := m.saved[contestID]
	if !ok {
		set = make(map[string]struct{})
		m.saved[contestID] = set
	}
	set[gradeID] = struct{}{}
	return nil
}

// ClearResultSaved implements ports.RealtimeChannel.
func (m *MemoryStore) ClearResultSaved(_ context.Context, contestID, gradeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ClearResultSaved"); err != nil {
		return err
	}
	delete(m.saved[contestID], gradeID)
	return nil
}

// ReplaceResult implements ports.ResultSink.
func (m *MemoryStore) ReplaceResult(_ context.Context, snapshot domain.ResultSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceResult"); err != nil {
		return err
	}
	snapshot.Groups = domain.CloneGroups(snapshot.Groups)
	m.results[gradeKey(snapshot.ContestID, snapshot.GradeID)] = snapshot
	return nil
}

// LoadResult implements ports.ResultSink.
func (m *MemoryStore) LoadResult(_ context.Context, contestID, gradeID string) (domain.ResultSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LoadResult"); err != nil {
		return domain.ResultSnapshot{}, err
	}
	snap, ok := m.results[gradeKey(contestID, gradeID)]
	if !ok {
		return domain.ResultSnapshot{}, ports.ErrNotFound
	}
	snap.Groups = domain.CloneGroups(snap.Groups)
	return snap, nil
}

// DeleteResult implements ports.ResultSink.
func (m *MemoryStore) DeleteResult(_ context.Context, contestID, gradeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteResult"); err != nil {
		return err
	}
	delete(m.results, gradeKey(contestID, gradeID))
	return nil
}

// LoadHistory implements ports.CompareHistorySink.
func (m *MemoryStore) LoadHistory(_ context.Context, contestID, gradeID string) ([]domain.CompareRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LoadHistory"); err != nil {
		return nil, err
	}
	out := slices.Clone(m.history[gradeKey(contestID, gradeID)])
	if out == nil {
		out = []domain.CompareRecord{}
	}
	return out, nil
}

// AppendRecord implements ports.CompareHistorySink.
func (m *MemoryStore) AppendRecord(_ context.Context, contestID, gradeID string, record domain.CompareRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("AppendRecord"); err != nil {
		return err
	}
	key := gradeKey(contestID, gradeID)
	records := m.history[key]
	if n := len(records); n > 0 && records[n-1].CompareIndex >= record.CompareIndex {
		return ports.ErrConflict
	}
	m.history[key] = append(records, record)
	return nil
}

// ReplaceHistory implements ports.CompareHistorySink.
func (m *MemoryStore) ReplaceHistory(_ context.Context, contestID, gradeID string, records []domain.CompareRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceHistory"); err != nil {
		return err
	}
	m.history[gradeKey(contestID, gradeID)] = slices.Clone(records)
	return nil
}

// PutMarker implements ports.SessionMarkerStore.
func (m *MemoryStore) PutMarker(_ context.Context, marker domain.OpenMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PutMarker"); err != nil {
		return err
	}
	marker.Snapshot = marker.Snapshot.Clone()
	m.markers[gradeKey(marker.ContestID, marker.GradeID)] = marker
	return nil
}

// LoadMarker implements ports.SessionMarkerStore.
func (m *MemoryStore) LoadMarker(_ context.Context, contestID, gradeID string) (domain.OpenMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LoadMarker"); err != nil {
		return domain.OpenMarker{}, err
	}
	marker, ok := m.markers[gradeKey(contestID, gradeID)]
	if !ok {
		return domain.OpenMarker{}, ports.ErrNotFound
	}
	marker.Snapshot = marker.Snapshot.Clone()
	return marker, nil
}

// DeleteMarker implements ports.SessionMarkerStore.
func (m *MemoryStore) DeleteMarker(_ context.Context, contestID, gradeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteMarker"); err != nil {
		return err
	}
	delete(m.markers, gradeKey(contestID, gradeID))
	return nil
}
