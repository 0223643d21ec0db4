package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-podium/internal/domain"
)

// ScoreSource supplies raw per-judge score records. It is read-only to the
// engine; the engine never migrates or rewrites its schema.
type ScoreSource interface {
	// ScoreEntries returns every raw score of the grade identified by key.
	// An unknown grade yields an empty slice, not an error.
	ScoreEntries(ctx context.Context, key domain.GradeKey) ([]domain.RawScore, error)
}

// RosterSource supplies the judge seats assigned to a grade.
type RosterSource interface {
	// Seats returns the seat indexes assigned to the grade.
	Seats(ctx context.Context, contestID, gradeID string) ([]int, error)
}

// RealtimeChannel is the shared, externally visible status document of a
// contest. Other subsystems read and write sibling fields of the same
// document; implementations touch only the compare entry of the addressed
// grade and the resultSaved set, and must preserve everything else.
type RealtimeChannel interface {
	// LoadCompare returns the compare state of the grade, or nil when the
	// grade has none.
	LoadCompare(ctx context.Context, contestID, gradeID string) (*domain.CompareSession, error)

	// SaveCompare replaces the compare state of the session's grade.
	SaveCompare(ctx context.Context, session *domain.CompareSession) error

	// ClearCompare removes the compare state of the grade, returning it to
	// idle.
	ClearCompare(ctx context.Context, contestID, gradeID string) error

	// PutBallot writes one seat's ballot slot and marks the seat submitted.
	// Writes for different seats never interfere; a later write for the
	// same seat wins.
	PutBallot(ctx context.Context, contestID, gradeID string, ballot domain.Ballot) error

	// ResultSaved returns the grade ids whose result is published.
	ResultSaved(ctx context.Context, contestID string) ([]string, error)

	// MarkResultSaved unions gradeID into the resultSaved set.
	MarkResultSaved(ctx context.Context, contestID, gradeID string) error

	// ClearResultSaved removes gradeID from the resultSaved set.
	ClearResultSaved(ctx context.Context, contestID, gradeID string) error
}

// ResultSink stores one confirmed ranking snapshot per (contest, grade).
type ResultSink interface {
	// ReplaceResult deletes every prior result of the grade and writes
	// snapshot in its place.
	ReplaceResult(ctx context.Context, snapshot domain.ResultSnapshot) error

	// LoadResult returns the stored snapshot or ErrNotFound.
	LoadResult(ctx context.Context, contestID, gradeID string) (domain.ResultSnapshot, error)

	// DeleteResult removes the stored snapshot. Deleting a missing result
	// is not an error.
	DeleteResult(ctx context.Context, contestID, gradeID string) error
}

// CompareHistorySink stores the ordered, append-only compare records of a
// (contest, grade).
type CompareHistorySink interface {
	// LoadHistory returns the records ordered by compare index. A grade
	// without history yields an empty slice.
	LoadHistory(ctx context.Context, contestID, gradeID string) ([]domain.CompareRecord, error)

	// AppendRecord appends record. It fails with ErrConflict unless
	// record.CompareIndex is greater than every stored index.
	AppendRecord(ctx context.Context, contestID, gradeID string, record domain.CompareRecord) error

	// ReplaceHistory replaces the full record array.
	ReplaceHistory(ctx context.Context, contestID, gradeID string, records []domain.CompareRecord) error
}

// SessionMarkerStore persists the session-open marker used to roll back
// abandoned sessions from any client.
type SessionMarkerStore interface {
	// PutMarker writes the marker of the grade, replacing any previous one.
	PutMarker(ctx context.Context, marker domain.OpenMarker) error

	// LoadMarker returns the marker of the grade or ErrNotFound.
	LoadMarker(ctx context.Context, contestID, gradeID string) (domain.OpenMarker, error)

	// DeleteMarker removes the marker. Deleting a missing marker is not an
	// error.
	DeleteMarker(ctx context.Context, contestID, gradeID string) error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// OperationObserver brackets engine operations for tracing and metrics.
type OperationObserver interface {
	// Observe starts observing operation on the grade. The returned context
	// carries the observation; the returned func must be called exactly once
	// with the operation's outcome.
	Observe(ctx context.Context, operation, contestID, gradeID string) (context.Context, func(err error))
}
