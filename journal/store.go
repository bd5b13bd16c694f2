package journal

import (
	"context"
	"time"

	"github.com/xraph/fuelledger/id"
)

type Store interface {
	// ListLegs returns legs in journal order: OccurredAt ascending, then
	// Sequence ascending.
	ListLegs(ctx context.Context, q Query) ([]*Leg, error)
}

// Query filters legs. TankID and MRN combine with AND.
type Query struct {
	TankID id.TankID
	MRN    string
	Range  TimeRange
	// After resumes a listing strictly after the given position.
	After *Cursor
	Limit int
}

// Cursor is a position in journal order.
type Cursor struct {
	OccurredAt time.Time `json:"occurred_at"`
	Sequence   int64     `json:"sequence"`
}

// CursorOf returns the journal position of l.
func CursorOf(l *Leg) *Cursor {
	return &Cursor{OccurredAt: l.OccurredAt, Sequence: l.Sequence}
}

// Matches reports whether l satisfies every filter in q.
func (q Query) Matches(l *Leg) bool {
	if !q.TankID.IsNil() && l.TankID.String() != q.TankID.String() {
		return false
	}
	if q.MRN != "" && l.MRN != q.MRN {
		return false
	}
	if !q.Range.Contains(l.OccurredAt) {
		return false
	}
	if q.After != nil && !Before(&Leg{OccurredAt: q.After.OccurredAt, Sequence: q.After.Sequence}, l) {
		return false
	}
	return true
}
