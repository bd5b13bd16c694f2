package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/tank"
	"github.com/xraph/fuelledger/types"
)

func validLeg() *Leg {
	l := &Leg{
		ID:        id.NewLegID(),
		Type:      TypeFueling,
		Direction: DirectionOut,
		TankID:    id.NewTankID(),
		Liters:    types.Whole(3000),
		Kg:        types.Whole(2400),
	}
	l.SetEntry(tank.KindFixed, id.NewEntryID())
	return l
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(l *Leg)
		wantErr bool
	}{
		{"valid fueling", func(*Leg) {}, false},
		{"unknown type", func(l *Leg) { l.Type = "SPILL" }, true},
		{"wrong direction", func(l *Leg) { l.Direction = DirectionIn }, true},
		{"both references", func(l *Leg) { l.MobileEntryID = id.NewEntryID() }, true},
		{"no reference", func(l *Leg) { l.FixedEntryID = id.Nil }, true},
		{"mobile reference only", func(l *Leg) { l.SetEntry(tank.KindMobile, id.NewEntryID()) }, false},
		{"negative liters", func(l *Leg) { l.Liters = types.Whole(-1) }, true},
		{"missing tank", func(l *Leg) { l.TankID = id.Nil }, true},
		{"correction without operator", func(l *Leg) {
			l.Type, l.Direction, l.Target = TypeCorrection, DirectionIn, TargetTank
		}, true},
		{"correction without target", func(l *Leg) {
			l.Type, l.Direction, l.OperatorID = TypeCorrection, DirectionIn, "op-7"
		}, true},
		{"correction with operator", func(l *Leg) {
			l.Type, l.Direction, l.OperatorID, l.Target = TypeCorrection, DirectionIn, "op-7", TargetLedger
		}, false},
		{"movement with target", func(l *Leg) { l.Target = TargetTank }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validLeg()
			tt.mutate(l)
			err := l.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidLeg) {
				t.Errorf("expected ErrInvalidLeg, got %v", err)
			}
		})
	}
}

func TestBeforeBreaksTiesBySequence(t *testing.T) {
	ts := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	a := &Leg{OccurredAt: ts, Sequence: 7}
	b := &Leg{OccurredAt: ts, Sequence: 9}
	c := &Leg{OccurredAt: ts.Add(-time.Second), Sequence: 12}

	if !Before(a, b) || Before(b, a) {
		t.Error("equal timestamps must order by sequence")
	}
	if !Before(c, a) {
		t.Error("earlier timestamp must sort first regardless of sequence")
	}
}

func TestQueryMatches(t *testing.T) {
	ts := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	l := validLeg()
	l.MRN = "BA1111111111111111"
	l.OccurredAt = ts
	l.Sequence = 4

	tests := []struct {
		name string
		q    Query
		want bool
	}{
		{"empty query", Query{}, true},
		{"same tank", Query{TankID: l.TankID}, true},
		{"other tank", Query{TankID: id.NewTankID()}, false},
		{"other mrn", Query{MRN: "BA2"}, false},
		{"range includes", Query{Range: TimeRange{From: ts, To: ts.Add(time.Minute)}}, true},
		{"range end exclusive", Query{Range: TimeRange{To: ts}}, false},
		{"after earlier sequence", Query{After: &Cursor{OccurredAt: ts, Sequence: 3}}, true},
		{"after same position", Query{After: CursorOf(l)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Matches(l); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
