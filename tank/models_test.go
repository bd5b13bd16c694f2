package tank

import (
	"testing"

	"github.com/xraph/fuelledger/types"
)

func TestEffectiveCapacity(t *testing.T) {
	fallback := types.Whole(24500)

	tests := []struct {
		name         string
		capacity     types.Quantity
		want         types.Quantity
		wantFallback bool
	}{
		{"valid", types.Whole(30000), types.Whole(30000), false},
		{"lower bound", types.Whole(1), types.Whole(1), false},
		{"upper bound", types.Whole(1_000_000), types.Whole(1_000_000), false},
		{"zero", types.Whole(0), fallback, true},
		{"negative", types.Whole(-10), fallback, true},
		{"below one", types.MustQuantity("0.999"), fallback, true},
		{"above max", types.MustQuantity("1000000.001"), fallback, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := &Tank{CapacityLiters: tt.capacity}
			got, used := tk.EffectiveCapacity(fallback)
			if !got.Equal(tt.want) {
				t.Errorf("capacity: got %s, want %s", got, tt.want)
			}
			if used != tt.wantFallback {
				t.Errorf("fallback used: got %v, want %v", used, tt.wantFallback)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Tank{Name: "T1", Metadata: map[string]string{"site": "LYBE"}}
	c := orig.Clone()
	c.Metadata["site"] = "LYNI"
	c.Name = "T2"
	if orig.Metadata["site"] != "LYBE" || orig.Name != "T1" {
		t.Errorf("clone shares state with original: %+v", orig)
	}
}

func TestKindValid(t *testing.T) {
	if !KindFixed.Valid() || !KindMobile.Valid() {
		t.Error("known kinds should be valid")
	}
	if Kind("barge").Valid() {
		t.Error("unknown kind should be invalid")
	}
}
