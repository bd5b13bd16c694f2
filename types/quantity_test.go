package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestQuantityArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Quantity
		expected string
	}{
		{"Add", func() Quantity { return MustQuantity("20000").Add(MustQuantity("3000")) }, "23000.000"},
		{"Sub", func() Quantity { return MustQuantity("3000").Sub(MustQuantity("3000.5")) }, "-0.500"},
		{"Neg", func() Quantity { return MustQuantity("1.25").Neg() }, "-1.250"},
		{"Abs", func() Quantity { return MustQuantity("-7").Abs() }, "7.000"},
		{"Rounds to scale", func() Quantity { return MustQuantity("1.23456") }, "1.235"},
		{"Sum", func() Quantity { return Sum(Whole(1), Whole(2), MustQuantity("0.001")) }, "3.001"},
		{"Zero value", func() Quantity { return Quantity{} }, "0.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.op().String(); got != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestQuantityAccumulationIsExact(t *testing.T) {
	var total Quantity
	step := MustQuantity("0.1")
	for i := 0; i < 10000; i++ {
		total = total.Add(step)
	}
	if !total.Equal(Whole(1000)) {
		t.Errorf("10000 x 0.1 = %s, want 1000.000", total)
	}
}

func TestQuantityMilli(t *testing.T) {
	q := MustQuantity("2373.702")
	if q.Milli() != 2373702 {
		t.Errorf("Milli: got %d", q.Milli())
	}
	if !FromMilli(2373702).Equal(q) {
		t.Errorf("FromMilli: got %s", FromMilli(2373702))
	}
	if FromMilli(-1500).String() != "-1.500" {
		t.Errorf("negative milli: got %s", FromMilli(-1500))
	}
}

func TestQuantityWithin(t *testing.T) {
	eps := MustQuantity("0.001")
	if !MustQuantity("1.000").Within(MustQuantity("1.001"), eps) {
		t.Error("1.000 and 1.001 should be within 0.001")
	}
	if MustQuantity("1.000").Within(MustQuantity("1.002"), eps) {
		t.Error("1.000 and 1.002 should not be within 0.001")
	}
}

func TestQuantityRatio(t *testing.T) {
	r := Whole(245).Ratio(Whole(24500))
	if !r.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("got %s, want 0.01", r)
	}
	if !Whole(5).Ratio(Quantity{}).IsZero() {
		t.Error("ratio over zero should be zero")
	}
}

func TestQuantityJSON(t *testing.T) {
	data, err := json.Marshal(MustQuantity("3000"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "3000.000" {
		t.Errorf("marshal: got %s", data)
	}

	for _, in := range []string{`3000`, `"3000.000"`} {
		var q Quantity
		if err := json.Unmarshal([]byte(in), &q); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if !q.Equal(Whole(3000)) {
			t.Errorf("unmarshal %s: got %s", in, q)
		}
	}

	var bad Quantity
	if err := json.Unmarshal([]byte(`"abc"`), &bad); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestConversions(t *testing.T) {
	density := MustDensity("0.8")

	kg, err := ToKg(Whole(3000), density)
	if err != nil {
		t.Fatal(err)
	}
	if !kg.Equal(Whole(2400)) {
		t.Errorf("ToKg: got %s", kg)
	}

	liters, err := ToLiters(Whole(2400), density)
	if err != nil {
		t.Fatal(err)
	}
	if !liters.Equal(Whole(3000)) {
		t.Errorf("ToLiters: got %s", liters)
	}
}

func TestConversionRoundTrip(t *testing.T) {
	eps := DefaultTolerance().Epsilon
	densities := []string{"0.8", "0.791234", "0.775", "0.84"}
	volumes := []string{"0", "0.001", "1", "3000", "17000.5", "24500", "999999.999"}

	for _, ds := range densities {
		for _, vs := range volumes {
			t.Run(ds+"/"+vs, func(t *testing.T) {
				d := MustDensity(ds)
				in := MustQuantity(vs)
				kg, err := ToKg(in, d)
				if err != nil {
					t.Fatal(err)
				}
				out, err := ToLiters(kg, d)
				if err != nil {
					t.Fatal(err)
				}
				if !out.Within(in, eps) {
					t.Errorf("round trip %s L at %s: got %s", in, d, out)
				}
			})
		}
	}
}

func TestConversionErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"zero density", func() error { _, err := ToKg(Whole(1), Density{}); return err }},
		{"negative density", func() error { _, err := ToLiters(Whole(1), MustDensity("-0.8")); return err }},
		{"negative liters", func() error { _, err := ToKg(Whole(-1), MustDensity("0.8")); return err }},
		{"negative kg", func() error { _, err := ToLiters(Whole(-1), MustDensity("0.8")); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, ErrInvalidQuantity) {
				t.Errorf("expected ErrInvalidQuantity, got %v", err)
			}
		})
	}
}

func TestConsistentKg(t *testing.T) {
	tol := DefaultTolerance()
	d := MustDensity("0.8")

	if !ConsistentKg(Whole(1000), Whole(800), d, tol) {
		t.Error("exact pair should be consistent")
	}
	if !ConsistentKg(Whole(1000), Whole(803), d, tol) {
		t.Error("0.375% off should be within 0.5%")
	}
	if ConsistentKg(Whole(1000), Whole(810), d, tol) {
		t.Error("1.25% off should be inconsistent")
	}
	if ConsistentKg(Whole(1000), Whole(800), Density{}, tol) {
		t.Error("zero density is never consistent")
	}
}

func TestDensityMicro(t *testing.T) {
	d := MustDensity("0.791234")
	if d.Micro() != 791234 {
		t.Errorf("Micro: got %d", d.Micro())
	}
	if !DensityFromMicro(791234).Decimal().Equal(d.Decimal()) {
		t.Errorf("DensityFromMicro: got %s", DensityFromMicro(791234))
	}
}

func TestEntity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEntityAt(now)
	if !e.CreatedAt.Equal(now) || !e.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected timestamps %+v", e)
	}
	e.Touch(now.Add(time.Hour))
	if !e.IsStale(now.Add(3*time.Hour), time.Hour) {
		t.Error("expected stale after two idle hours")
	}
	if e.IsStale(now.Add(90*time.Minute), time.Hour) {
		t.Error("expected fresh after 30 idle minutes")
	}
}
