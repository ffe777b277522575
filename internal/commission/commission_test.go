package commission

import (
	"testing"

	"github.com/angelmondragon/marketplace-engine/pkg/db/models"
	"github.com/shopspring/decimal"
)

func TestCalculateTwoItemOrder(t *testing.T) {
	revenue := int64(1500*12 + 2500*6)
	split, err := Calculate(revenue, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if split.RevenueCents != 33000 || split.CommissionCents != 3300 || split.NetCents != 29700 {
		t.Fatalf("unexpected split %+v", split)
	}
}

func TestCalculateSumsExactly(t *testing.T) {
	rates := []string{"0", "2.5", "7.25", "10", "12.75", "33.33", "99.99", "100"}
	revenues := []int64{0, 1, 3, 99, 101, 12345, 999999, 1000000007}
	for _, raw := range rates {
		rate := decimal.RequireFromString(raw)
		for _, revenue := range revenues {
			split, err := Calculate(revenue, rate)
			if err != nil {
				t.Fatalf("rate %s revenue %d: %v", raw, revenue, err)
			}
			if split.CommissionCents+split.NetCents != revenue {
				t.Fatalf("rate %s revenue %d: %d + %d != revenue", raw, revenue, split.CommissionCents, split.NetCents)
			}
			exact := decimal.NewFromInt(revenue).Mul(rate).Div(decimal.NewFromInt(100))
			diff := exact.Sub(decimal.NewFromInt(split.CommissionCents)).Abs()
			if diff.GreaterThan(decimal.RequireFromString("0.5")) {
				t.Fatalf("rate %s revenue %d: commission %d too far from %s", raw, revenue, split.CommissionCents, exact)
			}
		}
	}
}

func TestOfRoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		amount int64
		rate   string
		want   int64
	}{
		{amount: 5, rate: "10", want: 1},
		{amount: 4, rate: "10", want: 0},
		{amount: 15, rate: "10", want: 2},
		{amount: 25, rate: "10", want: 3},
		{amount: 333, rate: "12.5", want: 42},
	}
	for _, tc := range cases {
		got, err := Of(tc.amount, decimal.RequireFromString(tc.rate))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tc.want {
			t.Fatalf("Of(%d, %s) = %d, want %d", tc.amount, tc.rate, got, tc.want)
		}
	}
}

func TestRejectsInvalidInput(t *testing.T) {
	if _, err := Calculate(100, decimal.NewFromInt(-1)); err == nil {
		t.Fatal("expected negative rate to fail")
	}
	if _, err := Calculate(100, decimal.NewFromInt(101)); err == nil {
		t.Fatal("expected rate above 100 to fail")
	}
	if _, err := Calculate(-1, decimal.NewFromInt(10)); err == nil {
		t.Fatal("expected negative revenue to fail")
	}
	if _, err := NewCalculator(decimal.NewFromInt(150)); err == nil {
		t.Fatal("expected invalid fallback to fail")
	}
}

func TestCalculatorRateResolution(t *testing.T) {
	calc, err := NewCalculator(decimal.NewFromInt(12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unset := models.Company{}
	if !calc.RateFor(unset).Equal(decimal.NewFromInt(12)) {
		t.Fatalf("expected fallback rate")
	}

	custom := models.Company{CommissionRate: decimal.NewNullDecimal(decimal.NewFromInt(5))}
	split, err := calc.SplitFor(custom, 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if split.CommissionCents != 500 || split.NetCents != 9500 {
		t.Fatalf("unexpected split %+v", split)
	}

	var nilCalc *Calculator
	if !nilCalc.Fallback().Equal(DefaultRate) {
		t.Fatalf("nil calculator should fall back to the default rate")
	}
}
