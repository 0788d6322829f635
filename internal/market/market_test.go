package market

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddsboard/market-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var now = time.Date(2025, 8, 15, 9, 0, 0, 0, time.UTC)

func TestNew_Defaults(t *testing.T) {
	m, err := New(Params{ID: "fed-cut-2025-09", Name: "  Fed cuts in September?  "}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "Fed cuts in September?" {
		t.Errorf("expected trimmed name, got %q", m.Name)
	}
	if !m.Probability.Equal(d(0.5)) {
		t.Errorf("expected default probability 0.5, got %s", m.Probability)
	}
	if m.Status != model.StatusOpen {
		t.Errorf("expected status open, got %s", m.Status)
	}
	if !m.CreatedAt.Equal(now) {
		t.Errorf("expected created_at=%v, got %v", now, m.CreatedAt)
	}
}

func TestNew_SeededProbability(t *testing.T) {
	p := d(0.3)
	m, err := New(Params{Name: "Rain tomorrow", Probability: &p}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Probability.Equal(p) {
		t.Errorf("expected probability 0.3, got %s", m.Probability)
	}
	if !m.OpeningProbability.Equal(p) {
		t.Errorf("expected opening probability 0.3, got %s", m.OpeningProbability)
	}
	if m.ID != "" {
		t.Errorf("expected empty ID for caller assignment, got %q", m.ID)
	}
}

func TestNew_Invalid(t *testing.T) {
	past := now.Add(-time.Hour)
	zero, one := d(0), d(1)
	tests := []struct {
		name   string
		params Params
	}{
		{"missing name", Params{}},
		{"bad id", Params{ID: "Has Spaces", Name: "x"}},
		{"short id", Params{ID: "ab", Name: "x"}},
		{"zero probability", Params{Name: "x", Probability: &zero}},
		{"certain probability", Params{Name: "x", Probability: &one}},
		{"end date in past", Params{Name: "x", EndDate: &past}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params, now)
			if !errors.Is(err, ErrInvalidMarket) {
				t.Errorf("expected ErrInvalidMarket, got %v", err)
			}
		})
	}
}

func TestValidate_NegativeVolume(t *testing.T) {
	m := model.Market{Name: "x", Probability: d(0.5), YesVolume: d(-1)}
	if err := Validate(m, now); !errors.Is(err, ErrInvalidMarket) {
		t.Errorf("expected ErrInvalidMarket, got %v", err)
	}
}

func TestIsTradable(t *testing.T) {
	end := now.Add(time.Hour)
	m := model.Market{ID: "m1", Status: model.StatusOpen, EndDate: &end}

	if !IsTradable(m, now) {
		t.Error("open market before end date should be tradable")
	}
	if IsTradable(m, end) {
		t.Error("market at its end date should not be tradable")
	}
	if err := CheckTradable(m, end.Add(time.Second)); !errors.Is(err, ErrMarketClosed) {
		t.Errorf("expected ErrMarketClosed, got %v", err)
	}

	m.EndDate = nil
	if !IsTradable(m, now.AddDate(10, 0, 0)) {
		t.Error("market without end date stays tradable")
	}

	m.Status = model.StatusResolved
	if IsTradable(m, now) {
		t.Error("resolved market should not be tradable")
	}
}

func TestCheckResolvable(t *testing.T) {
	m := model.Market{ID: "m1", Status: model.StatusOpen}
	if err := CheckResolvable(m); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	m.Status = model.StatusResolved
	if err := CheckResolvable(m); !errors.Is(err, ErrMarketClosed) {
		t.Errorf("expected ErrMarketClosed, got %v", err)
	}
}
