package policy

import (
	"testing"
	"time"

	"github.com/travelmesh/acs/internal/domain"
)

func usd(amount int64) domain.Price {
	return domain.Price{AmountMinor: amount, Currency: "USD"}
}

func TestEvaluate_FirstMatchingWindow(t *testing.T) {
	// Окна объявлены от широкого к узкому; до услуги 10 часов,
	// первое подошедшее окно — 4h/50%.
	pol := domain.CancellationPolicy{
		CanCancel: true,
		Windows: []domain.CancellationWindow{
			{HoursBeforeService: 24, RefundPercentage: 100, Description: "free cancellation"},
			{HoursBeforeService: 4, RefundPercentage: 50, Description: "late cancellation"},
		},
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	serviceAt := now.Add(10 * time.Hour)

	d := NewEngine().Evaluate(pol, usd(100), serviceAt, now)

	if !d.Cancellable {
		t.Fatal("expected cancellable decision")
	}
	if d.RefundMinor != 50 || d.FeeMinor != 50 {
		t.Errorf("expected refund=50 fee=50, got refund=%d fee=%d", d.RefundMinor, d.FeeMinor)
	}
	if d.Matched == nil || d.Matched.HoursBeforeService != 4 {
		t.Errorf("expected the 4h window to match, got %+v", d.Matched)
	}
}

func TestEvaluate_RefundPlusFeeEqualsPrice(t *testing.T) {
	pol := domain.CancellationPolicy{
		CanCancel: true,
		Windows: []domain.CancellationWindow{
			{HoursBeforeService: 48, RefundPercentage: 100},
			{HoursBeforeService: 24, RefundPercentage: 75},
			{HoursBeforeService: 4, RefundPercentage: 33},
			{HoursBeforeService: 0, RefundPercentage: 10},
		},
	}

	now := time.Now().UTC()
	engine := NewEngine()

	for _, amount := range []int64{1, 99, 100, 12345, 999_999} {
		for _, hours := range []int{0, 1, 4, 12, 24, 48, 96} {
			serviceAt := now.Add(time.Duration(hours) * time.Hour)
			d := engine.Evaluate(pol, usd(amount), serviceAt, now)
			if !d.Cancellable {
				continue
			}
			if d.RefundMinor+d.FeeMinor != amount {
				t.Errorf("amount=%d hours=%d: refund=%d fee=%d does not sum to price",
					amount, hours, d.RefundMinor, d.FeeMinor)
			}
		}
	}
}

func TestEvaluate_CanCancelFalse(t *testing.T) {
	pol := domain.CancellationPolicy{
		CanCancel: false,
		Windows: []domain.CancellationWindow{
			{HoursBeforeService: 24, RefundPercentage: 100},
		},
	}

	now := time.Now().UTC()
	d := NewEngine().Evaluate(pol, usd(500), now.Add(72*time.Hour), now)

	if d.Cancellable {
		t.Fatal("expected non-cancellable decision")
	}
	if d.RefundMinor != 0 || d.FeeMinor != 500 {
		t.Errorf("expected full price fee, got refund=%d fee=%d", d.RefundMinor, d.FeeMinor)
	}
}

func TestEvaluate_NoWindowMatches(t *testing.T) {
	pol := domain.CancellationPolicy{
		CanCancel: true,
		Windows: []domain.CancellationWindow{
			{HoursBeforeService: 24, RefundPercentage: 100},
		},
	}

	// До услуги меньше часа — ни одно окно не подходит.
	now := time.Now().UTC()
	d := NewEngine().Evaluate(pol, usd(200), now.Add(30*time.Minute), now)

	if d.Cancellable {
		t.Fatal("expected non-cancellable decision")
	}
	if d.FeeMinor != 200 {
		t.Errorf("expected fee=200, got %d", d.FeeMinor)
	}
	if d.Matched != nil {
		t.Errorf("expected no matched window, got %+v", d.Matched)
	}
}

func TestEvaluate_DeclarationOrderWins(t *testing.T) {
	// Намеренно «неправильный» порядок: первое подошедшее окно выбирается,
	// даже если дальше есть более подходящее по порогу.
	pol := domain.CancellationPolicy{
		CanCancel: true,
		Windows: []domain.CancellationWindow{
			{HoursBeforeService: 4, RefundPercentage: 50},
			{HoursBeforeService: 24, RefundPercentage: 100},
		},
	}

	now := time.Now().UTC()
	d := NewEngine().Evaluate(pol, usd(100), now.Add(48*time.Hour), now)

	if d.Matched == nil || d.Matched.HoursBeforeService != 4 {
		t.Fatalf("expected first declared window to win, got %+v", d.Matched)
	}
	if d.RefundMinor != 50 {
		t.Errorf("expected refund=50 from the first window, got %d", d.RefundMinor)
	}
}
