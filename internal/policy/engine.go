// Package policy реализует чистое вычисление возврата и комиссии
// по окнам отмены услуги. Никаких побочных эффектов и ошибок:
// любой исход выражается структурированным Decision.
package policy

import (
	"time"

	"github.com/travelmesh/acs/internal/domain"
)

// Decision — результат применения политики отмены к услуге.
type Decision struct {
	Cancellable       bool
	RefundMinor       int64
	FeeMinor          int64
	Currency          string
	HoursUntilService float64
	Matched           *domain.CancellationWindow
	Reason            string
}

// Engine вычисляет условия отмены. Состояния не имеет, но остаётся
// типом, чтобы подменяться в тестах оркестратора.
type Engine struct{}

// NewEngine возвращает вычислитель политики отмены.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate применяет окна политики в порядке объявления и выбирает первое,
// чей порог hoursBeforeService не превышает оставшихся до услуги часов.
// Если отмена запрещена или ни одно окно не подошло, комиссия равна полной
// стоимости услуги. Инвариант: при подошедшем окне refund + fee == price.
func (e *Engine) Evaluate(pol domain.CancellationPolicy, price domain.Price, serviceAt, now time.Time) Decision {
	hoursUntil := serviceAt.Sub(now).Hours()

	if !pol.CanCancel {
		return Decision{
			Cancellable:       false,
			FeeMinor:          price.AmountMinor,
			Currency:          price.Currency,
			HoursUntilService: hoursUntil,
			Reason:            "cancellation is not allowed for this product",
		}
	}

	for i := range pol.Windows {
		w := pol.Windows[i]
		if float64(w.HoursBeforeService) <= hoursUntil {
			refund := price.AmountMinor * int64(w.RefundPercentage) / 100
			return Decision{
				Cancellable:       true,
				RefundMinor:       refund,
				FeeMinor:          price.AmountMinor - refund,
				Currency:          price.Currency,
				HoursUntilService: hoursUntil,
				Matched:           &w,
				Reason:            w.Description,
			}
		}
	}

	return Decision{
		Cancellable:       false,
		FeeMinor:          price.AmountMinor,
		Currency:          price.Currency,
		HoursUntilService: hoursUntil,
		Reason:            "no cancellation window matches the remaining time",
	}
}
