package domain

// CancellationWindow — правило «не позже чем за N часов до услуги → процент возврата».
type CancellationWindow struct {
	HoursBeforeService int    `json:"hours_before_service"`
	RefundPercentage   int    `json:"refund_percentage"`
	Description        string `json:"description,omitempty"`
}

// CancellationPolicy — условия отмены, привязанные к услуге.
// Окна проверяются строго в порядке объявления: выбирается первое,
// чей порог не превышает оставшихся до услуги часов.
type CancellationPolicy struct {
	Windows         []CancellationWindow `json:"windows,omitempty"`
	CanCancel       bool                 `json:"can_cancel"`
	CancelCondition string               `json:"cancel_condition,omitempty"`
}
