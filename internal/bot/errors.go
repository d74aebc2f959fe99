package bot

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning - у движка уже есть активный цикл
	ErrAlreadyRunning = errors.New("engine: cycle already running")

	// ErrRiskLimitExceeded - риск-менеджер запретил сделку
	ErrRiskLimitExceeded = errors.New("risk limit exceeded")

	// ErrOrderRejected - биржа отклонила ордер (после одной повторной попытки)
	ErrOrderRejected = errors.New("order rejected")

	// ErrFillTimeout - покупка не подтвердилась балансом за отведённое время
	ErrFillTimeout = errors.New("fill timeout")

	// ErrInvalidTransition - недопустимый переход состояния цикла
	ErrInvalidTransition = errors.New("invalid cycle transition")

	// ErrEngineClosed - движок закрыт и не принимает новые циклы
	ErrEngineClosed = errors.New("engine closed")

	// ErrStopped - цикл прерван вызовом Stop
	ErrStopped = errors.New("stopped by request")
)

// Причины отказа риск-менеджера
const (
	ReasonDailyLoss    = "daily loss limit reached"
	ReasonPositionSize = "position too large"
	ReasonTradeCount   = "daily trade limit reached"
)

// RiskError - отказ риск-менеджера с причиной
//
// errors.Is(err, ErrRiskLimitExceeded) == true. Не повторяется.
type RiskError struct {
	Reason string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRiskLimitExceeded, e.Reason)
}

func (e *RiskError) Is(target error) bool {
	return target == ErrRiskLimitExceeded
}

// Retryable - вето не повторяется до сброса лимитов
func (e *RiskError) Retryable() bool {
	return false
}
