package bot

import (
	"fmt"

	"cyclebot/internal/models"
)

// ValidTransitions определяет допустимые переходы состояний цикла
//
// Состояния двигаются только вперёд; Aborted достижим из любого нетерминального.
var ValidTransitions = map[models.CycleState][]models.CycleState{
	models.CycleIdle:             {models.CycleBuyPlaced, models.CycleAborted},
	models.CycleBuyPlaced:        {models.CycleAwaitingBuyFill, models.CycleAborted},
	models.CycleAwaitingBuyFill:  {models.CycleSellPlaced, models.CycleAborted},
	models.CycleSellPlaced:       {models.CycleAwaitingSellFill, models.CycleAborted},
	models.CycleAwaitingSellFill: {models.CycleCompleted, models.CycleAborted},
	models.CycleCompleted:        {},
	models.CycleAborted:          {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to models.CycleState) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния для UI
func StateInfo(s models.CycleState) string {
	switch s {
	case models.CycleIdle:
		return "Ожидание условий входа"
	case models.CycleBuyPlaced:
		return "Ордер на покупку отправлен"
	case models.CycleAwaitingBuyFill:
		return "Ожидание исполнения покупки"
	case models.CycleSellPlaced:
		return "Ордер на продажу отправлен"
	case models.CycleAwaitingSellFill:
		return "Ожидание целевой цены"
	case models.CycleCompleted:
		return "Цикл завершён"
	case models.CycleAborted:
		return "Цикл прерван"
	default:
		return "Неизвестное состояние"
	}
}

// IsActive возвращает true пока цикл не завершён
func IsActive(s models.CycleState) bool {
	_, known := ValidTransitions[s]
	return known && !s.IsTerminal()
}

// HasOpenPosition возвращает true если актив куплен и выставлен на продажу
func HasOpenPosition(s models.CycleState) bool {
	return s == models.CycleSellPlaced || s == models.CycleAwaitingSellFill
}

// transition переводит цикл в новое состояние с проверкой по таблице
func transition(c *models.TradeCycle, to models.CycleState) error {
	if !CanTransition(c.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.State, to)
	}
	c.State = to
	return nil
}

// confirmQty фиксирует подтверждённое количество; повторная установка - ошибка
func confirmQty(c *models.TradeCycle, qty float64) error {
	if c.ConfirmedQty > 0 {
		return fmt.Errorf("cycle %s: confirmed quantity already set", c.ID)
	}
	if qty <= 0 {
		return fmt.Errorf("cycle %s: confirmed quantity must be positive, got %v", c.ID, qty)
	}
	c.ConfirmedQty = qty
	return nil
}

// setSellTarget вычисляет целевую цену продажи ровно один раз
func setSellTarget(c *models.TradeCycle) (float64, error) {
	if c.SellTargetPrice > 0 {
		return 0, fmt.Errorf("cycle %s: sell target already set", c.ID)
	}
	if c.BuyPrice <= 0 {
		return 0, fmt.Errorf("cycle %s: buy price not set", c.ID)
	}
	c.SellTargetPrice = SellTarget(c.BuyPrice, c.TargetProfitPct)
	return c.SellTargetPrice, nil
}

// SellTarget - цена продажи для заданной прибыли
func SellTarget(buyPrice, targetProfitPct float64) float64 {
	return buyPrice * (1 + targetProfitPct/100)
}
