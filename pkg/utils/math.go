package utils

import (
	"math"
)

// math.go - чистые математические функции цикла покупка/продажа

// RoundDown округляет значение ВНИЗ до кратного step.
//
// Используется для количества в ордере: округление вниз гарантирует,
// что ордер не превысит доступный баланс.
//
//	RoundDown(0.123456, 0.001) = 0.123
func RoundDown(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	// небольшой эпсилон против 0.3/0.1 = 2.9999999
	return math.Floor(value/step+1e-9) * step
}

// RoundToDecimals округляет до n знаков после запятой
func RoundToDecimals(value float64, n int) float64 {
	p := math.Pow(10, float64(n))
	return math.Round(value*p) / p
}

// PercentChange - изменение от from к to в процентах; 0 если from == 0
func PercentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

// ApplyPercent возвращает value * (1 + pct/100)
//
//	ApplyPercent(100, 2) = 102
func ApplyPercent(value, pct float64) float64 {
	return value * (1 + pct/100)
}

// Mean - среднее арифметическое; 0 для пустого среза
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// MinMax возвращает минимум и максимум; (0, 0) для пустого среза
func MinMax(values []float64) (min, max float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Sum - сумма значений
func Sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func Abs(x float64) float64 {
	return math.Abs(x)
}

// Clamp ограничивает значение диапазоном [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// AlmostEqual сравнивает числа с абсолютной погрешностью eps
func AlmostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
