package utils

import "math"

// RoundToTick округляет цену к ближайшему кратному шага цены инструмента.
// Для опционных комбо шаг обычно 0.05 или 0.01.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

// FloorToTick округляет цену вниз к кратному шага цены
func FloorToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Floor(price/tick+1e-9) * tick
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

// Mid возвращает середину спреда bid/ask.
// При пустой стороне (нулевой котировке) возвращает другую сторону.
func Mid(bid, ask float64) float64 {
	if bid <= 0 {
		return ask
	}
	if ask <= 0 {
		return bid
	}
	return (bid + ask) / 2
}

// ApproxEqual сравнивает цены с допуском на плавающую точку
func ApproxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
