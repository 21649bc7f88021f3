package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/broker"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

// MarginValidator - предторговая проверка маржи через what-if запрос.
// Ордер не размещается, пока шлюз не подтвердит достаточность средств.
type MarginValidator struct {
	broker  broker.Broker
	timeout time.Duration
}

// NewMarginValidator создаёт валидатор маржи
func NewMarginValidator(b broker.Broker, timeout time.Duration) *MarginValidator {
	return &MarginValidator{broker: b, timeout: timeout}
}

// Validate выполняет what-if расчёт для ордера.
// Отказ по марже - не ошибка: возвращается результат с Approved=false.
// Ошибка возвращается только при недоступности шлюза.
func (v *MarginValidator) Validate(ctx context.Context, order broker.ComboOrder) (*models.MarginCheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	result, err := v.broker.WhatIfMargin(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("what-if margin: %w", err)
	}

	check := &models.MarginCheckResult{
		Approved:          result.Sufficient(),
		InitialMargin:     result.InitialMargin,
		MaintenanceMargin: result.MaintenanceMargin,
		AvailableFunds:    result.AvailableFunds,
	}

	if !check.Approved {
		check.Reason = fmt.Sprintf("initial margin %.2f exceeds available funds %.2f",
			result.InitialMargin, result.AvailableFunds)
	}

	return check, nil
}
