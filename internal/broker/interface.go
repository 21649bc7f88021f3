// Package broker предоставляет унифицированный интерфейс к шлюзу брокера
// для котировок, маржинальных расчётов и исполнения опционных комбо-ордеров.
package broker

import "context"

// Broker определяет операции, которые торговое ядро требует от шлюза брокера
type Broker interface {
	// Name возвращает имя шлюза
	Name() string

	// GetQuote получает котировку опционного контракта
	GetQuote(ctx context.Context, c Contract) (*Quote, error)

	// GetUnderlyingQuote получает котировку базового актива
	GetUnderlyingQuote(ctx context.Context, underlying string) (*Quote, error)

	// WhatIfMargin выполняет предварительный расчёт маржи для комбо-ордера
	// без его размещения
	WhatIfMargin(ctx context.Context, order ComboOrder) (*MarginResult, error)

	// PlaceComboOrder размещает лимитный комбо-ордер и возвращает его ID
	PlaceComboOrder(ctx context.Context, order ComboOrder) (string, error)

	// CancelOrder отменяет ордер. Отмена уже исполненного ордера
	// не является ошибкой: вызывающий обязан перепроверить статус.
	CancelOrder(ctx context.Context, orderID string) error

	// OrderStatus возвращает текущее состояние ордера
	OrderStatus(ctx context.Context, orderID string) (*OrderState, error)

	// PlaceMarketClose закрывает позицию по контракту рыночным ордером
	PlaceMarketClose(ctx context.Context, accountID string, c Contract, quantity int) (string, error)

	// ExerciseOption подаёт инструкцию на исполнение длинного опциона
	ExerciseOption(ctx context.Context, accountID string, c Contract, quantity int) error

	// Positions возвращает позиции счёта, как их видит брокер
	Positions(ctx context.Context, accountID string) ([]BrokerPosition, error)

	// Close закрывает соединения со шлюзом
	Close() error
}
