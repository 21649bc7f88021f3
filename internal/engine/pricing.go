package engine

import (
	"context"
	"fmt"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/broker"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/utils"
)

// ComboMid возвращает mid-цену кредитного спреда: mid короткой ноги
// минус mid длинной. Положительное значение - получаемая премия.
func ComboMid(short, long broker.Quote) float64 {
	return short.Mid() - long.Mid()
}

// Intrinsic возвращает внутреннюю стоимость опциона при цене базового актива
func Intrinsic(right string, strike, underlying float64) float64 {
	var v float64
	switch right {
	case models.RightCall:
		v = underlying - strike
	case models.RightPut:
		v = strike - underlying
	}
	if v < 0 {
		return 0
	}
	return v
}

// TimeValue возвращает временную стоимость опциона: рыночная цена
// минус внутренняя стоимость. Отрицательная временная стоимость
// (deep ITM с дисконтом) не обрезается - она сигнал повышенного риска.
func TimeValue(optionPrice, intrinsic float64) float64 {
	return optionPrice - intrinsic
}

// priceEpsilon - допуск при сравнении цен с плавающей точкой
const priceEpsilon = 1e-9

// NextLadderPrice возвращает следующую цену лестницы: на step ниже
// текущей. Кредитный спред продаётся, поэтому движение к рынку - это
// снижение запрашиваемой премии. false означает, что следующий шаг
// пробил бы floor: лестница останавливается, попытки по цене ниже
// минимума не размещаются.
func NextLadderPrice(current, step, floor float64) (float64, bool) {
	next := current - step
	if next < floor-priceEpsilon {
		return 0, false
	}
	if next < floor {
		next = floor
	}
	return next, true
}

// ContractsForSignal строит контракты обеих ног по сигналу
func ContractsForSignal(sig *models.Signal) (short, long broker.Contract) {
	short = broker.Contract{
		Underlying: sig.Underlying,
		Right:      sig.Right(),
		Strike:     sig.ShortStrike,
		Expiry:     sig.Expiry,
	}
	long = broker.Contract{
		Underlying: sig.Underlying,
		Right:      sig.Right(),
		Strike:     sig.LongStrike,
		Expiry:     sig.Expiry,
	}
	return short, long
}

// ComboOrderForSignal строит комбо-ордер: продажа короткой ноги,
// покупка длинной, лимит округлён к шагу цены
func ComboOrderForSignal(sig *models.Signal, accountID string, limitPrice, tick float64) broker.ComboOrder {
	short, long := ContractsForSignal(sig)
	return broker.ComboOrder{
		AccountID: accountID,
		Legs: []broker.ComboLeg{
			{Contract: short, Side: broker.ActionSell, Ratio: 1},
			{Contract: long, Side: broker.ActionBuy, Ratio: 1},
		},
		Quantity:   sig.Quantity,
		LimitPrice: utils.RoundToTick(limitPrice, tick),
	}
}

// PriceCombo запрашивает котировки обеих ног и возвращает mid спреда
func PriceCombo(ctx context.Context, b broker.Broker, sig *models.Signal) (float64, error) {
	short, long := ContractsForSignal(sig)

	shortQuote, err := b.GetQuote(ctx, short)
	if err != nil {
		return 0, fmt.Errorf("quote short leg %s: %w", short, err)
	}

	longQuote, err := b.GetQuote(ctx, long)
	if err != nil {
		return 0, fmt.Errorf("quote long leg %s: %w", long, err)
	}

	return ComboMid(*shortQuote, *longQuote), nil
}
