package engine

import "github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"

// Состояния эпизода исполнения сигнала.
// Эпизод - полный цикл обработки одного сигнала для одного фолловера:
// от расчёта цены до исполнения или терминального отказа.
const (
	EpisodePricing     = "PRICING"      // расчёт mid и стартовой цены
	EpisodeMarginCheck = "MARGIN_CHECK" // what-if проверка маржи
	EpisodeSubmitted   = "SUBMITTED"    // лимитный ордер размещён
	EpisodeWaiting     = "WAITING"      // ожидание исполнения попытки
	EpisodeAdjusting   = "ADJUSTING"    // отмена и спуск по лестнице

	// Терминальные состояния
	EpisodeFilled             = "FILLED"
	EpisodeMidTooLow          = "MID_TOO_LOW"
	EpisodeNoMargin           = "NO_MARGIN"
	EpisodeLimitReached       = "LIMIT_REACHED"
	EpisodeGatewayUnreachable = "GATEWAY_UNREACHABLE"
)

// ValidTransitions определяет допустимые переходы между состояниями эпизода
var ValidTransitions = map[string][]string{
	EpisodePricing:     {EpisodeMarginCheck, EpisodeMidTooLow, EpisodeGatewayUnreachable},
	EpisodeMarginCheck: {EpisodeSubmitted, EpisodeNoMargin, EpisodeGatewayUnreachable},
	EpisodeSubmitted:   {EpisodeWaiting, EpisodeGatewayUnreachable},
	EpisodeWaiting:     {EpisodeFilled, EpisodeAdjusting, EpisodeGatewayUnreachable},
	EpisodeAdjusting:   {EpisodeSubmitted, EpisodeMidTooLow, EpisodeLimitReached, EpisodeGatewayUnreachable},

	EpisodeFilled:             {},
	EpisodeMidTooLow:          {},
	EpisodeNoMargin:           {},
	EpisodeLimitReached:       {},
	EpisodeGatewayUnreachable: {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
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

// IsTerminal возвращает true для терминального состояния эпизода
func IsTerminal(s string) bool {
	allowed, ok := ValidTransitions[s]
	return ok && len(allowed) == 0
}

// TerminalAlertType возвращает тип алерта для терминального отказа.
// FILLED алерта не порождает, для него возвращается пустая строка.
func TerminalAlertType(s string) string {
	switch s {
	case EpisodeMidTooLow:
		return models.AlertTypeMidTooLow
	case EpisodeNoMargin:
		return models.AlertTypeNoMargin
	case EpisodeLimitReached:
		return models.AlertTypeLimitReached
	case EpisodeGatewayUnreachable:
		return models.AlertTypeGatewayUnreachable
	default:
		return ""
	}
}

// StateInfo возвращает описание состояния эпизода для UI
func StateInfo(s string) string {
	switch s {
	case EpisodePricing:
		return "Расчёт цены комбо"
	case EpisodeMarginCheck:
		return "Проверка маржи"
	case EpisodeSubmitted:
		return "Ордер размещён"
	case EpisodeWaiting:
		return "Ожидание исполнения"
	case EpisodeAdjusting:
		return "Спуск по ценовой лестнице"
	case EpisodeFilled:
		return "Исполнено"
	case EpisodeMidTooLow:
		return "Рыночная цена ниже минимума"
	case EpisodeNoMargin:
		return "Недостаточно маржи"
	case EpisodeLimitReached:
		return "Лестница исчерпана без исполнения"
	case EpisodeGatewayUnreachable:
		return "Шлюз брокера недоступен"
	default:
		return "Неизвестное состояние"
	}
}
