package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/service"
)

// SignalHandler принимает торговые сигналы мастер-стратегии
//
// Endpoints:
// - POST /api/v1/signals - поставить сигнал в очередь движка
//
// Прием асинхронный: handler валидирует и буферизует, исполнение
// (маржа, лестница) выполняет движок в своем цикле. Дубликаты по
// (follower_id, issued_at) отбрасывает движок идемпотентно.
type SignalHandler struct {
	signalService service.SignalServiceInterface
}

// NewSignalHandler создает новый SignalHandler с внедрением зависимости
func NewSignalHandler(signalService service.SignalServiceInterface) *SignalHandler {
	return &SignalHandler{signalService: signalService}
}

// SubmitSignalResponse представляет ответ приема сигнала
type SubmitSignalResponse struct {
	Message string `json:"message"`
	Pending int    `json:"pending"`
}

// SubmitSignal ставит сигнал в очередь исполнения
//
// POST /api/v1/signals
//
// Тело запроса:
//
//	{
//	  "strategy_kind": "BULL_PUT",
//	  "underlying": "SPX",
//	  "short_strike": 5600,
//	  "long_strike": 5550,
//	  "expiry": "2026-09-18T00:00:00Z",
//	  "quantity": 10,
//	  "follower_id": 7,
//	  "issued_at": "2026-08-31T14:30:00Z"
//	}
//
// issued_at опционален (по умолчанию момент приема).
//
// HTTP коды:
// - 202 Accepted: сигнал принят в очередь
// - 400 Bad Request: невалидное тело или параметры сигнала
// - 503 Service Unavailable: очередь переполнена
func (h *SignalHandler) SubmitSignal(w http.ResponseWriter, r *http.Request) {
	var sig models.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.signalService.Submit(&sig); err != nil {
		if errors.Is(err, service.ErrSignalQueueFull) {
			h.respondWithError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusAccepted, SubmitSignalResponse{
		Message: "Signal accepted",
		Pending: h.signalService.PendingCount(),
	})
}

// respondWithError отправляет JSON ошибку
func (h *SignalHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func (h *SignalHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
