package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/engine"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/repository"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/service"
)

// PositionHandler отвечает за просмотр и ручное закрытие позиций
//
// Endpoints:
// - GET /api/v1/positions - активные позиции
// - GET /api/v1/positions/{id} - позиция по ID
// - POST /api/v1/positions/{id}/close - закрытие по рынку
// - GET /api/v1/episodes/{id}/attempts - журнал попыток эпизода
//
// Все мутации идут через торговое ядро (TradeService делегирует
// движку), handler никогда не пишет в репозиторий напрямую.
type PositionHandler struct {
	tradeService service.TradeServiceInterface
}

// NewPositionHandler создает новый PositionHandler с внедрением зависимости
func NewPositionHandler(tradeService service.TradeServiceInterface) *PositionHandler {
	return &PositionHandler{tradeService: tradeService}
}

// LegDTO представляет ногу позиции в API
type LegDTO struct {
	Right      string  `json:"right"`
	Strike     float64 `json:"strike"`
	Expiry     string  `json:"expiry"`
	Side       string  `json:"side"`
	Quantity   int     `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
}

// PositionDTO представляет позицию в API
type PositionDTO struct {
	ID         int      `json:"id"`
	FollowerID int      `json:"follower_id"`
	EpisodeID  string   `json:"episode_id"`
	Underlying string   `json:"underlying"`
	State      string   `json:"state"`
	Legs       []LegDTO `json:"legs"`
	OpenedAt   string   `json:"opened_at"`
	ClosedAt   string   `json:"closed_at,omitempty"`
}

func positionToDTO(p *models.Position) PositionDTO {
	dto := PositionDTO{
		ID:         p.ID,
		FollowerID: p.FollowerID,
		EpisodeID:  p.EpisodeID,
		Underlying: p.Underlying,
		State:      p.State,
		Legs:       make([]LegDTO, 0, len(p.Legs)),
		OpenedAt:   p.OpenedAt.Format(timestampLayout),
	}
	if p.ClosedAt != nil {
		dto.ClosedAt = p.ClosedAt.Format(timestampLayout)
	}
	for _, leg := range p.Legs {
		dto.Legs = append(dto.Legs, LegDTO{
			Right:      leg.Right,
			Strike:     leg.Strike,
			Expiry:     leg.Expiry.Format("2006-01-02"),
			Side:       leg.Side,
			Quantity:   leg.Quantity,
			EntryPrice: leg.EntryPrice,
		})
	}
	return dto
}

// GetPositionsResponse представляет ответ списка позиций
type GetPositionsResponse struct {
	Positions []PositionDTO `json:"positions"`
	Total     int           `json:"total"`
}

// GetPositions возвращает все активные (незакрытые) позиции
//
// GET /api/v1/positions
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка сервера
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.tradeService.GetActivePositions()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get positions: "+err.Error())
		return
	}

	dtos := make([]PositionDTO, 0, len(positions))
	for _, p := range positions {
		dtos = append(dtos, positionToDTO(p))
	}

	h.respondWithJSON(w, http.StatusOK, GetPositionsResponse{
		Positions: dtos,
		Total:     len(dtos),
	})
}

// GetPosition возвращает позицию по ID
//
// GET /api/v1/positions/{id}
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: невалидный ID
// - 404 Not Found: позиция не найдена
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	position, err := h.tradeService.GetPosition(id)
	if err != nil {
		if errors.Is(err, repository.ErrPositionNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Position not found")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get position: "+err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, positionToDTO(position))
}

// ClosePositionRequest представляет запрос закрытия позиции
type ClosePositionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ClosePosition инициирует закрытие позиции по рынку
//
// POST /api/v1/positions/{id}/close
//
// Тело запроса опционально: {"reason": "..."}.
// Повторный запрос по уже закрываемой позиции возвращает 409.
//
// HTTP коды:
// - 200 OK: позиция закрыта
// - 400 Bad Request: невалидный ID
// - 404 Not Found: позиция не найдена
// - 409 Conflict: закрытие уже идет
// - 500 Internal Server Error: ошибка брокера, состояние откачено
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req ClosePositionRequest
	if r.Body != nil {
		// Пустое тело допустимо
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual close"
	}

	if err := h.tradeService.ClosePosition(r.Context(), id, reason); err != nil {
		switch {
		case errors.Is(err, engine.ErrCloseInProgress):
			h.respondWithError(w, http.StatusConflict, err.Error())
		case errors.Is(err, repository.ErrPositionNotFound):
			h.respondWithError(w, http.StatusNotFound, "Position not found")
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Failed to close position: "+err.Error())
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Position closed"})
}

// AttemptDTO представляет попытку ордера в API
type AttemptDTO struct {
	AttemptIndex  int     `json:"attempt_index"`
	LimitPrice    float64 `json:"limit_price"`
	BrokerOrderID string  `json:"broker_order_id,omitempty"`
	Outcome       string  `json:"outcome"`
	ErrorMessage  string  `json:"error_message,omitempty"`
	SubmittedAt   string  `json:"submitted_at"`
}

// GetEpisodeAttemptsResponse представляет журнал попыток эпизода
type GetEpisodeAttemptsResponse struct {
	EpisodeID string       `json:"episode_id"`
	Attempts  []AttemptDTO `json:"attempts"`
	Total     int          `json:"total"`
}

// GetEpisodeAttempts возвращает журнал попыток лестницы для эпизода
//
// GET /api/v1/episodes/{id}/attempts
//
// HTTP коды:
// - 200 OK: успешно (пустой список для неизвестного эпизода)
// - 500 Internal Server Error: ошибка сервера
func (h *PositionHandler) GetEpisodeAttempts(w http.ResponseWriter, r *http.Request) {
	episodeID := mux.Vars(r)["id"]
	if episodeID == "" {
		h.respondWithError(w, http.StatusBadRequest, "Invalid episode ID")
		return
	}

	attempts, err := h.tradeService.GetEpisodeAttempts(episodeID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get attempts: "+err.Error())
		return
	}

	dtos := make([]AttemptDTO, 0, len(attempts))
	for _, a := range attempts {
		dtos = append(dtos, AttemptDTO{
			AttemptIndex:  a.AttemptIndex,
			LimitPrice:    a.LimitPrice,
			BrokerOrderID: a.BrokerOrderID,
			Outcome:       a.Outcome,
			ErrorMessage:  a.ErrorMessage,
			SubmittedAt:   a.SubmittedAt.Format(timestampLayout),
		})
	}

	h.respondWithJSON(w, http.StatusOK, GetEpisodeAttemptsResponse{
		EpisodeID: episodeID,
		Attempts:  dtos,
		Total:     len(dtos),
	})
}

// parseID извлекает {id} из пути
func (h *PositionHandler) parseID(w http.ResponseWriter, r *http.Request) (int, bool) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil || id <= 0 {
		h.respondWithError(w, http.StatusBadRequest, "Invalid position ID")
		return 0, false
	}
	return id, true
}

// respondWithError отправляет JSON ошибку
func (h *PositionHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func (h *PositionHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
