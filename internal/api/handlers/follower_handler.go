package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/repository"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/service"
)

// FollowerHandler отвечает за управление аккаунтами фолловеров
//
// Endpoints:
// - GET /api/v1/followers - список фолловеров
// - POST /api/v1/followers - регистрация фолловера
// - GET /api/v1/followers/{id} - фолловер по ID
// - PATCH /api/v1/followers/{id} - обновление (enabled, policy, credentials)
// - DELETE /api/v1/followers/{id} - удаление (только без активных позиций)
// - POST /api/v1/followers/{id}/close-all - закрытие всех позиций по рынку
type FollowerHandler struct {
	followerService service.FollowerServiceInterface
	tradeService    service.TradeServiceInterface
}

// NewFollowerHandler создает новый FollowerHandler с внедрением зависимостей.
// tradeService нужен для close-all: закрытие позиций идет через торговое ядро.
func NewFollowerHandler(followerService service.FollowerServiceInterface, tradeService service.TradeServiceInterface) *FollowerHandler {
	return &FollowerHandler{
		followerService: followerService,
		tradeService:    tradeService,
	}
}

// FollowerDTO представляет фолловера в API (без credentials)
type FollowerDTO struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	BrokerAccountID string `json:"broker_account_id"`
	Enabled         bool   `json:"enabled"`
	RebalancePolicy string `json:"rebalance_policy"`
	LastError       string `json:"last_error,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func followerToDTO(f *models.FollowerAccount) FollowerDTO {
	return FollowerDTO{
		ID:              f.ID,
		Name:            f.Name,
		BrokerAccountID: f.BrokerAccountID,
		Enabled:         f.Enabled,
		RebalancePolicy: f.RebalancePolicy,
		LastError:       f.LastError,
		CreatedAt:       f.CreatedAt.Format(timestampLayout),
	}
}

// GetFollowersResponse представляет ответ списка фолловеров
type GetFollowersResponse struct {
	Followers []FollowerDTO `json:"followers"`
	Total     int           `json:"total"`
}

// GetFollowers возвращает список всех фолловеров
//
// GET /api/v1/followers
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка сервера
func (h *FollowerHandler) GetFollowers(w http.ResponseWriter, r *http.Request) {
	followers, err := h.followerService.GetAll()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get followers: "+err.Error())
		return
	}

	dtos := make([]FollowerDTO, 0, len(followers))
	for _, f := range followers {
		dtos = append(dtos, followerToDTO(f))
	}

	h.respondWithJSON(w, http.StatusOK, GetFollowersResponse{
		Followers: dtos,
		Total:     len(dtos),
	})
}

// CreateFollowerRequest представляет запрос регистрации фолловера
type CreateFollowerRequest struct {
	Name            string `json:"name"`
	BrokerAccountID string `json:"broker_account_id"`
	APIKey          string `json:"api_key"`
	APISecret       string `json:"api_secret"`
	RebalancePolicy string `json:"rebalance_policy"`
}

// CreateFollower регистрирует нового фолловера
//
// POST /api/v1/followers
//
// Тело запроса:
//
//	{
//	  "name": "follower-1",
//	  "broker_account_id": "DU100",
//	  "api_key": "...",
//	  "api_secret": "...",
//	  "rebalance_policy": "CLOSE"
//	}
//
// Фолловер создается выключенным: торговля начинается только после
// явного включения через PATCH.
//
// HTTP коды:
// - 201 Created: фолловер зарегистрирован
// - 400 Bad Request: невалидное тело или параметры
// - 500 Internal Server Error: ошибка сервера
func (h *FollowerHandler) CreateFollower(w http.ResponseWriter, r *http.Request) {
	var req CreateFollowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	follower, err := h.followerService.Register(&service.RegisterFollowerRequest{
		Name:            req.Name,
		BrokerAccountID: req.BrokerAccountID,
		APIKey:          req.APIKey,
		APISecret:       req.APISecret,
		RebalancePolicy: req.RebalancePolicy,
	})
	if err != nil {
		if isValidationError(err) {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "Failed to register follower: "+err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusCreated, followerToDTO(follower))
}

// GetFollower возвращает фолловера по ID
//
// GET /api/v1/followers/{id}
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: невалидный ID
// - 404 Not Found: фолловер не найден
func (h *FollowerHandler) GetFollower(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	follower, err := h.followerService.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrFollowerNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Follower not found")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get follower: "+err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, followerToDTO(follower))
}

// UpdateFollowerRequest представляет частичное обновление фолловера.
// nil-поля не изменяются.
type UpdateFollowerRequest struct {
	Enabled         *bool   `json:"enabled,omitempty"`
	RebalancePolicy *string `json:"rebalance_policy,omitempty"`
	APIKey          *string `json:"api_key,omitempty"`
	APISecret       *string `json:"api_secret,omitempty"`
}

// UpdateFollower выполняет частичное обновление фолловера
//
// PATCH /api/v1/followers/{id}
//
// Поддерживаемые поля: enabled, rebalance_policy, api_key + api_secret
// (только парой). Выключение фолловера не трогает его открытые позиции,
// для этого есть POST /followers/{id}/close-all.
//
// HTTP коды:
// - 200 OK: обновлено
// - 400 Bad Request: невалидное тело или параметры
// - 404 Not Found: фолловер не найден
func (h *FollowerHandler) UpdateFollower(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req UpdateFollowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if (req.APIKey == nil) != (req.APISecret == nil) {
		h.respondWithError(w, http.StatusBadRequest, "api_key and api_secret must be updated together")
		return
	}

	if req.RebalancePolicy != nil {
		if err := h.followerService.UpdatePolicy(id, *req.RebalancePolicy); err != nil {
			h.respondUpdateError(w, err)
			return
		}
	}

	if req.APIKey != nil {
		if err := h.followerService.UpdateCredentials(id, *req.APIKey, *req.APISecret); err != nil {
			h.respondUpdateError(w, err)
			return
		}
	}

	if req.Enabled != nil {
		if err := h.followerService.SetEnabled(id, *req.Enabled); err != nil {
			h.respondUpdateError(w, err)
			return
		}
	}

	follower, err := h.followerService.GetByID(id)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get follower: "+err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, followerToDTO(follower))
}

// DeleteFollower удаляет фолловера
//
// DELETE /api/v1/followers/{id}
//
// Фолловер с активными позициями не удаляется: сначала закрыть
// позиции через close-all.
//
// HTTP коды:
// - 200 OK: удален
// - 404 Not Found: фолловер не найден
// - 409 Conflict: есть активные позиции
func (h *FollowerHandler) DeleteFollower(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.followerService.Remove(id); err != nil {
		switch {
		case errors.Is(err, service.ErrHasActivePositions):
			h.respondWithError(w, http.StatusConflict, err.Error())
		case errors.Is(err, repository.ErrFollowerNotFound):
			h.respondWithError(w, http.StatusNotFound, "Follower not found")
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Failed to remove follower: "+err.Error())
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Follower removed"})
}

// CloseAllPositions закрывает все активные позиции фолловера по рынку
//
// POST /api/v1/followers/{id}/close-all
//
// HTTP коды:
// - 200 OK: закрытие инициировано и выполнено
// - 400 Bad Request: невалидный ID
// - 500 Internal Server Error: ошибка ядра или брокера
func (h *FollowerHandler) CloseAllPositions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.tradeService.CloseAllForFollower(r.Context(), id, "manual close-all"); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to close positions: "+err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "All positions closed"})
}

// parseID извлекает {id} из пути
func (h *FollowerHandler) parseID(w http.ResponseWriter, r *http.Request) (int, bool) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil || id <= 0 {
		h.respondWithError(w, http.StatusBadRequest, "Invalid follower ID")
		return 0, false
	}
	return id, true
}

// respondUpdateError выбирает HTTP код для ошибки обновления
func (h *FollowerHandler) respondUpdateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrFollowerNotFound):
		h.respondWithError(w, http.StatusNotFound, "Follower not found")
	case isValidationError(err):
		h.respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.respondWithError(w, http.StatusInternalServerError, "Failed to update follower: "+err.Error())
	}
}

// isValidationError возвращает true для ошибок валидации запроса
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrInvalidPolicy) ||
		errors.Is(err, service.ErrMissingName) ||
		errors.Is(err, service.ErrMissingAccount) ||
		errors.Is(err, service.ErrMissingCredentials)
}

// respondWithError отправляет JSON ошибку
func (h *FollowerHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func (h *FollowerHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
