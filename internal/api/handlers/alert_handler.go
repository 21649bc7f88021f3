package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/service"
)

// AlertHandler отвечает за чтение журнала алертов
//
// Endpoints:
// - GET /api/v1/alerts - последние алерты
// - GET /api/v1/alerts?types=assignment,no_margin - фильтр по типам
// - GET /api/v1/alerts?follower_id=7 - фильтр по фолловеру
// - GET /api/v1/alerts?limit=50 - ограничение количества
// - DELETE /api/v1/alerts?older_than=720h - очистка старых записей
//
// Журнал append-only: ядро пишет, поверхность только читает и
// подрезает историю. Маршрутизация (email, Telegram) выполняется
// внешним потребителем стрима.
type AlertHandler struct {
	alertService service.AlertServiceInterface
}

// NewAlertHandler создает новый AlertHandler с внедрением зависимости
func NewAlertHandler(alertService service.AlertServiceInterface) *AlertHandler {
	return &AlertHandler{alertService: alertService}
}

// AlertDTO представляет алерт в API
type AlertDTO struct {
	ID         int                    `json:"id"`
	Timestamp  string                 `json:"timestamp"`
	Type       string                 `json:"type"`
	Severity   string                 `json:"severity"`
	FollowerID *int                   `json:"follower_id,omitempty"`
	Message    string                 `json:"message"`
	Params     map[string]interface{} `json:"params,omitempty"`
}

func alertToDTO(a *models.AlertEvent) AlertDTO {
	return AlertDTO{
		ID:         a.ID,
		Timestamp:  a.Timestamp.Format(timestampLayout),
		Type:       a.Type,
		Severity:   a.Severity,
		FollowerID: a.FollowerID,
		Message:    a.Message,
		Params:     a.Params,
	}
}

// GetAlertsResponse представляет ответ списка алертов
type GetAlertsResponse struct {
	Alerts []AlertDTO `json:"alerts"`
	Total  int        `json:"total"`
}

// GetAlerts возвращает журнал алертов с фильтрацией
//
// GET /api/v1/alerts
//
// Query параметры:
// - types (string): фильтр по типам через запятую
//   (no_margin,mid_too_low,limit_reached,gateway_unreachable,
//   assignment,risk_tier_change,auto_liquidation)
// - follower_id (int): только алерты фолловера
// - limit (int): количество записей (по умолчанию 100, максимум 500)
//
// types и follower_id взаимоисключающие: при обоих параметрах
// применяется follower_id.
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: невалидные параметры
// - 500 Internal Server Error: ошибка сервера
func (h *AlertHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	typesParam := r.URL.Query().Get("types")
	limitParam := r.URL.Query().Get("limit")
	followerParam := r.URL.Query().Get("follower_id")

	var types []string
	if typesParam != "" {
		for _, part := range strings.Split(typesParam, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				types = append(types, trimmed)
			}
		}
	}

	limit := 100
	if limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var (
		alerts []*models.AlertEvent
		err    error
	)
	if followerParam != "" {
		followerID, convErr := strconv.Atoi(followerParam)
		if convErr != nil || followerID <= 0 {
			h.respondWithError(w, http.StatusBadRequest, "Invalid follower_id")
			return
		}
		alerts, err = h.alertService.GetAlertsByFollower(followerID, limit)
	} else {
		alerts, err = h.alertService.GetAlerts(types, limit)
	}
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get alerts: "+err.Error())
		return
	}

	dtos := make([]AlertDTO, 0, len(alerts))
	for _, a := range alerts {
		dtos = append(dtos, alertToDTO(a))
	}

	h.respondWithJSON(w, http.StatusOK, GetAlertsResponse{
		Alerts: dtos,
		Total:  len(dtos),
	})
}

// CleanupAlertsResponse представляет ответ очистки журнала
type CleanupAlertsResponse struct {
	Deleted int64  `json:"deleted"`
	Message string `json:"message"`
}

// CleanupAlerts удаляет алерты старше заданного возраста
//
// DELETE /api/v1/alerts?older_than=720h
//
// older_than - Go duration (по умолчанию 720h, минимум 1h:
// свежую историю случайно не вычистить).
//
// HTTP коды:
// - 200 OK: очищено
// - 400 Bad Request: невалидный older_than
// - 500 Internal Server Error: ошибка сервера
func (h *AlertHandler) CleanupAlerts(w http.ResponseWriter, r *http.Request) {
	olderThan := 720 * time.Hour
	if param := r.URL.Query().Get("older_than"); param != "" {
		parsed, err := time.ParseDuration(param)
		if err != nil || parsed < time.Hour {
			h.respondWithError(w, http.StatusBadRequest, "older_than must be a duration of at least 1h")
			return
		}
		olderThan = parsed
	}

	deleted, err := h.alertService.CleanupOld(time.Now().Add(-olderThan))
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to cleanup alerts: "+err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, CleanupAlertsResponse{
		Deleted: deleted,
		Message: "Alerts cleaned up",
	})
}

// respondWithError отправляет JSON ошибку
func (h *AlertHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func (h *AlertHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
