package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"schoolcoop/middleware"
	"schoolcoop/services"
	"schoolcoop/utils"
)

// ErrorResponse - тело ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON отправляет ответ в формате JSON
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		utils.LogError("Не удалось записать ответ: %v", err)
	}
}

// writeError сопоставляет ошибку сервиса с HTTP-статусом
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		utils.LogError("Внутренняя ошибка: %v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrSignUpClosed):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrDuplicate),
		errors.Is(err, services.ErrActiveLoanExists),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrDividendAlreadyDistributed):
		return http.StatusConflict
	case errors.Is(err, services.ErrMemberInactive),
		errors.Is(err, services.ErrInsufficientSavings),
		errors.Is(err, services.ErrRepaymentTooSmall),
		errors.Is(err, services.ErrNoUnpaidInstallments),
		errors.Is(err, services.ErrNoShareValue):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON читает тело запроса; при ошибке ответ уже отправлен
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return false
	}
	return true
}

// pathID читает числовой идентификатор из URL
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 32)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// queryID читает необязательный числовой параметр запроса
func queryID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// currentAdmin возвращает id сотрудника из токена, 0 - запрос без токена
func currentAdmin(r *http.Request) uint {
	adminID, _, err := middleware.GetAdminFromContext(r)
	if err != nil {
		return 0
	}
	return adminID
}
