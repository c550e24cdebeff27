package internal

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"stage-inventory-api/internal/auth"
	"stage-inventory-api/internal/inventory"
	"stage-inventory-api/internal/reservation"
	"stage-inventory-api/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, auth.ErrorResponse{Error: message, Code: code})
}

// errorStatus maps domain errors to an HTTP status and error code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, reservation.ErrConcurrentModification), errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, "CONCURRENT_MODIFICATION"
	case errors.Is(err, inventory.ErrInEvent):
		return http.StatusConflict, "EQUIPMENT_IN_EVENT"
	case errors.Is(err, inventory.ErrEquipmentInUse):
		return http.StatusConflict, "EQUIPMENT_IN_USE"
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, reservation.ErrInvalidWindow):
		return http.StatusUnprocessableEntity, "INVALID_WINDOW"
	case errors.Is(err, inventory.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, inventory.ErrNothingToUpdate):
		return http.StatusBadRequest, "NOTHING_TO_UPDATE"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// writeServiceError answers with the status mapped from err. Unmapped errors
// are logged and their text is not exposed.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("actor_id", auth.ActorIDFromContext(r.Context())),
			zap.Error(err),
		)
		message = "internal server error"
	}
	writeError(w, status, message, code)
}

// decodeJSON decodes the body into dst and validates it. It writes the 400
// response itself and reports false on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "INVALID_JSON")
		return false
	}
	if err := s.validate.StructCtx(r.Context(), dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
		return false
	}
	return true
}
