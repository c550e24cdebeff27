package internal

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stage-inventory-api/internal/auth"
	"stage-inventory-api/internal/inventory"
	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/reservation"
	"stage-inventory-api/internal/store"
)

// listEquipment supports q, category, code, sort, limit, offset and an
// optional availability window (available_from, available_to, exclude_event)
func (s *Server) listEquipment(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	values := r.URL.Query()

	query := inventory.ListQuery{
		Filter: store.EquipmentFilter{
			CategoryID: strings.TrimSpace(values.Get("category")),
			Code:       strings.TrimSpace(values.Get("code")),
			Query:      params.q,
			Sort:       params.sort,
			Limit:      params.limit,
			Offset:     params.offset,
		},
	}

	from, hasFrom, err := parseDate(values, "available_from", s.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "available_from must be YYYY-MM-DD", "INVALID_DATE")
		return
	}
	to, hasTo, err := parseDate(values, "available_to", s.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "available_to must be YYYY-MM-DD", "INVALID_DATE")
		return
	}
	if hasFrom != hasTo {
		writeError(w, http.StatusBadRequest, "available_from and available_to go together", "INVALID_WINDOW")
		return
	}
	if hasFrom {
		query.Available = &reservation.Window{
			Start:          from,
			End:            to,
			ExcludeEventID: strings.TrimSpace(values.Get("exclude_event")),
		}
	}

	items, total, err := s.Inventory.List(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	sendListResponse(w, items, total, params)
}

func (s *Server) getEquipment(w http.ResponseWriter, r *http.Request) {
	eq, err := s.Inventory.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

func (s *Server) createEquipment(w http.ResponseWriter, r *http.Request) {
	var in models.CreateEquipmentRequest
	if !s.decodeJSON(w, r, &in) {
		return
	}
	eq, err := s.Inventory.Create(r.Context(), in, auth.ActorIDFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, eq)
}

func (s *Server) updateEquipment(w http.ResponseWriter, r *http.Request) {
	var in models.UpdateEquipmentRequest
	if !s.decodeJSON(w, r, &in) {
		return
	}
	eq, err := s.Inventory.Update(r.Context(), chi.URLParam(r, "id"), in, auth.ActorIDFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

func (s *Server) deleteEquipment(w http.ResponseWriter, r *http.Request) {
	if err := s.Inventory.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) relocateEquipment(w http.ResponseWriter, r *http.Request) {
	var in models.RelocateRequest
	if !s.decodeJSON(w, r, &in) {
		return
	}
	eq, err := s.Inventory.Relocate(r.Context(), chi.URLParam(r, "id"), in, auth.ActorIDFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

func (s *Server) setOutOfService(w http.ResponseWriter, r *http.Request) {
	var in models.OutOfServiceRequest
	if !s.decodeJSON(w, r, &in) {
		return
	}
	eq, err := s.Inventory.SetOutOfService(r.Context(), chi.URLParam(r, "id"), in, auth.ActorIDFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

type serviceStateResponse struct {
	EquipmentID string              `json:"equipment_id"`
	At          string              `json:"at"`
	State       models.ServiceState `json:"service_state"`
}

// getServiceState answers for ?at=YYYY-MM-DD, or for now when at is absent
func (s *Server) getServiceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	at, ok, err := parseDate(r.URL.Query(), "at", s.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "at must be YYYY-MM-DD", "INVALID_DATE")
		return
	}
	if !ok {
		at = s.now()
	}

	state, err := s.Reservations.GetServiceState(r.Context(), id, at)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, serviceStateResponse{
		EquipmentID: id,
		At:          at.In(s.location).Format(dateLayout),
		State:       state,
	})
}

// listHistory supports repeated or comma separated action values, since and limit
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	var filter store.HistoryFilter
	for _, raw := range values["action"] {
		for _, a := range strings.Split(raw, ",") {
			action := models.HistoryAction(strings.TrimSpace(a))
			if action == "" {
				continue
			}
			if !action.IsValid() {
				writeError(w, http.StatusBadRequest, "unknown history action: "+string(action), "INVALID_ACTION")
				return
			}
			filter.Actions = append(filter.Actions, action)
		}
	}
	if since, ok, err := parseDate(values, "since", s.location); err != nil {
		writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD", "INVALID_DATE")
		return
	} else if ok {
		filter.Since = &since
	}
	filter.Limit = parseListParams(r).limit

	entries, err := s.Reservations.ListHistory(r.Context(), chi.URLParam(r, "id"), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

// nowIn is the server clock used when a request does not pin a date
func nowIn(loc *time.Location) func() time.Time {
	return func() time.Time { return time.Now().In(loc) }
}
