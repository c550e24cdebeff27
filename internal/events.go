package internal

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stage-inventory-api/internal/auth"
	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/reservation"
)

// eventResponse carries the saved event plus any ids that were dropped because
// they no longer exist in inventory
type eventResponse struct {
	Data     models.Event                    `json:"data"`
	Warnings []reservation.DanglingIDWarning `json:"warnings,omitempty"`
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	s.saveEvent(w, r, "", http.StatusCreated)
}

func (s *Server) updateEvent(w http.ResponseWriter, r *http.Request) {
	s.saveEvent(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (s *Server) saveEvent(w http.ResponseWriter, r *http.Request, id string, status int) {
	var in models.SaveEventRequest
	if !s.decodeJSON(w, r, &in) {
		return
	}
	ev, err := eventFromRequest(id, in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_DATE")
		return
	}

	saved, warnings, err := s.Reservations.SaveEvent(r.Context(), ev, auth.ActorIDFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, eventResponse{Data: saved, Warnings: warnings})
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.Reservations.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Data: ev})
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	err := s.Reservations.DeleteEvent(r.Context(), chi.URLParam(r, "id"), auth.ActorIDFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// eventFromRequest converts the wire form. Dates are calendar days, so they
// are read without a zone.
func eventFromRequest(id string, in models.SaveEventRequest) (models.Event, error) {
	start, err := time.Parse(dateLayout, in.StartDate)
	if err != nil {
		return models.Event{}, errors.New("start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, in.EndDate)
	if err != nil {
		return models.Event{}, errors.New("end_date must be YYYY-MM-DD")
	}

	links := make([]models.EventEquipment, 0, len(in.Equipment))
	for _, eq := range in.Equipment {
		links = append(links, models.EventEquipment{
			ID:       strings.TrimSpace(eq.ID),
			Name:     eq.Name,
			Code:     eq.Code,
			Price:    eq.Price,
			Quantity: eq.Quantity,
		})
	}
	return models.Event{
		ID:        id,
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		Location:  in.Location,
		StartDate: start,
		EndDate:   end,
		Equipment: links,
	}, nil
}
