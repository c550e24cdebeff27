package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/store"
)

// SaveEvent creates or edits ev and brings the referenced equipment in line.
//
// Equipment is reconciled first and the event written last, so a failed
// reconciliation leaves the stored event untouched and the same call can be
// repeated. Missing equipment ids are dropped from the stored list and
// returned as warnings. Name, code and price of each selected item are filled
// from inventory when the caller leaves them empty.
func (s *Service) SaveEvent(ctx context.Context, ev models.Event, actorID string) (models.Event, []DanglingIDWarning, error) {
	window := Window{Start: ev.StartDate, End: ev.EndDate}
	if err := window.Validate(); err != nil {
		return models.Event{}, nil, err
	}

	var previous models.Event
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	} else {
		stored, err := s.events.GetEvent(ctx, ev.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return models.Event{}, nil, fmt.Errorf("get event %s: %w", ev.ID, err)
		default:
			previous = stored
		}
	}
	ev.StartDate = civilDay(ev.StartDate)
	ev.EndDate = civilDay(ev.EndDate)
	ev.Equipment = dedupeEquipment(ev.Equipment)

	warnings, records, err := s.reserve(ctx, ReserveRequest{
		EventID:     ev.ID,
		EventName:   ev.Name,
		EventType:   ev.Type,
		Window:      window,
		Location:    ev.Location,
		PreviousIDs: previous.EquipmentIDs(),
		Next:        ev.Equipment,
		ActorID:     actorID,
	})
	if err != nil {
		// items claimed before the failure must not keep a window for an
		// event the store does not hold
		s.compensate(ctx, ev, actorID)
		return models.Event{}, warnings, err
	}

	ev.Equipment = withoutDangling(ev.Equipment, warnings)
	for i, link := range ev.Equipment {
		if rec, ok := records[link.ID]; ok {
			ev.Equipment[i] = fillLink(link, rec)
		}
	}
	ev.Version = previous.Version

	saved, err := s.events.SaveEvent(ctx, ev)
	if errors.Is(err, store.ErrVersionConflict) {
		s.compensate(ctx, ev, actorID)
		return models.Event{}, warnings, fmt.Errorf("save event %s: %w: %w", ev.ID, ErrConcurrentModification, err)
	}
	if err != nil {
		return models.Event{}, warnings, fmt.Errorf("save event %s: %w", ev.ID, err)
	}
	return saved, warnings, nil
}

// compensate replays the latest stored event over the equipment lost touched,
// so items follow whatever the event store actually holds. An event that is
// not stored releases everything lost referenced.
func (s *Service) compensate(ctx context.Context, lost models.Event, actorID string) {
	ctx = context.WithoutCancel(ctx)
	latest, err := s.events.GetEvent(ctx, lost.ID)
	if errors.Is(err, store.ErrNotFound) {
		err = s.ReleaseForEvent(ctx, lost.ID, lost.EquipmentIDs(), actorID)
	} else if err == nil {
		_, err = s.ReserveForEvent(ctx, ReserveRequest{
			EventID:     latest.ID,
			EventName:   latest.Name,
			EventType:   latest.Type,
			Window:      Window{Start: latest.StartDate, End: latest.EndDate},
			Location:    latest.Location,
			PreviousIDs: lost.EquipmentIDs(),
			Next:        latest.Equipment,
			ActorID:     actorID,
		})
	}
	if err != nil {
		s.logger.Error("compensate lost event save",
			zap.String("event_id", lost.ID),
			zap.Error(err),
		)
	}
}

// DeleteEvent releases every item the event holds and then removes the event.
// When releasing fails the event is kept so the delete can be retried.
func (s *Service) DeleteEvent(ctx context.Context, eventID, actorID string) error {
	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get event %s: %w", eventID, err)
	}
	if err := s.ReleaseForEvent(ctx, ev.ID, ev.EquipmentIDs(), actorID); err != nil {
		return err
	}
	if err := s.events.DeleteEvent(ctx, ev.ID, ev.Version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			s.compensate(ctx, ev, actorID)
			return fmt.Errorf("delete event %s: %w: %w", ev.ID, ErrConcurrentModification, err)
		}
		return fmt.Errorf("delete event %s: %w", ev.ID, err)
	}
	return nil
}

// GetEvent returns one stored event
func (s *Service) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return models.Event{}, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return ev, nil
}

func dedupeEquipment(links []models.EventEquipment) []models.EventEquipment {
	seen := make(map[string]struct{}, len(links))
	out := make([]models.EventEquipment, 0, len(links))
	for _, l := range links {
		if l.ID == "" {
			continue
		}
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}

func withoutDangling(links []models.EventEquipment, warnings []DanglingIDWarning) []models.EventEquipment {
	if len(warnings) == 0 {
		return links
	}
	missing := make(map[string]struct{}, len(warnings))
	for _, w := range warnings {
		missing[w.EquipmentID] = struct{}{}
	}
	out := make([]models.EventEquipment, 0, len(links))
	for _, l := range links {
		if _, ok := missing[l.ID]; !ok {
			out = append(out, l)
		}
	}
	return out
}

func fillLink(link models.EventEquipment, rec models.Equipment) models.EventEquipment {
	if link.Name == "" {
		link.Name = rec.Name
	}
	if link.Code == "" {
		link.Code = rec.Code
	}
	if link.Price == 0 {
		link.Price = rec.RentalPrice
	}
	if link.Quantity == 0 {
		link.Quantity = 1
	}
	return link
}
