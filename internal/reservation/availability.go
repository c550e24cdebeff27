package reservation

import (
	"time"

	"stage-inventory-api/internal/models"
)

// Window is a query range of calendar days, both ends inclusive.
// ExcludeEventID lets an event being edited ignore its own reservation.
type Window struct {
	Start          time.Time
	End            time.Time
	ExcludeEventID string
}

// Validate rejects windows that end before they start
func (w Window) Validate() error {
	if civilDay(w.Start).After(civilDay(w.End)) {
		return ErrInvalidWindow
	}
	return nil
}

// Resolver derives availability and service state from an item's reservations.
// It holds no state besides the time zone "today" is evaluated in.
type Resolver struct {
	loc *time.Location
}

// NewResolver returns a resolver that evaluates "now" in loc (UTC when nil)
func NewResolver(loc *time.Location) Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return Resolver{loc: loc}
}

// civilDay truncates t to midnight UTC of the calendar date t carries.
// Reservation dates are civil dates, so their own Y/M/D is what counts.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar day now falls on in the resolver's zone
func (r Resolver) Today(now time.Time) time.Time {
	if r.loc == nil {
		return civilDay(now.UTC())
	}
	return civilDay(now.In(r.loc))
}

// Covers reports whether w includes the calendar day of now
func (r Resolver) Covers(w models.ReservationWindow, now time.Time) bool {
	day := r.Today(now)
	return !day.Before(civilDay(w.StartDate)) && !day.After(civilDay(w.EndDate))
}

// ActiveWindow returns the first window covering now. Windows are checked in
// stored order, so the result is deterministic for a given record.
func (r Resolver) ActiveWindow(item models.Equipment, now time.Time) (models.ReservationWindow, bool) {
	for _, w := range item.ScheduledUses {
		if r.Covers(w, now) {
			return w, true
		}
	}
	return models.ReservationWindow{}, false
}

// ComputeServiceState derives the display state of item at now.
// An active reservation wins over the manual out-of-service flag.
func (r Resolver) ComputeServiceState(item models.Equipment, now time.Time) models.ServiceState {
	if _, ok := r.ActiveWindow(item, now); ok {
		return models.ServiceStateInEvent
	}
	if item.OutOfService.IsOut {
		return models.ServiceStateOutOfService
	}
	return models.ServiceStateAvailable
}

// IsFree reports whether no reservation on item overlaps q.
// The manual out-of-service flag is deliberately not consulted.
func (r Resolver) IsFree(item models.Equipment, q Window) bool {
	for _, w := range item.ScheduledUses {
		if q.ExcludeEventID != "" && w.EventID == q.ExcludeEventID {
			continue
		}
		if Overlaps(w.StartDate, w.EndDate, q.Start, q.End) {
			return false
		}
	}
	return true
}

// Overlaps is inclusive interval overlap on calendar days
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !civilDay(aStart).After(civilDay(bEnd)) && !civilDay(bStart).After(civilDay(aEnd))
}
