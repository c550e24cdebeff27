// Package reservation keeps equipment reservations, derived service state and
// the equipment audit trail consistent as events are created, edited and deleted.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/store"
)

const (
	defaultMaxAttempts = 5
	defaultRetryBase   = 10 * time.Millisecond
	defaultParallelism = 4
)

// History is where the service sends audit entries
type History interface {
	Record(ctx context.Context, entry models.HistoryEntry)
	ListHistory(ctx context.Context, equipmentID string, filter store.HistoryFilter) ([]models.HistoryEntry, error)
}

// Options tunes a Service. Zero values pick defaults.
type Options struct {
	Now         func() time.Time
	Location    *time.Location
	MaxAttempts int
	RetryBase   time.Duration
	Parallelism int
	Logger      *zap.Logger
	Metrics     *Metrics
}

// Service is the event reservation use-case layer
type Service struct {
	equipment store.EquipmentStore
	events    store.EventStore
	history   History
	resolver  Resolver

	now         func() time.Time
	maxAttempts int
	retryBase   time.Duration
	parallelism int
	logger      *zap.Logger
	metrics     *Metrics
}

// NewService wires a Service over its stores
func NewService(equipment store.EquipmentStore, events store.EventStore, history History, opts Options) *Service {
	s := &Service{
		equipment:   equipment,
		events:      events,
		history:     history,
		resolver:    NewResolver(opts.Location),
		now:         opts.Now,
		maxAttempts: opts.MaxAttempts,
		retryBase:   opts.RetryBase,
		parallelism: opts.Parallelism,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.retryBase <= 0 {
		s.retryBase = defaultRetryBase
	}
	if s.parallelism <= 0 {
		s.parallelism = defaultParallelism
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Resolver exposes the availability rules the service applies
func (s *Service) Resolver() Resolver {
	return s.resolver
}

// ReserveRequest describes one event write as seen by the reservation engine
type ReserveRequest struct {
	EventID     string
	EventName   string
	EventType   string
	Window      Window
	Location    string
	PreviousIDs []string
	Next        []models.EventEquipment
	ActorID     string
}

// ReserveForEvent moves the equipment claims of one event from PreviousIDs to Next.
//
// Every id is handled as an independent per-item compare-and-swap, so a
// failure on one item does not roll back the others; rerunning the same
// request converges. Ids missing from inventory are skipped and reported as
// warnings.
func (s *Service) ReserveForEvent(ctx context.Context, req ReserveRequest) ([]DanglingIDWarning, error) {
	warnings, _, err := s.reserve(ctx, req)
	return warnings, err
}

func (s *Service) reserve(ctx context.Context, req ReserveRequest) ([]DanglingIDWarning, map[string]models.Equipment, error) {
	if req.EventID == "" {
		return nil, nil, ErrMissingEventID
	}
	if err := req.Window.Validate(); err != nil {
		s.metrics.observeOperation("reserve", err)
		return nil, nil, err
	}

	nextIDs := make([]string, 0, len(req.Next))
	for _, eq := range req.Next {
		nextIDs = append(nextIDs, eq.ID)
	}
	diff := DiffEquipment(req.PreviousIDs, nextIDs)

	window := models.ReservationWindow{
		EventID:   req.EventID,
		EventName: req.EventName,
		EventType: req.EventType,
		StartDate: civilDay(req.Window.Start),
		EndDate:   civilDay(req.Window.End),
		Location:  req.Location,
	}

	warnings, records, err := s.apply(ctx, req.EventID, diff, window, req.ActorID)
	s.metrics.observeOperation("reserve", err)
	if err != nil {
		s.logger.Error("reserve equipment for event",
			zap.String("event_id", req.EventID),
			zap.Int("items", diff.Len()),
			zap.Error(err),
		)
	}
	return warnings, records, err
}

// ReleaseForEvent drops the windows event eventID holds on equipmentIDs
func (s *Service) ReleaseForEvent(ctx context.Context, eventID string, equipmentIDs []string, actorID string) error {
	if eventID == "" {
		return ErrMissingEventID
	}
	diff := DiffEquipment(equipmentIDs, nil)
	_, _, err := s.apply(ctx, eventID, diff, models.ReservationWindow{EventID: eventID}, actorID)
	s.metrics.observeOperation("release", err)
	if err != nil {
		s.logger.Error("release equipment for event",
			zap.String("event_id", eventID),
			zap.Int("items", diff.Len()),
			zap.Error(err),
		)
	}
	return err
}

// GetServiceState derives the state of one item at now from its stored reservations
func (s *Service) GetServiceState(ctx context.Context, equipmentID string, now time.Time) (models.ServiceState, error) {
	eq, err := s.equipment.GetEquipment(ctx, equipmentID)
	if err != nil {
		return "", fmt.Errorf("get equipment %s: %w", equipmentID, err)
	}
	return s.resolver.ComputeServiceState(eq, now), nil
}

// ListHistory returns the audit trail of one item, newest first
func (s *Service) ListHistory(ctx context.Context, equipmentID string, filter store.HistoryFilter) ([]models.HistoryEntry, error) {
	if _, err := s.equipment.GetEquipment(ctx, equipmentID); err != nil {
		return nil, fmt.Errorf("get equipment %s: %w", equipmentID, err)
	}
	entries, err := s.history.ListHistory(ctx, equipmentID, filter)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date.After(entries[j].Date) })
	return entries, nil
}

type outcome struct {
	id       string
	record   models.Equipment
	dangling bool
	err      error
}

// apply runs one per-item operation for every id in diff with bounded parallelism.
// It never stops early: each item is attempted and failures are joined.
func (s *Service) apply(ctx context.Context, eventID string, diff Diff, window models.ReservationWindow, actorID string) ([]DanglingIDWarning, map[string]models.Equipment, error) {
	type job struct {
		id    string
		class Class
	}
	jobs := make([]job, 0, diff.Len())
	diff.Each(func(id string, class Class) {
		jobs = append(jobs, job{id: id, class: class})
	})

	results := make([]outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = s.applyOne(ctx, eventID, j.id, j.class, window, actorID)
			return nil
		})
	}
	_ = g.Wait()

	var warnings []DanglingIDWarning
	var errs []error
	records := make(map[string]models.Equipment, len(results))
	for _, r := range results {
		switch {
		case r.dangling:
			s.metrics.incDangling()
			s.logger.Warn("event references missing equipment",
				zap.String("event_id", eventID),
				zap.String("equipment_id", r.id),
			)
			warnings = append(warnings, danglingWarning(eventID, r.id))
		case r.err != nil:
			errs = append(errs, &ItemError{EquipmentID: r.id, Err: r.err})
		default:
			records[r.id] = r.record
		}
	}
	return warnings, records, errors.Join(errs...)
}

// applyOne is read, pure mutation, conditional write; retried on conflicts
// and transient store errors with exponential backoff.
func (s *Service) applyOne(ctx context.Context, eventID, id string, class Class, window models.ReservationWindow, actorID string) outcome {
	var entry *models.HistoryEntry
	backoff := retry.WithMaxRetries(uint64(s.maxAttempts-1), retry.NewExponential(s.retryBase))

	saved, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (models.Equipment, error) {
		entry = nil
		current, err := s.equipment.GetEquipment(ctx, id)
		if err != nil {
			return current, retryable(err)
		}

		now := s.now()
		next := current.Clone()
		var e *models.HistoryEntry
		if class == ClassRemoved {
			e = s.release(&next, eventID, now)
		} else {
			e = s.claim(&next, window, now)
		}
		next.ServiceState = s.resolver.ComputeServiceState(next, now)
		if sameReservationState(current, next) {
			return current, nil
		}

		updated, err := s.equipment.UpdateEquipment(ctx, next)
		if err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				s.metrics.incConflict()
			}
			return updated, retryable(err)
		}
		entry = e
		return updated, nil
	})

	switch {
	case errors.Is(err, store.ErrNotFound):
		return outcome{id: id, dangling: true}
	case errors.Is(err, store.ErrVersionConflict):
		return outcome{id: id, err: fmt.Errorf("%w: %w", ErrConcurrentModification, err)}
	case err != nil:
		return outcome{id: id, err: err}
	}

	if entry != nil {
		entry.EquipmentID = id
		entry.ActorID = actorID
		s.history.Record(ctx, *entry)
	}
	return outcome{id: id, record: saved}
}

// retryable marks everything but missing records and cancellation for another attempt
func retryable(err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return retry.RetryableError(err)
}

// claim installs w as the only window for its event (added and kept paths).
func (s *Service) claim(eq *models.Equipment, w models.ReservationWindow, now time.Time) *models.HistoryEntry {
	prev, had := eq.WindowFor(w.EventID)
	eq.ScheduledUses = upsertWindow(eq.ScheduledUses, w)

	switch {
	case s.resolver.Covers(w, now):
		if w.Location != "" {
			eq.Location = w.Location
		}
	case had && s.resolver.Covers(prev, now):
		// the edit moved this reservation off today
		s.settleAfterRelease(eq, now)
	}

	if had && sameWindow(prev, w) {
		return nil
	}
	note := "reserved for event"
	if had {
		note = "reservation moved with event"
	}
	return &models.HistoryEntry{
		Action: models.HistoryEventUse,
		Event:  eventReference(w),
		Note:   note,
	}
}

// release drops the window of eventID (removed path). Releasing an id that
// holds no window for the event is a no-op.
func (s *Service) release(eq *models.Equipment, eventID string, now time.Time) *models.HistoryEntry {
	prev, had := eq.WindowFor(eventID)
	if !had {
		return nil
	}
	before := s.resolver.ComputeServiceState(*eq, now)
	eq.ScheduledUses = removeWindow(eq.ScheduledUses, eventID)

	entry := &models.HistoryEntry{
		Action: models.HistoryStateChange,
		Event:  eventReference(prev),
		From:   string(before),
		Note:   fmt.Sprintf("released from event %s", prev.EventName),
	}
	// Only a release of the window that placed the item today sends it back to
	// the warehouse. Dropping a past or future window leaves location and the
	// manual out-of-service flag as they are.
	if s.resolver.Covers(prev, now) {
		if holder, busy := s.settleAfterRelease(eq, now); busy {
			entry.Note = fmt.Sprintf("released from event %s; still held by event %s", prev.EventName, holder.EventName)
		}
	}
	entry.To = string(s.resolver.ComputeServiceState(*eq, now))
	return entry
}

// settleAfterRelease rescans the remaining windows once an active claim is gone.
// If another event still covers today the item follows it; otherwise the item
// returns to the warehouse with its manual flag cleared.
func (s *Service) settleAfterRelease(eq *models.Equipment, now time.Time) (models.ReservationWindow, bool) {
	if holder, ok := s.resolver.ActiveWindow(*eq, now); ok {
		if holder.Location != "" {
			eq.Location = holder.Location
		}
		return holder, true
	}
	eq.Location = models.DefaultLocation
	eq.OutOfService = models.OutOfService{}
	return models.ReservationWindow{}, false
}

func eventReference(w models.ReservationWindow) *models.EventReference {
	return &models.EventReference{
		EventID:   w.EventID,
		EventName: w.EventName,
		StartDate: w.StartDate,
		EndDate:   w.EndDate,
		Location:  w.Location,
	}
}

// upsertWindow replaces any window for w.EventID with w, keeping at most one per event
func upsertWindow(uses []models.ReservationWindow, w models.ReservationWindow) []models.ReservationWindow {
	out := make([]models.ReservationWindow, 0, len(uses)+1)
	replaced := false
	for _, u := range uses {
		if u.EventID != w.EventID {
			out = append(out, u)
			continue
		}
		if !replaced {
			out = append(out, w)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, w)
	}
	return out
}

func removeWindow(uses []models.ReservationWindow, eventID string) []models.ReservationWindow {
	out := make([]models.ReservationWindow, 0, len(uses))
	for _, u := range uses {
		if u.EventID != eventID {
			out = append(out, u)
		}
	}
	return out
}

func sameWindow(a, b models.ReservationWindow) bool {
	return a.EventID == b.EventID &&
		a.EventName == b.EventName &&
		a.EventType == b.EventType &&
		a.Location == b.Location &&
		a.StartDate.Equal(b.StartDate) &&
		a.EndDate.Equal(b.EndDate)
}

func sameReservationState(a, b models.Equipment) bool {
	if a.Location != b.Location || a.OutOfService != b.OutOfService || a.ServiceState != b.ServiceState {
		return false
	}
	if len(a.ScheduledUses) != len(b.ScheduledUses) {
		return false
	}
	for i := range a.ScheduledUses {
		if !sameWindow(a.ScheduledUses[i], b.ScheduledUses[i]) {
			return false
		}
	}
	return true
}
