// Package inventory implements the equipment lifecycle outside of events:
// intake, attribute edits, relocation, the manual out-of-service flag and
// removal. Every change lands in the equipment history.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/reservation"
	"stage-inventory-api/internal/store"
)

var (
	// ErrInEvent is returned for state edits while an event holds the item today.
	ErrInEvent = errors.New("inventory: equipment is in use by an event")
	// ErrEquipmentInUse is returned when deleting an item that still has reservations.
	ErrEquipmentInUse = errors.New("inventory: equipment has scheduled uses")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("inventory: invalid input")
	// ErrNothingToUpdate is returned for an empty patch.
	ErrNothingToUpdate = errors.New("inventory: no fields to update")
)

const (
	updateAttempts  = 5
	updateRetryBase = 10 * time.Millisecond
)

// HistoryRecorder receives audit entries
type HistoryRecorder interface {
	Record(ctx context.Context, entry models.HistoryEntry)
}

// Options tunes a Service. Zero values pick defaults.
type Options struct {
	Resolver  reservation.Resolver
	Validator *validator.Validate
	Now       func() time.Time
	Logger    *zap.Logger
}

// Service manages equipment records
type Service struct {
	store    store.EquipmentStore
	history  HistoryRecorder
	resolver reservation.Resolver
	validate *validator.Validate
	now      func() time.Time
	logger   *zap.Logger
}

// NewService returns a Service over st
func NewService(st store.EquipmentStore, history HistoryRecorder, opts Options) *Service {
	s := &Service{
		store:    st,
		history:  history,
		resolver: opts.Resolver,
		validate: opts.Validator,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if s.validate == nil {
		s.validate = validator.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// ListQuery narrows equipment listings. When Available is set, only items
// free over that window are returned.
type ListQuery struct {
	Filter    store.EquipmentFilter
	Available *reservation.Window
}

// Create registers a new item and records its creation
func (s *Service) Create(ctx context.Context, req models.CreateEquipmentRequest, actorID string) (models.Equipment, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return models.Equipment{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	eq := models.Equipment{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(req.Name),
		Code:            strings.TrimSpace(req.Code),
		Brand:           req.Brand,
		Model:           req.Model,
		SerialNumber:    req.SerialNumber,
		RentalPrice:     req.RentalPrice,
		InvestmentPrice: req.InvestmentPrice,
		Weight:          req.Weight,
		Ownership:       models.OwnershipKind(req.Ownership),
		CategoryID:      req.CategoryID,
		Location:        strings.TrimSpace(req.Location),
		ScheduledUses:   []models.ReservationWindow{},
		ServiceState:    models.ServiceStateAvailable,
	}
	if eq.Ownership == "" {
		eq.Ownership = models.OwnershipOwned
	}
	if eq.Location == "" {
		eq.Location = models.DefaultLocation
	}

	created, err := s.store.CreateEquipment(ctx, eq)
	if err != nil {
		return models.Equipment{}, fmt.Errorf("create equipment %s: %w", eq.Code, err)
	}
	s.history.Record(ctx, models.HistoryEntry{
		EquipmentID: created.ID,
		Action:      models.HistoryCreation,
		ActorID:     actorID,
		To:          created.Location,
		Note:        fmt.Sprintf("registered %s (%s)", created.Name, created.Code),
	})
	s.logger.Info("equipment created", zap.String("equipment_id", created.ID), zap.String("code", created.Code))
	return created, nil
}

// Get returns one item with its service state computed for now
func (s *Service) Get(ctx context.Context, id string) (models.Equipment, error) {
	eq, err := s.store.GetEquipment(ctx, id)
	if err != nil {
		return models.Equipment{}, fmt.Errorf("get equipment %s: %w", id, err)
	}
	eq.ServiceState = s.resolver.ComputeServiceState(eq, s.now())
	return eq, nil
}

// FindByCode looks an item up by its inventory code
func (s *Service) FindByCode(ctx context.Context, code string) (models.Equipment, error) {
	items, _, err := s.store.ListEquipment(ctx, store.EquipmentFilter{Code: code, Limit: 1})
	if err != nil {
		return models.Equipment{}, fmt.Errorf("find equipment by code %s: %w", code, err)
	}
	if len(items) == 0 {
		return models.Equipment{}, fmt.Errorf("find equipment by code %s: %w", code, store.ErrNotFound)
	}
	return items[0], nil
}

// List returns a page of items and the total match count
func (s *Service) List(ctx context.Context, q ListQuery) ([]models.Equipment, int, error) {
	now := s.now()
	if q.Available == nil {
		items, total, err := s.store.ListEquipment(ctx, q.Filter)
		if err != nil {
			return nil, 0, fmt.Errorf("list equipment: %w", err)
		}
		for i := range items {
			items[i].ServiceState = s.resolver.ComputeServiceState(items[i], now)
		}
		return items, total, nil
	}

	if err := q.Available.Validate(); err != nil {
		return nil, 0, err
	}
	// availability is derived, so filter before paginating
	all := q.Filter
	all.Limit, all.Offset = 0, 0
	items, _, err := s.store.ListEquipment(ctx, all)
	if err != nil {
		return nil, 0, fmt.Errorf("list equipment: %w", err)
	}
	free := make([]models.Equipment, 0, len(items))
	for _, eq := range items {
		if s.resolver.IsFree(eq, *q.Available) {
			eq.ServiceState = s.resolver.ComputeServiceState(eq, now)
			free = append(free, eq)
		}
	}
	total := len(free)
	start := min(q.Filter.Offset, total)
	end := total
	if q.Filter.Limit > 0 {
		end = min(start+q.Filter.Limit, total)
	}
	return free[start:end], total, nil
}

// Update patches static attributes and records one edit entry listing the changed fields
func (s *Service) Update(ctx context.Context, id string, req models.UpdateEquipmentRequest, actorID string) (models.Equipment, error) {
	if req.IsEmpty() {
		return models.Equipment{}, ErrNothingToUpdate
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return models.Equipment{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.mutate(ctx, id, func(eq *models.Equipment) (*models.HistoryEntry, error) {
		changes := applyPatch(eq, req)
		if len(changes) == 0 {
			return nil, nil
		}
		return &models.HistoryEntry{
			Action:  models.HistoryEdit,
			ActorID: actorID,
			Changes: changes,
		}, nil
	})
}

// Relocate moves an item and records the move
func (s *Service) Relocate(ctx context.Context, id string, req models.RelocateRequest, actorID string) (models.Equipment, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return models.Equipment{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	location := strings.TrimSpace(req.Location)
	return s.mutate(ctx, id, func(eq *models.Equipment) (*models.HistoryEntry, error) {
		if eq.Location == location {
			return nil, nil
		}
		from := eq.Location
		eq.Location = location
		return &models.HistoryEntry{
			Action:  models.HistoryRelocation,
			ActorID: actorID,
			From:    from,
			To:      location,
		}, nil
	})
}

// SetOutOfService sets or clears the manual flag. It is refused while the item is in an event.
func (s *Service) SetOutOfService(ctx context.Context, id string, req models.OutOfServiceRequest, actorID string) (models.Equipment, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return models.Equipment{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.mutate(ctx, id, func(eq *models.Equipment) (*models.HistoryEntry, error) {
		now := s.now()
		before := s.resolver.ComputeServiceState(*eq, now)
		if before == models.ServiceStateInEvent {
			return nil, ErrInEvent
		}
		next := models.OutOfService{IsOut: req.IsOut}
		if req.IsOut {
			next.Reason = req.Reason
			next.Details = req.Details
		}
		if eq.OutOfService == next {
			return nil, nil
		}
		eq.OutOfService = next
		eq.ServiceState = s.resolver.ComputeServiceState(*eq, now)
		return &models.HistoryEntry{
			Action:  models.HistoryStateChange,
			ActorID: actorID,
			From:    string(before),
			To:      string(eq.ServiceState),
			Note:    next.Reason,
		}, nil
	})
}

// Delete removes an item that no event holds
func (s *Service) Delete(ctx context.Context, id string) error {
	eq, err := s.store.GetEquipment(ctx, id)
	if err != nil {
		return fmt.Errorf("get equipment %s: %w", id, err)
	}
	if len(eq.ScheduledUses) > 0 {
		return ErrEquipmentInUse
	}
	if err := s.store.DeleteEquipment(ctx, id, eq.Version); err != nil {
		return fmt.Errorf("delete equipment %s: %w", id, err)
	}
	s.logger.Info("equipment deleted", zap.String("equipment_id", id))
	return nil
}

// mutate runs fn against a fresh copy of the item and writes it back with a
// version check, retrying on conflicts. fn returning a nil entry means no change.
func (s *Service) mutate(ctx context.Context, id string, fn func(eq *models.Equipment) (*models.HistoryEntry, error)) (models.Equipment, error) {
	var entry *models.HistoryEntry
	backoff := retry.WithMaxRetries(updateAttempts-1, retry.NewExponential(updateRetryBase))

	saved, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (models.Equipment, error) {
		entry = nil
		current, err := s.store.GetEquipment(ctx, id)
		if err != nil {
			return current, err
		}
		next := current.Clone()
		e, err := fn(&next)
		if err != nil {
			return current, err
		}
		if e == nil {
			return current, nil
		}
		updated, err := s.store.UpdateEquipment(ctx, next)
		if errors.Is(err, store.ErrVersionConflict) {
			return updated, retry.RetryableError(err)
		}
		if err != nil {
			return updated, err
		}
		entry = e
		return updated, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return models.Equipment{}, fmt.Errorf("update equipment %s: %w: %w", id, reservation.ErrConcurrentModification, err)
		}
		return models.Equipment{}, fmt.Errorf("update equipment %s: %w", id, err)
	}

	if entry != nil {
		entry.EquipmentID = id
		s.history.Record(ctx, *entry)
	}
	saved.ServiceState = s.resolver.ComputeServiceState(saved, s.now())
	return saved, nil
}

func applyPatch(eq *models.Equipment, req models.UpdateEquipmentRequest) []models.FieldChange {
	var changes []models.FieldChange
	setString := func(field string, dst *string, v *string) {
		if v == nil {
			return
		}
		nv := strings.TrimSpace(*v)
		if nv == *dst {
			return
		}
		changes = append(changes, models.FieldChange{Field: field, From: *dst, To: nv})
		*dst = nv
	}
	setFloat := func(field string, dst *float64, v *float64) {
		if v == nil || *v == *dst {
			return
		}
		changes = append(changes, models.FieldChange{Field: field, From: *dst, To: *v})
		*dst = *v
	}

	setString("name", &eq.Name, req.Name)
	setString("code", &eq.Code, req.Code)
	setString("brand", &eq.Brand, req.Brand)
	setString("model", &eq.Model, req.Model)
	setString("serial_number", &eq.SerialNumber, req.SerialNumber)
	setString("category_id", &eq.CategoryID, req.CategoryID)
	setFloat("rental_price", &eq.RentalPrice, req.RentalPrice)
	setFloat("investment_price", &eq.InvestmentPrice, req.InvestmentPrice)
	setFloat("weight", &eq.Weight, req.Weight)
	if req.Ownership != nil && models.OwnershipKind(*req.Ownership) != eq.Ownership {
		changes = append(changes, models.FieldChange{Field: "ownership", From: string(eq.Ownership), To: *req.Ownership})
		eq.Ownership = models.OwnershipKind(*req.Ownership)
	}
	return changes
}
