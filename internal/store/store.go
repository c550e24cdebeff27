// Package store defines the persistence contracts for equipment, events and
// equipment history, plus an in-memory implementation of all three.
package store

import (
	"context"
	"errors"
	"time"

	"stage-inventory-api/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrVersionConflict is returned when a conditional write finds a newer version than the caller read.
	ErrVersionConflict = errors.New("store: version conflict")
	// ErrAlreadyExists is returned when a create collides with an existing id or code.
	ErrAlreadyExists = errors.New("store: already exists")
)

// EquipmentFilter narrows equipment listings
type EquipmentFilter struct {
	CategoryID string
	Code       string
	Query      string
	Sort       string
	Limit      int
	Offset     int
}

// EquipmentStore persists equipment records.
//
// UpdateEquipment is a compare-and-swap: it writes eq only if the stored
// version still equals eq.Version, and returns the record with its new version.
type EquipmentStore interface {
	CreateEquipment(ctx context.Context, eq models.Equipment) (models.Equipment, error)
	GetEquipment(ctx context.Context, id string) (models.Equipment, error)
	ListEquipment(ctx context.Context, filter EquipmentFilter) ([]models.Equipment, int, error)
	UpdateEquipment(ctx context.Context, eq models.Equipment) (models.Equipment, error)
	DeleteEquipment(ctx context.Context, id string, version int64) error
}

// EventStore persists the event side of the event/equipment relationship.
//
// SaveEvent creates the event when ev.Version is 0 and otherwise updates it
// only if the stored version equals ev.Version.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (models.Event, error)
	SaveEvent(ctx context.Context, ev models.Event) (models.Event, error)
	DeleteEvent(ctx context.Context, id string, version int64) error
}

// HistoryFilter narrows history listings
type HistoryFilter struct {
	Actions []models.HistoryAction
	Since   *time.Time
	Limit   int
}

// HistoryStore is append-only: there is no update or delete.
// ListHistory returns entries for one item sorted by date, newest first.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry models.HistoryEntry) error
	ListHistory(ctx context.Context, equipmentID string, filter HistoryFilter) ([]models.HistoryEntry, error)
}
