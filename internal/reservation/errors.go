package reservation

import (
	"errors"
	"fmt"

	"stage-inventory-api/internal/store"
)

var (
	// ErrInvalidWindow is returned when an event ends before it starts.
	// Nothing is mutated when it is returned.
	ErrInvalidWindow = errors.New("reservation: start date is after end date")
	// ErrConcurrentModification is returned when an item kept changing under
	// us for every attempt. The caller may retry the whole operation.
	ErrConcurrentModification = errors.New("reservation: concurrent modification")
	// ErrMissingEventID is returned when a request does not name its event.
	ErrMissingEventID = errors.New("reservation: event id is required")
)

// DanglingIDWarning reports an equipment id an event references but the
// inventory does not hold. The id is skipped; the save still succeeds.
type DanglingIDWarning struct {
	EquipmentID string `json:"equipment_id"`
	EventID     string `json:"event_id"`
	Message     string `json:"message"`
}

func danglingWarning(eventID, equipmentID string) DanglingIDWarning {
	return DanglingIDWarning{
		EquipmentID: equipmentID,
		EventID:     eventID,
		Message:     fmt.Sprintf("equipment %s does not exist in inventory", equipmentID),
	}
}

// ItemError carries the failure of one equipment id inside a multi-item operation
type ItemError struct {
	EquipmentID string
	Err         error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("equipment %s: %v", e.EquipmentID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// ErrorKind maps errors to a stable label for logs and metrics
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMissingEventID):
		return "validation"
	}
	return "unexpected"
}

var errRecorderClosed = errors.New("reservation: history recorder is closed")
