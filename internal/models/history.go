package models

import "time"

// HistoryAction classifies an audit entry
type HistoryAction string

const (
	HistoryCreation    HistoryAction = "creation"
	HistoryEdit        HistoryAction = "edit"
	HistoryEventUse    HistoryAction = "event_use"
	HistoryRelocation  HistoryAction = "relocation"
	HistoryStateChange HistoryAction = "state_change"
)

// IsValid reports whether a is a known action
func (a HistoryAction) IsValid() bool {
	switch a {
	case HistoryCreation, HistoryEdit, HistoryEventUse, HistoryRelocation, HistoryStateChange:
		return true
	}
	return false
}

// FieldChange is one edited attribute
type FieldChange struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// EventReference identifies the event an event_use entry is about
type EventReference struct {
	EventID   string    `json:"event_id"`
	EventName string    `json:"event_name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Location  string    `json:"location,omitempty"`
}

// HistoryEntry is an immutable audit record for one equipment item
type HistoryEntry struct {
	ID          string          `json:"id"`
	EquipmentID string          `json:"equipment_id"`
	Action      HistoryAction   `json:"action"`
	Date        time.Time       `json:"date"`
	ActorID     string          `json:"actor_id"`
	Changes     []FieldChange   `json:"changes,omitempty"`
	Event       *EventReference `json:"event,omitempty"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	Note        string          `json:"note,omitempty"`
}
