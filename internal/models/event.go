package models

import "time"

// EventEquipment is the event-side copy of an equipment reference.
// It is a display cache; the item's ScheduledUses is authoritative.
type EventEquipment struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Code     string  `json:"code,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Quantity int     `json:"quantity,omitempty"`
}

// Event is a booked production that may claim equipment
type Event struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Type      string           `json:"type,omitempty"`
	Location  string           `json:"location,omitempty"`
	StartDate time.Time        `json:"start_date"`
	EndDate   time.Time        `json:"end_date"`
	Equipment []EventEquipment `json:"equipment"`
	Version   int64            `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// EquipmentIDs returns the ids referenced by the event, in list order
func (e Event) EquipmentIDs() []string {
	ids := make([]string, 0, len(e.Equipment))
	for _, eq := range e.Equipment {
		ids = append(ids, eq.ID)
	}
	return ids
}

// SaveEventRequest represents the request body for creating or editing an event
type SaveEventRequest struct {
	Name      string                  `json:"name" validate:"required,max=255"`
	Type      string                  `json:"type,omitempty" validate:"max=64"`
	Location  string                  `json:"location,omitempty" validate:"max=255"`
	StartDate string                  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string                  `json:"end_date" validate:"required,datetime=2006-01-02"`
	Equipment []EventEquipmentRequest `json:"equipment" validate:"dive"`
}

// EventEquipmentRequest is one selected item in a SaveEventRequest
type EventEquipmentRequest struct {
	ID       string  `json:"id" validate:"required"`
	Name     string  `json:"name,omitempty"`
	Code     string  `json:"code,omitempty"`
	Price    float64 `json:"price,omitempty" validate:"gte=0"`
	Quantity int     `json:"quantity,omitempty" validate:"gte=0"`
}
