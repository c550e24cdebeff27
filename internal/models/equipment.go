package models

import "time"

// DefaultLocation is where equipment lives when no event holds it.
const DefaultLocation = "Deposito"

// ServiceState is the derived display state of an equipment item
type ServiceState string

const (
	ServiceStateAvailable    ServiceState = "available"
	ServiceStateInEvent      ServiceState = "in_event"
	ServiceStateOutOfService ServiceState = "out_of_service"
)

// OwnershipKind tells whether the company owns the item or rents it from a third party
type OwnershipKind string

const (
	OwnershipOwned  OwnershipKind = "owned"
	OwnershipRented OwnershipKind = "rented"
)

// IsValid reports whether k is a known ownership kind
func (k OwnershipKind) IsValid() bool {
	return k == OwnershipOwned || k == OwnershipRented
}

// ReservationWindow is one event's claim on one equipment item.
// StartDate and EndDate are calendar days, both inclusive.
type ReservationWindow struct {
	EventID   string    `json:"event_id"`
	EventName string    `json:"event_name"`
	EventType string    `json:"event_type,omitempty"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Location  string    `json:"location,omitempty"`
}

// OutOfService is the manual repair/maintenance flag set by staff
type OutOfService struct {
	IsOut   bool   `json:"is_out"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

// Equipment is one inventory item in the rental pool
type Equipment struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Code            string              `json:"code"`
	Brand           string              `json:"brand,omitempty"`
	Model           string              `json:"model,omitempty"`
	SerialNumber    string              `json:"serial_number,omitempty"`
	RentalPrice     float64             `json:"rental_price"`
	InvestmentPrice float64             `json:"investment_price"`
	Weight          float64             `json:"weight"`
	Ownership       OwnershipKind       `json:"ownership"`
	CategoryID      string              `json:"category_id,omitempty"`
	Location        string              `json:"location"`
	OutOfService    OutOfService        `json:"out_of_service"`
	ScheduledUses   []ReservationWindow `json:"scheduled_uses"`
	ServiceState    ServiceState        `json:"service_state"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Clone returns a copy of e that shares no slices with it
func (e Equipment) Clone() Equipment {
	out := e
	if e.ScheduledUses != nil {
		out.ScheduledUses = make([]ReservationWindow, len(e.ScheduledUses))
		copy(out.ScheduledUses, e.ScheduledUses)
	}
	return out
}

// WindowFor returns the window this item holds for eventID, if any
func (e Equipment) WindowFor(eventID string) (ReservationWindow, bool) {
	for _, w := range e.ScheduledUses {
		if w.EventID == eventID {
			return w, true
		}
	}
	return ReservationWindow{}, false
}

// CreateEquipmentRequest represents the request body for equipment intake
type CreateEquipmentRequest struct {
	Name            string  `json:"name" validate:"required,max=255"`
	Code            string  `json:"code" validate:"required,max=64"`
	Brand           string  `json:"brand,omitempty" validate:"max=255"`
	Model           string  `json:"model,omitempty" validate:"max=255"`
	SerialNumber    string  `json:"serial_number,omitempty" validate:"max=255"`
	RentalPrice     float64 `json:"rental_price" validate:"gte=0"`
	InvestmentPrice float64 `json:"investment_price" validate:"gte=0"`
	Weight          float64 `json:"weight" validate:"gte=0"`
	Ownership       string  `json:"ownership,omitempty" validate:"omitempty,oneof=owned rented"`
	CategoryID      string  `json:"category_id,omitempty"`
	Location        string  `json:"location,omitempty"`
}

// UpdateEquipmentRequest represents a partial update of static attributes.
// Location and out-of-service have their own endpoints because they carry history of their own.
type UpdateEquipmentRequest struct {
	Name            *string  `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Code            *string  `json:"code,omitempty" validate:"omitempty,min=1,max=64"`
	Brand           *string  `json:"brand,omitempty"`
	Model           *string  `json:"model,omitempty"`
	SerialNumber    *string  `json:"serial_number,omitempty"`
	RentalPrice     *float64 `json:"rental_price,omitempty" validate:"omitempty,gte=0"`
	InvestmentPrice *float64 `json:"investment_price,omitempty" validate:"omitempty,gte=0"`
	Weight          *float64 `json:"weight,omitempty" validate:"omitempty,gte=0"`
	Ownership       *string  `json:"ownership,omitempty" validate:"omitempty,oneof=owned rented"`
	CategoryID      *string  `json:"category_id,omitempty"`
}

// IsEmpty reports whether the request changes nothing
func (r UpdateEquipmentRequest) IsEmpty() bool {
	return r.Name == nil && r.Code == nil && r.Brand == nil && r.Model == nil &&
		r.SerialNumber == nil && r.RentalPrice == nil && r.InvestmentPrice == nil &&
		r.Weight == nil && r.Ownership == nil && r.CategoryID == nil
}

// RelocateRequest moves an item to a new physical location
type RelocateRequest struct {
	Location string `json:"location" validate:"required,max=255"`
}

// OutOfServiceRequest sets or clears the manual out-of-service flag
type OutOfServiceRequest struct {
	IsOut   bool   `json:"is_out"`
	Reason  string `json:"reason,omitempty" validate:"required_if=IsOut true,max=255"`
	Details string `json:"details,omitempty"`
}
