package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/reservation"
	"stage-inventory-api/internal/store"
)

var now = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

type historySink struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
}

func (h *historySink) Record(_ context.Context, e models.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
}

func (h *historySink) actions() []models.HistoryAction {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.HistoryAction, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, e.Action)
	}
	return out
}

func (h *historySink) last() models.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[len(h.entries)-1]
}

func newService(t *testing.T) (*Service, *store.Memory, *historySink) {
	t.Helper()
	mem := store.NewMemory()
	sink := &historySink{}
	svc := NewService(mem, sink, Options{
		Resolver: reservation.NewResolver(time.UTC),
		Now:      func() time.Time { return now },
	})
	return svc, mem, sink
}

func create(t *testing.T, svc *Service, code, name string) models.Equipment {
	t.Helper()
	eq, err := svc.Create(context.Background(), models.CreateEquipmentRequest{Code: code, Name: name, CategoryID: "lighting"}, "staff-1")
	require.NoError(t, err)
	return eq
}

func reserve(t *testing.T, mem *store.Memory, id string, w models.ReservationWindow) {
	t.Helper()
	eq, err := mem.GetEquipment(context.Background(), id)
	require.NoError(t, err)
	eq.ScheduledUses = append(eq.ScheduledUses, w)
	_, err = mem.UpdateEquipment(context.Background(), eq)
	require.NoError(t, err)
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestCreate(t *testing.T) {
	svc, _, sink := newService(t)

	eq := create(t, svc, " MH-01 ", "Moving head")
	assert.NotEmpty(t, eq.ID)
	assert.Equal(t, "MH-01", eq.Code)
	assert.Equal(t, models.DefaultLocation, eq.Location)
	assert.Equal(t, models.OwnershipOwned, eq.Ownership)
	assert.Equal(t, models.ServiceStateAvailable, eq.ServiceState)
	assert.Equal(t, []models.HistoryAction{models.HistoryCreation}, sink.actions())
	assert.Equal(t, "staff-1", sink.last().ActorID)
	assert.Equal(t, eq.ID, sink.last().EquipmentID)

	_, err := svc.Create(context.Background(), models.CreateEquipmentRequest{Code: "mh-01", Name: "Duplicate"}, "staff-1")
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	_, err = svc.Create(context.Background(), models.CreateEquipmentRequest{Code: "X"}, "staff-1")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(context.Background(), models.CreateEquipmentRequest{Code: "Y", Name: "Y", Ownership: "borrowed"}, "staff-1")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateRecordsFieldChanges(t *testing.T) {
	svc, _, sink := newService(t)
	eq := create(t, svc, "PAR-1", "Par LED")

	brand := "Chauvet"
	price := 25.5
	name := "Par LED"
	updated, err := svc.Update(context.Background(), eq.ID, models.UpdateEquipmentRequest{
		Brand:       &brand,
		RentalPrice: &price,
		Name:        &name,
	}, "staff-2")
	require.NoError(t, err)
	assert.Equal(t, "Chauvet", updated.Brand)
	assert.Equal(t, 25.5, updated.RentalPrice)
	assert.Equal(t, int64(2), updated.Version)

	entry := sink.last()
	assert.Equal(t, models.HistoryEdit, entry.Action)
	assert.Equal(t, "staff-2", entry.ActorID)
	assert.ElementsMatch(t, []models.FieldChange{
		{Field: "brand", From: "", To: "Chauvet"},
		{Field: "rental_price", From: 0.0, To: 25.5},
	}, entry.Changes, "unchanged name is not listed")

	// same values again: nothing written, nothing recorded
	again, err := svc.Update(context.Background(), eq.ID, models.UpdateEquipmentRequest{Brand: &brand}, "staff-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version)
	assert.Len(t, sink.actions(), 2)

	_, err = svc.Update(context.Background(), eq.ID, models.UpdateEquipmentRequest{}, "staff-2")
	assert.ErrorIs(t, err, ErrNothingToUpdate)

	_, err = svc.Update(context.Background(), "nope", models.UpdateEquipmentRequest{Brand: &brand}, "staff-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRelocate(t *testing.T) {
	svc, _, sink := newService(t)
	eq := create(t, svc, "TR-1", "Truss")

	moved, err := svc.Relocate(context.Background(), eq.ID, models.RelocateRequest{Location: "Galpon 2"}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "Galpon 2", moved.Location)

	entry := sink.last()
	assert.Equal(t, models.HistoryRelocation, entry.Action)
	assert.Equal(t, models.DefaultLocation, entry.From)
	assert.Equal(t, "Galpon 2", entry.To)

	_, err = svc.Relocate(context.Background(), eq.ID, models.RelocateRequest{}, "staff-1")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSetOutOfService(t *testing.T) {
	svc, mem, sink := newService(t)
	eq := create(t, svc, "AMP-1", "Amplifier")

	out, err := svc.SetOutOfService(context.Background(), eq.ID, models.OutOfServiceRequest{IsOut: true, Reason: "blown channel"}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.ServiceStateOutOfService, out.ServiceState)
	assert.Equal(t, "blown channel", out.OutOfService.Reason)

	entry := sink.last()
	assert.Equal(t, models.HistoryStateChange, entry.Action)
	assert.Equal(t, string(models.ServiceStateAvailable), entry.From)
	assert.Equal(t, string(models.ServiceStateOutOfService), entry.To)

	_, err = svc.SetOutOfService(context.Background(), eq.ID, models.OutOfServiceRequest{IsOut: true}, "staff-1")
	assert.ErrorIs(t, err, ErrInvalidInput, "a reason is required")

	back, err := svc.SetOutOfService(context.Background(), eq.ID, models.OutOfServiceRequest{IsOut: false}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.ServiceStateAvailable, back.ServiceState)

	reserve(t, mem, eq.ID, models.ReservationWindow{EventID: "e1", EventName: "Gala", StartDate: day(9), EndDate: day(11)})
	_, err = svc.SetOutOfService(context.Background(), eq.ID, models.OutOfServiceRequest{IsOut: true, Reason: "repair"}, "staff-1")
	assert.ErrorIs(t, err, ErrInEvent)
}

func TestDelete(t *testing.T) {
	svc, mem, _ := newService(t)
	busy := create(t, svc, "LED-1", "LED wall")
	free := create(t, svc, "LED-2", "LED wall spare")

	// a future reservation still blocks removal
	reserve(t, mem, busy.ID, models.ReservationWindow{EventID: "e1", StartDate: day(20), EndDate: day(21)})
	assert.ErrorIs(t, svc.Delete(context.Background(), busy.ID), ErrEquipmentInUse)

	require.NoError(t, svc.Delete(context.Background(), free.ID))
	_, err := svc.Get(context.Background(), free.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(context.Background(), "nope"), store.ErrNotFound)
}

func TestListWithAvailability(t *testing.T) {
	svc, mem, _ := newService(t)
	a := create(t, svc, "A-1", "Alpha")
	b := create(t, svc, "B-1", "Bravo")
	create(t, svc, "C-1", "Charlie")
	reserve(t, mem, a.ID, models.ReservationWindow{EventID: "e1", StartDate: day(10), EndDate: day(12)})
	reserve(t, mem, b.ID, models.ReservationWindow{EventID: "e2", StartDate: day(15), EndDate: day(16)})

	items, total, err := svc.List(context.Background(), ListQuery{Filter: store.EquipmentFilter{Sort: "code"}})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, models.ServiceStateInEvent, items[0].ServiceState)

	items, total, err = svc.List(context.Background(), ListQuery{
		Filter:    store.EquipmentFilter{Sort: "code"},
		Available: &reservation.Window{Start: day(11), End: day(15)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "C-1", items[0].Code)

	items, total, err = svc.List(context.Background(), ListQuery{
		Filter:    store.EquipmentFilter{Sort: "code", Limit: 1, Offset: 1},
		Available: &reservation.Window{Start: day(11), End: day(15), ExcludeEventID: "e1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 1)
	assert.Equal(t, "C-1", items[0].Code)

	_, _, err = svc.List(context.Background(), ListQuery{Available: &reservation.Window{Start: day(15), End: day(11)}})
	assert.ErrorIs(t, err, reservation.ErrInvalidWindow)
}

func TestFindByCode(t *testing.T) {
	svc, _, _ := newService(t)
	eq := create(t, svc, "SPK-9", "Sub")

	found, err := svc.FindByCode(context.Background(), "spk-9")
	require.NoError(t, err)
	assert.Equal(t, eq.ID, found.ID)

	_, err = svc.FindByCode(context.Background(), "SPK-10")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
