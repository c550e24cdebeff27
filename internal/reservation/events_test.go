package reservation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/store"
)

func event(id string, ids ...string) models.Event {
	return models.Event{
		ID:        id,
		Name:      "Gala " + id,
		Location:  "Teatro",
		StartDate: addDays(0),
		EndDate:   addDays(1),
		Equipment: links(ids...),
	}
}

// assertConsistent checks that the event list and the item windows describe
// the same relationship
func assertConsistent(t *testing.T, f *fixture, eventIDs []string, equipmentIDs []string) {
	t.Helper()
	ctx := context.Background()
	for _, evID := range eventIDs {
		listed := map[string]bool{}
		if ev, err := f.mem.GetEvent(ctx, evID); err == nil {
			for _, id := range ev.EquipmentIDs() {
				listed[id] = true
			}
		}
		for _, eqID := range equipmentIDs {
			_, held := f.get(t, eqID).WindowFor(evID)
			assert.Equal(t, listed[eqID], held, "event %s / equipment %s", evID, eqID)
		}
	}
	for _, eqID := range equipmentIDs {
		seen := map[string]bool{}
		for _, w := range f.get(t, eqID).ScheduledUses {
			assert.False(t, seen[w.EventID], "duplicate window for %s on %s", w.EventID, eqID)
			seen[w.EventID] = true
		}
	}
}

func TestSaveEventCreatesAndFillsLinks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "a", "b")

	in := event("", "a", "b", "a", "ghost")
	in.Equipment[1].Price = 55
	saved, warnings, err := f.svc.SaveEvent(ctx, in, "staff-1")
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, int64(1), saved.Version)
	require.Len(t, warnings, 1)
	assert.Equal(t, "ghost", warnings[0].EquipmentID)

	require.Equal(t, []string{"a", "b"}, saved.EquipmentIDs())
	assert.Equal(t, "CODE-a", saved.Equipment[0].Code)
	assert.Equal(t, "Item a", saved.Equipment[0].Name)
	assert.Equal(t, 100.0, saved.Equipment[0].Price)
	assert.Equal(t, 1, saved.Equipment[0].Quantity)
	assert.Equal(t, 55.0, saved.Equipment[1].Price, "caller price is kept")

	assertConsistent(t, f, []string{saved.ID}, []string{"a", "b"})
}

func TestSaveEventWithUnknownIDCreatesIt(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a")

	saved, _, err := f.svc.SaveEvent(context.Background(), event("imported-1", "a"), "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "imported-1", saved.ID)
	assertConsistent(t, f, []string{"imported-1"}, []string{"a"})
}

func TestSaveEventKeepsBothViewsConsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	items := []string{"a", "b", "c", "d"}
	f.seed(t, items...)

	e1, _, err := f.svc.SaveEvent(ctx, event("", "a", "b"), "staff-1")
	require.NoError(t, err)
	e2, _, err := f.svc.SaveEvent(ctx, event("", "b", "c"), "staff-1")
	require.NoError(t, err)
	events := []string{e1.ID, e2.ID}
	assertConsistent(t, f, events, items)

	edit := event(e1.ID, "b", "d")
	edit.StartDate, edit.EndDate = addDays(4), addDays(6)
	_, _, err = f.svc.SaveEvent(ctx, edit, "staff-1")
	require.NoError(t, err)
	assertConsistent(t, f, events, items)

	w, ok := f.get(t, "b").WindowFor(e1.ID)
	require.True(t, ok)
	assert.Equal(t, addDays(4), w.StartDate)

	require.NoError(t, f.svc.DeleteEvent(ctx, e2.ID, "staff-1"))
	assertConsistent(t, f, events, items)
	_, err = f.svc.GetEvent(ctx, e2.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, f.svc.DeleteEvent(ctx, e1.ID, "staff-1"))
	for _, id := range items {
		assert.Empty(t, f.get(t, id).ScheduledUses)
	}
}

func TestSaveEventInvalidWindow(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a")

	in := event("", "a")
	in.StartDate, in.EndDate = addDays(3), addDays(2)
	_, _, err := f.svc.SaveEvent(context.Background(), in, "staff-1")
	assert.ErrorIs(t, err, ErrInvalidWindow)
	assert.Empty(t, f.get(t, "a").ScheduledUses)
}

func TestDeleteUnknownEvent(t *testing.T) {
	f := newFixture(t)
	err := f.svc.DeleteEvent(context.Background(), "nope", "staff-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// racingEvents lets a competing edit land just before the first update it sees
type racingEvents struct {
	*store.Memory
	once   sync.Once
	winner models.Event
}

func (r *racingEvents) SaveEvent(ctx context.Context, ev models.Event) (models.Event, error) {
	if ev.Version > 0 {
		r.once.Do(func() {
			w := r.winner
			w.Version = ev.Version
			_, _ = r.Memory.SaveEvent(ctx, w)
		})
	}
	return r.Memory.SaveEvent(ctx, ev)
}

func TestLosingEventSaveIsCompensated(t *testing.T) {
	ctx := context.Background()
	var racing *racingEvents
	f := newFixture(t, func(o *fixtureOptions) {
		racing = &racingEvents{Memory: o.events.(*store.Memory)}
		o.events = racing
	})
	f.seed(t, "a", "b", "c")

	created, _, err := f.svc.SaveEvent(ctx, event("", "a"), "staff-1")
	require.NoError(t, err)

	// the competing edit keeps a and adds c; ours swaps a for b
	racing.winner = event(created.ID, "a", "c")
	_, _, err = f.svc.SaveEvent(ctx, event(created.ID, "b"), "staff-2")
	require.ErrorIs(t, err, ErrConcurrentModification)

	stored, err := f.mem.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	ids := stored.EquipmentIDs()
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "c"}, ids)
	assertConsistent(t, f, []string{created.ID}, []string{"a", "b", "c"})
}

// brokenItemStore rejects every write to one item
type brokenItemStore struct {
	*store.Memory
	broken string
}

func (b *brokenItemStore) UpdateEquipment(ctx context.Context, eq models.Equipment) (models.Equipment, error) {
	if eq.ID == b.broken {
		return models.Equipment{}, errors.New("disk full")
	}
	return b.Memory.UpdateEquipment(ctx, eq)
}

func TestFailedCreateReleasesClaimedItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *fixtureOptions) {
		o.equipment = &brokenItemStore{Memory: o.equipment.(*store.Memory), broken: "b"}
	})
	f.seed(t, "a", "b")

	for i := 0; i < 2; i++ {
		_, _, err := f.svc.SaveEvent(ctx, event("", "a", "b"), "staff-1")
		require.Error(t, err)
		var itemErr *ItemError
		require.ErrorAs(t, err, &itemErr)
		assert.Equal(t, "b", itemErr.EquipmentID)
	}

	a := f.get(t, "a")
	assert.Empty(t, a.ScheduledUses, "no window survives for an unsaved event")
	assert.Equal(t, models.DefaultLocation, a.Location)
	state, err := f.svc.GetServiceState(ctx, "a", today)
	require.NoError(t, err)
	assert.Equal(t, models.ServiceStateAvailable, state)
}

func TestFailedCreateWithGivenIDCanBeRetried(t *testing.T) {
	ctx := context.Background()
	broken := &brokenItemStore{broken: "b"}
	f := newFixture(t, func(o *fixtureOptions) {
		broken.Memory = o.equipment.(*store.Memory)
		o.equipment = broken
	})
	f.seed(t, "a", "b")

	_, _, err := f.svc.SaveEvent(ctx, event("gala", "a", "b"), "staff-1")
	require.Error(t, err)
	assertConsistent(t, f, []string{"gala"}, []string{"a", "b"})

	broken.broken = ""
	saved, _, err := f.svc.SaveEvent(ctx, event("gala", "a", "b"), "staff-1")
	require.NoError(t, err)
	assert.Len(t, saved.Equipment, 2)
	assertConsistent(t, f, []string{"gala"}, []string{"a", "b"})
}

func TestFailedEditRestoresStoredEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *fixtureOptions) {
		o.equipment = &brokenItemStore{Memory: o.equipment.(*store.Memory), broken: "b"}
	})
	f.seed(t, "a", "b")

	created, _, err := f.svc.SaveEvent(ctx, event("", "a"), "staff-1")
	require.NoError(t, err)

	moved := event(created.ID, "a", "b")
	moved.StartDate = addDays(3)
	moved.EndDate = addDays(4)
	_, _, err = f.svc.SaveEvent(ctx, moved, "staff-1")
	require.Error(t, err)

	w, ok := f.get(t, "a").WindowFor(created.ID)
	require.True(t, ok)
	assert.Equal(t, addDays(0), w.StartDate, "window follows the stored event")
	assert.Equal(t, addDays(1), w.EndDate)
	assertConsistent(t, f, []string{created.ID}, []string{"a", "b"})
}

// editBeforeDelete lands a competing edit just before the delete
type editBeforeDelete struct {
	*store.Memory
	winner models.Event
}

func (e *editBeforeDelete) DeleteEvent(ctx context.Context, id string, version int64) error {
	w := e.winner
	w.Version = version
	if _, err := e.Memory.SaveEvent(ctx, w); err != nil {
		return err
	}
	return e.Memory.DeleteEvent(ctx, id, version)
}

func TestLosingDeleteIsCompensated(t *testing.T) {
	ctx := context.Background()
	var racing *editBeforeDelete
	f := newFixture(t, func(o *fixtureOptions) {
		racing = &editBeforeDelete{Memory: o.events.(*store.Memory)}
		o.events = racing
	})
	f.seed(t, "a", "b", "c")

	created, _, err := f.svc.SaveEvent(ctx, event("", "a", "b"), "staff-1")
	require.NoError(t, err)

	racing.winner = event(created.ID, "b", "c")
	err = f.svc.DeleteEvent(ctx, created.ID, "staff-2")
	require.ErrorIs(t, err, ErrConcurrentModification)

	stored, err := f.mem.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	ids := stored.EquipmentIDs()
	sort.Strings(ids)
	assert.Equal(t, []string{"b", "c"}, ids)
	assertConsistent(t, f, []string{created.ID}, []string{"a", "b", "c"})
}
