package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stage-inventory-api/internal/models"
)

// Memory keeps equipment, events and history in process memory.
// It honours the same version semantics as the Postgres store and hands out
// copies, so callers never alias stored slices.
type Memory struct {
	mu        sync.RWMutex
	equipment map[string]models.Equipment
	events    map[string]models.Event
	history   []models.HistoryEntry
	now       func() time.Time
}

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		equipment: make(map[string]models.Equipment),
		events:    make(map[string]models.Event),
		now:       time.Now,
	}
}

func (m *Memory) CreateEquipment(_ context.Context, eq models.Equipment) (models.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.equipment[eq.ID]; ok {
		return models.Equipment{}, ErrAlreadyExists
	}
	for _, existing := range m.equipment {
		if eq.Code != "" && strings.EqualFold(existing.Code, eq.Code) {
			return models.Equipment{}, ErrAlreadyExists
		}
	}
	now := m.now().UTC()
	eq.Version = 1
	eq.CreatedAt = now
	eq.UpdatedAt = now
	m.equipment[eq.ID] = eq.Clone()
	return eq.Clone(), nil
}

func (m *Memory) GetEquipment(_ context.Context, id string) (models.Equipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	eq, ok := m.equipment[id]
	if !ok {
		return models.Equipment{}, ErrNotFound
	}
	return eq.Clone(), nil
}

func (m *Memory) ListEquipment(_ context.Context, filter EquipmentFilter) ([]models.Equipment, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	matched := make([]models.Equipment, 0, len(m.equipment))
	for _, eq := range m.equipment {
		if filter.CategoryID != "" && eq.CategoryID != filter.CategoryID {
			continue
		}
		if filter.Code != "" && !strings.EqualFold(eq.Code, filter.Code) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(eq.Name), q) && !strings.Contains(strings.ToLower(eq.Code), q) {
			continue
		}
		matched = append(matched, eq.Clone())
	}

	sortEquipment(matched, filter.Sort)

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < total {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func sortEquipment(items []models.Equipment, key string) {
	desc := strings.HasPrefix(key, "-")
	key = strings.TrimPrefix(key, "-")
	less := func(a, b models.Equipment) bool { return a.Name < b.Name }
	switch key {
	case "code":
		less = func(a, b models.Equipment) bool { return a.Code < b.Code }
	case "created_at":
		less = func(a, b models.Equipment) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "updated_at":
		less = func(a, b models.Equipment) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	}
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}

func (m *Memory) UpdateEquipment(_ context.Context, eq models.Equipment) (models.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.equipment[eq.ID]
	if !ok {
		return models.Equipment{}, ErrNotFound
	}
	if current.Version != eq.Version {
		return models.Equipment{}, ErrVersionConflict
	}
	for id, existing := range m.equipment {
		if id != eq.ID && eq.Code != "" && strings.EqualFold(existing.Code, eq.Code) {
			return models.Equipment{}, ErrAlreadyExists
		}
	}
	eq.Version = current.Version + 1
	eq.CreatedAt = current.CreatedAt
	eq.UpdatedAt = m.now().UTC()
	m.equipment[eq.ID] = eq.Clone()
	return eq.Clone(), nil
}

func (m *Memory) DeleteEquipment(_ context.Context, id string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.equipment[id]
	if !ok {
		return ErrNotFound
	}
	if current.Version != version {
		return ErrVersionConflict
	}
	delete(m.equipment, id)
	return nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.events[id]
	if !ok {
		return models.Event{}, ErrNotFound
	}
	return cloneEvent(ev), nil
}

func (m *Memory) SaveEvent(_ context.Context, ev models.Event) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	current, exists := m.events[ev.ID]
	switch {
	case ev.Version == 0 && exists:
		return models.Event{}, ErrVersionConflict
	case ev.Version == 0:
		ev.CreatedAt = now
	case !exists:
		return models.Event{}, ErrNotFound
	case current.Version != ev.Version:
		return models.Event{}, ErrVersionConflict
	default:
		ev.CreatedAt = current.CreatedAt
	}
	ev.Version++
	ev.UpdatedAt = now
	m.events[ev.ID] = cloneEvent(ev)
	return cloneEvent(ev), nil
}

func (m *Memory) DeleteEvent(_ context.Context, id string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	if current.Version != version {
		return ErrVersionConflict
	}
	delete(m.events, id)
	return nil
}

func cloneEvent(ev models.Event) models.Event {
	out := ev
	if ev.Equipment != nil {
		out.Equipment = make([]models.EventEquipment, len(ev.Equipment))
		copy(out.Equipment, ev.Equipment)
	}
	return out
}

func (m *Memory) AppendHistory(_ context.Context, entry models.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, entry)
	return nil
}

func (m *Memory) ListHistory(_ context.Context, equipmentID string, filter HistoryFilter) ([]models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed := make(map[models.HistoryAction]bool, len(filter.Actions))
	for _, a := range filter.Actions {
		allowed[a] = true
	}

	out := []models.HistoryEntry{}
	for _, h := range m.history {
		if h.EquipmentID != equipmentID {
			continue
		}
		if len(allowed) > 0 && !allowed[h.Action] {
			continue
		}
		if filter.Since != nil && h.Date.Before(*filter.Since) {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
