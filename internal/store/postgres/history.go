package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/store"
)

const historyTable = "equipment_history"

// historyPayload is the action specific part of an entry, stored as JSONB
type historyPayload struct {
	Changes []models.FieldChange   `json:"changes,omitempty"`
	Event   *models.EventReference `json:"event,omitempty"`
	From    string                 `json:"from,omitempty"`
	To      string                 `json:"to,omitempty"`
	Note    string                 `json:"note,omitempty"`
}

func (s *Store) AppendHistory(ctx context.Context, entry models.HistoryEntry) error {
	payload, err := json.Marshal(historyPayload{
		Changes: entry.Changes,
		Event:   entry.Event,
		From:    entry.From,
		To:      entry.To,
		Note:    entry.Note,
	})
	if err != nil {
		return fmt.Errorf("encode history payload: %w", err)
	}
	query, args, err := psql.Insert(historyTable).
		Columns("id", "equipment_id", "action", "occurred_at", "actor_id", "payload").
		Values(entry.ID, entry.EquipmentID, string(entry.Action), entry.Date, entry.ActorID, payload).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert history: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, equipmentID string, filter store.HistoryFilter) ([]models.HistoryEntry, error) {
	builder := psql.Select("id", "equipment_id", "action", "occurred_at", "actor_id", "payload").
		From(historyTable).
		Where(sq.Eq{"equipment_id": equipmentID}).
		OrderBy("occurred_at DESC", "id DESC")
	if len(filter.Actions) > 0 {
		actions := make([]string, 0, len(filter.Actions))
		for _, a := range filter.Actions {
			actions = append(actions, string(a))
		}
		builder = builder.Where(sq.Expr("action = ANY(?::text[])", pq.Array(actions)))
	}
	if filter.Since != nil {
		builder = builder.Where(sq.GtOrEq{"occurred_at": *filter.Since})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []models.HistoryEntry{}
	for rows.Next() {
		var (
			h       models.HistoryEntry
			action  string
			payload []byte
		)
		if err := rows.Scan(&h.ID, &h.EquipmentID, &action, &h.Date, &h.ActorID, &payload); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		var p historyPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode history payload: %w", err)
		}
		h.Action = models.HistoryAction(action)
		h.Changes, h.Event, h.From, h.To, h.Note = p.Changes, p.Event, p.From, p.To, p.Note
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history rows: %w", err)
	}
	return out, nil
}
