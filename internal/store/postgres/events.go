package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/store"
)

const (
	eventsTable  = "events"
	eventsFields = "id, name, type, location, start_date, end_date, equipment, version, created_at, updated_at"
)

func scanEvent(row pgx.Row) (models.Event, error) {
	var (
		ev        models.Event
		equipment []byte
	)
	err := row.Scan(&ev.ID, &ev.Name, &ev.Type, &ev.Location, &ev.StartDate, &ev.EndDate,
		&equipment, &ev.Version, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Event{}, store.ErrNotFound
		}
		return models.Event{}, fmt.Errorf("scan event: %w", err)
	}
	if err := json.Unmarshal(equipment, &ev.Equipment); err != nil {
		return models.Event{}, fmt.Errorf("decode event equipment: %w", err)
	}
	if ev.Equipment == nil {
		ev.Equipment = []models.EventEquipment{}
	}
	return ev, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (models.Event, error) {
	query, args, err := psql.Select(eventsFields).From(eventsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return models.Event{}, fmt.Errorf("build select event: %w", err)
	}
	return scanEvent(s.pool.QueryRow(ctx, query, args...))
}

func (s *Store) SaveEvent(ctx context.Context, ev models.Event) (models.Event, error) {
	links := ev.Equipment
	if links == nil {
		links = []models.EventEquipment{}
	}
	equipment, err := json.Marshal(links)
	if err != nil {
		return models.Event{}, fmt.Errorf("encode event equipment: %w", err)
	}

	var query string
	var args []interface{}
	if ev.Version == 0 {
		query, args, err = psql.Insert(eventsTable).
			Columns("id", "name", "type", "location", "start_date", "end_date", "equipment").
			Values(ev.ID, ev.Name, ev.Type, ev.Location, ev.StartDate, ev.EndDate, equipment).
			Suffix("RETURNING " + eventsFields).
			ToSql()
	} else {
		query, args, err = psql.Update(eventsTable).
			SetMap(map[string]interface{}{
				"name":       ev.Name,
				"type":       ev.Type,
				"location":   ev.Location,
				"start_date": ev.StartDate,
				"end_date":   ev.EndDate,
				"equipment":  equipment,
				"version":    sq.Expr("version + 1"),
				"updated_at": sq.Expr("now()"),
			}).
			Where(sq.Eq{"id": ev.ID, "version": ev.Version}).
			Suffix("RETURNING " + eventsFields).
			ToSql()
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("build save event: %w", err)
	}

	saved, err := scanEvent(s.pool.QueryRow(ctx, query, args...))
	switch {
	case ev.Version == 0 && isUniqueViolation(err):
		return models.Event{}, store.ErrVersionConflict
	case ev.Version != 0 && errors.Is(err, store.ErrNotFound):
		return models.Event{}, s.missOrConflict(ctx, eventsTable, ev.ID)
	case err != nil:
		return models.Event{}, err
	}
	return saved, nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string, version int64) error {
	query, args, err := psql.Delete(eventsTable).Where(sq.Eq{"id": id, "version": version}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete event: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, eventsTable, id)
	}
	return nil
}
