package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/store"
)

const (
	equipmentTable  = "equipment"
	equipmentFields = `id, name, code, brand, model, serial_number, rental_price, investment_price,
		weight, ownership, category_id, location, out_of_service, scheduled_uses, service_state,
		version, created_at, updated_at`
)

// allowedEquipmentSort maps sort keys to columns
var allowedEquipmentSort = map[string]string{
	"id":         "id",
	"name":       "name",
	"code":       "code",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func scanEquipment(row pgx.Row) (models.Equipment, error) {
	var (
		eq       models.Equipment
		oos      []byte
		uses     []byte
		owner    string
		svcState string
	)
	err := row.Scan(
		&eq.ID, &eq.Name, &eq.Code, &eq.Brand, &eq.Model, &eq.SerialNumber,
		&eq.RentalPrice, &eq.InvestmentPrice, &eq.Weight, &owner, &eq.CategoryID,
		&eq.Location, &oos, &uses, &svcState, &eq.Version, &eq.CreatedAt, &eq.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Equipment{}, store.ErrNotFound
		}
		return models.Equipment{}, fmt.Errorf("scan equipment: %w", err)
	}
	eq.Ownership = models.OwnershipKind(owner)
	eq.ServiceState = models.ServiceState(svcState)
	if err := json.Unmarshal(oos, &eq.OutOfService); err != nil {
		return models.Equipment{}, fmt.Errorf("decode out_of_service: %w", err)
	}
	if err := json.Unmarshal(uses, &eq.ScheduledUses); err != nil {
		return models.Equipment{}, fmt.Errorf("decode scheduled_uses: %w", err)
	}
	if eq.ScheduledUses == nil {
		eq.ScheduledUses = []models.ReservationWindow{}
	}
	return eq, nil
}

func encodeReservationState(eq models.Equipment) (oos, uses []byte, err error) {
	oos, err = json.Marshal(eq.OutOfService)
	if err != nil {
		return nil, nil, fmt.Errorf("encode out_of_service: %w", err)
	}
	scheduled := eq.ScheduledUses
	if scheduled == nil {
		scheduled = []models.ReservationWindow{}
	}
	uses, err = json.Marshal(scheduled)
	if err != nil {
		return nil, nil, fmt.Errorf("encode scheduled_uses: %w", err)
	}
	return oos, uses, nil
}

func (s *Store) CreateEquipment(ctx context.Context, eq models.Equipment) (models.Equipment, error) {
	oos, uses, err := encodeReservationState(eq)
	if err != nil {
		return models.Equipment{}, err
	}
	query, args, err := psql.Insert(equipmentTable).
		Columns("id", "name", "code", "brand", "model", "serial_number", "rental_price",
			"investment_price", "weight", "ownership", "category_id", "location",
			"out_of_service", "scheduled_uses", "service_state").
		Values(eq.ID, eq.Name, eq.Code, eq.Brand, eq.Model, eq.SerialNumber, eq.RentalPrice,
			eq.InvestmentPrice, eq.Weight, string(eq.Ownership), eq.CategoryID, eq.Location,
			oos, uses, string(eq.ServiceState)).
		Suffix("RETURNING " + equipmentFields).
		ToSql()
	if err != nil {
		return models.Equipment{}, fmt.Errorf("build insert equipment: %w", err)
	}
	created, err := scanEquipment(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Equipment{}, store.ErrAlreadyExists
		}
		return models.Equipment{}, err
	}
	return created, nil
}

func (s *Store) GetEquipment(ctx context.Context, id string) (models.Equipment, error) {
	query, args, err := psql.Select(equipmentFields).From(equipmentTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return models.Equipment{}, fmt.Errorf("build select equipment: %w", err)
	}
	return scanEquipment(s.pool.QueryRow(ctx, query, args...))
}

func equipmentWhere(filter store.EquipmentFilter) sq.And {
	where := sq.And{}
	if filter.CategoryID != "" {
		where = append(where, sq.Eq{"category_id": filter.CategoryID})
	}
	if filter.Code != "" {
		where = append(where, sq.Expr("lower(code) = lower(?)", filter.Code))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + q + "%"
		where = append(where, sq.Or{sq.ILike{"name": like}, sq.ILike{"code": like}})
	}
	return where
}

func (s *Store) ListEquipment(ctx context.Context, filter store.EquipmentFilter) ([]models.Equipment, int, error) {
	where := equipmentWhere(filter)

	countQuery, countArgs, err := psql.Select("COUNT(*)").From(equipmentTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count equipment: %w", err)
	}
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count equipment: %w", err)
	}

	builder := psql.Select(equipmentFields).From(equipmentTable).Where(where).
		OrderBy(orderBy(filter.Sort, allowedEquipmentSort, "name")...)
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list equipment: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list equipment: %w", err)
	}
	defer rows.Close()

	items := []models.Equipment{}
	for rows.Next() {
		eq, err := scanEquipment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, eq)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list equipment rows: %w", err)
	}
	return items, total, nil
}

func (s *Store) UpdateEquipment(ctx context.Context, eq models.Equipment) (models.Equipment, error) {
	oos, uses, err := encodeReservationState(eq)
	if err != nil {
		return models.Equipment{}, err
	}
	query, args, err := psql.Update(equipmentTable).
		SetMap(map[string]interface{}{
			"name":             eq.Name,
			"code":             eq.Code,
			"brand":            eq.Brand,
			"model":            eq.Model,
			"serial_number":    eq.SerialNumber,
			"rental_price":     eq.RentalPrice,
			"investment_price": eq.InvestmentPrice,
			"weight":           eq.Weight,
			"ownership":        string(eq.Ownership),
			"category_id":      eq.CategoryID,
			"location":         eq.Location,
			"out_of_service":   oos,
			"scheduled_uses":   uses,
			"service_state":    string(eq.ServiceState),
			"version":          sq.Expr("version + 1"),
			"updated_at":       sq.Expr("now()"),
		}).
		Where(sq.Eq{"id": eq.ID, "version": eq.Version}).
		Suffix("RETURNING " + equipmentFields).
		ToSql()
	if err != nil {
		return models.Equipment{}, fmt.Errorf("build update equipment: %w", err)
	}

	updated, err := scanEquipment(s.pool.QueryRow(ctx, query, args...))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return models.Equipment{}, s.missOrConflict(ctx, equipmentTable, eq.ID)
	case isUniqueViolation(err):
		return models.Equipment{}, store.ErrAlreadyExists
	case err != nil:
		return models.Equipment{}, err
	}
	return updated, nil
}

func (s *Store) DeleteEquipment(ctx context.Context, id string, version int64) error {
	query, args, err := psql.Delete(equipmentTable).Where(sq.Eq{"id": id, "version": version}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete equipment: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete equipment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, equipmentTable, id)
	}
	return nil
}

// missOrConflict tells apart a missing row from a stale version after a
// conditional write matched nothing
func (s *Store) missOrConflict(ctx context.Context, table, id string) error {
	query, args, err := psql.Select("1").From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build exists %s: %w", table, err)
	}
	var one int
	err = s.pool.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check %s %s: %w", table, id, err)
	}
	return store.ErrVersionConflict
}

// orderBy builds ORDER BY terms from a comma separated sort parameter using a
// whitelist. A '-' prefix sorts descending.
func orderBy(sortParam string, allowed map[string]string, fallback string) []string {
	clauses := []string{}
	for _, raw := range strings.Split(sortParam, ",") {
		key := strings.TrimSpace(raw)
		if key == "" {
			continue
		}
		dir := "ASC"
		if strings.HasPrefix(key, "-") {
			dir = "DESC"
			key = strings.TrimPrefix(key, "-")
		}
		col, ok := allowed[key]
		if !ok {
			continue
		}
		clauses = append(clauses, col+" "+dir)
	}
	if len(clauses) == 0 {
		clauses = append(clauses, allowed[fallback]+" ASC")
	}
	return append(clauses, "id ASC")
}
