// Package importer loads equipment intake workbooks (.xlsx) into the inventory.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tealeg/xlsx/v3"

	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/store"
)

const defaultMaxErrors = 50

// Intake is the inventory surface the importer writes through, so every
// created or edited item gets its history entry
type Intake interface {
	FindByCode(ctx context.Context, code string) (models.Equipment, error)
	Create(ctx context.Context, req models.CreateEquipmentRequest, actorID string) (models.Equipment, error)
	Update(ctx context.Context, id string, req models.UpdateEquipmentRequest, actorID string) (models.Equipment, error)
}

// ImportOptions defines the configuration for Excel import operations
type ImportOptions struct {
	ActorID   string
	Mapping   *MappingConfig // nil selects the built-in mapping
	DryRun    bool
	MaxErrors int // default 50
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// SheetSummary contains the import statistics for a single sheet
type SheetSummary struct {
	Name     string     `json:"name"`
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Skipped  int        `json:"skipped"`
	Errors   int        `json:"errors"`
	Samples  []RowError `json:"error_samples,omitempty"`
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	Inserted int            `json:"inserted"`
	Updated  int            `json:"updated"`
	Skipped  int            `json:"skipped"`
	Errors   int            `json:"errors"`
	Sheets   []SheetSummary `json:"sheets"`
	DryRun   bool           `json:"dry_run"`
}

// ErrTooManyErrors is returned when row errors exceed MaxErrors
var ErrTooManyErrors = errors.New("importer: too many errors")

const maxSamples = 10

// ImportExcel reads a workbook from r and creates or updates equipment by code
func ImportExcel(ctx context.Context, intake Intake, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{
		DryRun: opts.DryRun,
		Sheets: []SheetSummary{},
	}

	if opts.MaxErrors <= 0 {
		opts.MaxErrors = defaultMaxErrors
	}
	mapping := opts.Mapping
	if mapping == nil {
		var err error
		if mapping, err = DefaultMapping(); err != nil {
			return summary, fmt.Errorf("failed to load mapping config: %w", err)
		}
	}

	// xlsx needs random access, so the upload is buffered
	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("failed to open Excel file: %w", err)
	}

	run := &importRun{
		intake:  intake,
		opts:    opts,
		mapping: mapping,
		seen:    make(map[string]bool),
	}
	for _, sheet := range xlFile.Sheets {
		cfg, ok := mapping.SheetFor(sheet.Name)
		if !ok {
			continue
		}

		sheetSummary := run.processSheet(ctx, sheet, cfg)
		summary.Sheets = append(summary.Sheets, sheetSummary)

		summary.Inserted += sheetSummary.Inserted
		summary.Updated += sheetSummary.Updated
		summary.Skipped += sheetSummary.Skipped
		summary.Errors += sheetSummary.Errors

		if summary.Errors > opts.MaxErrors {
			return summary, fmt.Errorf("%w (%d), stopping import", ErrTooManyErrors, summary.Errors)
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

type importRun struct {
	intake  Intake
	opts    ImportOptions
	mapping *MappingConfig
	// codes already written in this run, so dry runs count repeats as updates
	seen map[string]bool
}

func (ir *importRun) processSheet(ctx context.Context, sheet *xlsx.Sheet, cfg SheetConfig) SheetSummary {
	summary := SheetSummary{Name: sheet.Name}
	fail := func(row int, msg string) {
		summary.Errors++
		if len(summary.Samples) < maxSamples {
			summary.Samples = append(summary.Samples, RowError{Sheet: sheet.Name, Row: row, Message: msg})
		}
	}

	if sheet.MaxRow == 0 {
		return summary
	}
	header := readRow(sheet, 0)
	index := cfg.headerIndex(header)
	for field, col := range cfg.Columns {
		if _, ok := index[field]; col.Required && !ok {
			fail(1, fmt.Sprintf("missing required column for %s (expected one of %s)", field, strings.Join(col.Headers, ", ")))
		}
	}
	if summary.Errors > 0 {
		return summary
	}

	for rowIdx := 1; rowIdx < sheet.MaxRow; rowIdx++ {
		if ctx.Err() != nil {
			fail(rowIdx+1, ctx.Err().Error())
			return summary
		}
		cells := readRow(sheet, rowIdx)
		values := make(map[string]string, len(index))
		for field, col := range index {
			if col < len(cells) && cells[col] != "" {
				values[field] = cells[col]
			}
		}
		if len(values) == 0 {
			summary.Skipped++
			continue
		}

		req, err := ir.buildRequest(values, cfg)
		if err != nil {
			fail(rowIdx+1, err.Error())
			continue
		}

		inserted, err := ir.upsert(ctx, req)
		if err != nil {
			fail(rowIdx+1, err.Error())
			continue
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Updated++
		}
	}
	return summary
}

func (ir *importRun) buildRequest(values map[string]string, cfg SheetConfig) (models.CreateEquipmentRequest, error) {
	req := models.CreateEquipmentRequest{
		Ownership:  ir.mapping.Defaults.Ownership,
		Location:   ir.mapping.Defaults.Location,
		CategoryID: cfg.Category,
	}
	for field, col := range cfg.Columns {
		raw, ok := values[field]
		if !ok {
			if col.Required {
				return req, fmt.Errorf("%s is required", field)
			}
			continue
		}
		if err := setField(&req, field, col.Type, raw); err != nil {
			return req, err
		}
	}
	return req, nil
}

// upsert creates the item when its code is new and patches it otherwise.
// It reports whether a new item was (or in a dry run would be) created.
func (ir *importRun) upsert(ctx context.Context, req models.CreateEquipmentRequest) (bool, error) {
	key := strings.ToLower(req.Code)
	existing, err := ir.intake.FindByCode(ctx, req.Code)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if ir.opts.DryRun {
			inserted := !ir.seen[key]
			ir.seen[key] = true
			return inserted, nil
		}
		if _, err := ir.intake.Create(ctx, req, ir.opts.ActorID); err != nil {
			return false, err
		}
		ir.seen[key] = true
		return true, nil
	case err != nil:
		return false, err
	}

	if ir.opts.DryRun {
		return false, nil
	}
	patch := patchFrom(req)
	if patch.IsEmpty() {
		return false, nil
	}
	if _, err := ir.intake.Update(ctx, existing.ID, patch, ir.opts.ActorID); err != nil {
		return false, err
	}
	return false, nil
}

// patchFrom turns an intake row into a partial update. Location is left out:
// moving an existing item goes through relocation.
func patchFrom(req models.CreateEquipmentRequest) models.UpdateEquipmentRequest {
	str := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	num := func(f float64) *float64 {
		if f == 0 {
			return nil
		}
		return &f
	}
	return models.UpdateEquipmentRequest{
		Name:            str(req.Name),
		Brand:           str(req.Brand),
		Model:           str(req.Model),
		SerialNumber:    str(req.SerialNumber),
		RentalPrice:     num(req.RentalPrice),
		InvestmentPrice: num(req.InvestmentPrice),
		Weight:          num(req.Weight),
		Ownership:       str(req.Ownership),
		CategoryID:      str(req.CategoryID),
	}
}

func setField(req *models.CreateEquipmentRequest, field, typ, raw string) error {
	switch typ {
	case "number":
		f, err := parseNumber(raw)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %v", field, err)
		}
		switch field {
		case "rental_price":
			req.RentalPrice = f
		case "investment_price":
			req.InvestmentPrice = f
		case "weight":
			req.Weight = f
		}
		return nil
	case "ownership":
		o, err := parseOwnership(raw)
		if err != nil {
			return err
		}
		req.Ownership = o
		return nil
	}

	switch field {
	case "name":
		req.Name = raw
	case "code":
		req.Code = raw
	case "brand":
		req.Brand = raw
	case "model":
		req.Model = raw
	case "serial_number":
		req.SerialNumber = raw
	case "location":
		req.Location = raw
	case "category_id":
		req.CategoryID = raw
	}
	return nil
}

// parseNumber accepts plain numbers, currency prefixes, thousands separators
// and a decimal comma ("$ 1.250,50")
func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "$€ ")
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") {
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", raw)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative number: %s", raw)
	}
	return f, nil
}

func parseOwnership(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "owned", "propio", "propia", "own":
		return string(models.OwnershipOwned), nil
	case "rented", "alquilado", "alquilada", "subalquiler", "third party":
		return string(models.OwnershipRented), nil
	}
	return "", fmt.Errorf("unknown ownership: %s", raw)
}

func readRow(sheet *xlsx.Sheet, rowIdx int) []string {
	out := make([]string, sheet.MaxCol)
	for col := 0; col < sheet.MaxCol; col++ {
		cell, err := sheet.Cell(rowIdx, col)
		if err != nil || cell == nil {
			continue
		}
		out[col] = strings.TrimSpace(cell.String())
	}
	return out
}
