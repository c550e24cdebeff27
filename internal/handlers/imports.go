// Package handlers holds HTTP handlers that sit outside the core resource routes.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"stage-inventory-api/internal/auth"
	"stage-inventory-api/pkg/importer"
)

const maxMappingBytes = 64 << 10

// ImportsHandler handles equipment intake workbook uploads
type ImportsHandler struct {
	Intake         importer.Intake
	MaxBytes       int64
	DefaultMapping *importer.MappingConfig
	Logger         *zap.Logger
}

// NewImportsHandler creates a new imports handler
func NewImportsHandler(intake importer.Intake, mapping *importer.MappingConfig, logger *zap.Logger) *ImportsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportsHandler{
		Intake:         intake,
		MaxBytes:       20 << 20, // 20 MB
		DefaultMapping: mapping,
		Logger:         logger,
	}
}

// UploadExcel imports an .xlsx workbook. Form fields: file (required),
// mapping (optional YAML file part), dry_run, max_errors.
func (h *ImportsHandler) UploadExcel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)

	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeError(w, http.StatusBadRequest, "content-type must be multipart/form-data", "INVALID_CONTENT_TYPE")
		return
	}
	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error(), "INVALID_FORM")
		return
	}

	dryRun, _ := strconv.ParseBool(r.FormValue("dry_run"))
	maxErrors := 50
	if v := r.FormValue("max_errors"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxErrors = n
		}
	}

	mapping, err := h.mappingFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mapping: "+err.Error(), "INVALID_MAPPING")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required: "+err.Error(), "MISSING_FILE")
		return
	}
	defer file.Close()

	if !isXLSX(header) {
		writeError(w, http.StatusBadRequest, "only .xlsx files are accepted", "INVALID_FILE_TYPE")
		return
	}

	actorID := auth.ActorIDFromContext(r.Context())
	sum, impErr := importer.ImportExcel(r.Context(), h.Intake, file, importer.ImportOptions{
		ActorID:   actorID,
		Mapping:   mapping,
		DryRun:    dryRun,
		MaxErrors: maxErrors,
	})
	if impErr != nil {
		h.Logger.Warn("equipment import failed",
			zap.String("actor_id", actorID),
			zap.String("file", header.Filename),
			zap.Error(impErr),
		)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "IMPORT_FAILED",
			"details": impErr.Error(),
			"data":    sum,
		})
		return
	}

	h.Logger.Info("equipment import finished",
		zap.String("actor_id", actorID),
		zap.String("file", header.Filename),
		zap.Bool("dry_run", dryRun),
		zap.Int("inserted", sum.Inserted),
		zap.Int("updated", sum.Updated),
		zap.Int("errors", sum.Errors),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"data": sum,
		"meta": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// mappingFrom reads an uploaded mapping part, falling back to the handler default
func (h *ImportsHandler) mappingFrom(r *http.Request) (*importer.MappingConfig, error) {
	part, _, err := r.FormFile("mapping")
	if errors.Is(err, http.ErrMissingFile) {
		return h.DefaultMapping, nil
	}
	if err != nil {
		return nil, err
	}
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, maxMappingBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxMappingBytes {
		return nil, errors.New("mapping file too large")
	}
	return importer.ParseMapping(data)
}

// isXLSX checks if the uploaded file is an Excel .xlsx file
func isXLSX(h *multipart.FileHeader) bool {
	name := strings.ToLower(h.Filename)
	return strings.HasSuffix(name, ".xlsx")
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, auth.ErrorResponse{Error: message, Code: code})
}
