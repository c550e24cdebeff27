//go:build integration

package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"

	"stage-inventory-api/pkg/importer"
)

func intakeWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Iluminacion")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, file.Write(buf))
	return buf.Bytes()
}

func (api *integrationAPI) upload(t *testing.T, data []byte, dryRun bool) (int, importer.ImportSummary) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if dryRun {
		require.NoError(t, writer.WriteField("dry_run", "true"))
	}
	fw, err := writer.CreateFormFile("file", "intake.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/imports/equipment", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+api.staff)
	w := httptest.NewRecorder()
	api.server.Router.ServeHTTP(w, req)

	var resp struct {
		Data importer.ImportSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp.Data
}

func TestImportsIntegration(t *testing.T) {
	api := newIntegrationAPI(t)
	data := intakeWorkbook(t, [][]string{
		{"Codigo", "Nombre", "Marca", "Precio Alquiler"},
		{"PAR-01", "Par LED", "Acme", "1500"},
		{"PAR-02", "Par LED", "Acme", "1500"},
	})

	t.Run("Dry run writes nothing", func(t *testing.T) {
		code, summary := api.upload(t, data, true)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, 2, summary.Inserted)
		assert.True(t, summary.DryRun)

		_, err := api.app.Inventory.FindByCode(context.Background(), "PAR-01")
		assert.Error(t, err)
	})

	t.Run("Import creates then updates by code", func(t *testing.T) {
		code, summary := api.upload(t, data, false)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, 2, summary.Inserted)

		eq, err := api.app.Inventory.FindByCode(context.Background(), "par-01")
		require.NoError(t, err)
		assert.Equal(t, "lighting", eq.CategoryID)
		assert.Equal(t, 1500.0, eq.RentalPrice)

		code, summary = api.upload(t, data, false)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, 0, summary.Inserted)
		assert.Equal(t, 2, summary.Updated+summary.Skipped)
	})
}
