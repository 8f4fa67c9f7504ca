package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
	"github.com/MLeprich/mitgliederverwaltung/internal/service"
)

// TransferHandler handles roster import, export and the import template.
type TransferHandler struct {
	importer      service.ImportService
	exporter      service.ExportService
	maxUploadSize int64
}

func NewTransferHandler(importer service.ImportService, exporter service.ExportService, maxUploadSizeMB int64) *TransferHandler {
	return &TransferHandler{
		importer:      importer,
		exporter:      exporter,
		maxUploadSize: maxUploadSizeMB << 20,
	}
}

// Import handles POST /api/v1/import. Expects a multipart form with the
// roster file in the "file" field.
func (h *TransferHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		badRequest(w, "Invalid multipart form or file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "Missing file field")
		return
	}
	defer file.Close()

	result, err := h.importer.ImportFile(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedFile) {
			badRequest(w, err.Error())
			return
		}
		logger.Error("Import failed", "file", header.Filename, "error", err)
		internalError(w, "Import failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"errors":    result.Errors,
		"summary":   result.Summary(),
	})
}

// Export handles GET /api/v1/export?format=csv|xlsx
func (h *TransferHandler) Export(w http.ResponseWriter, r *http.Request) {
	stamp := time.Now().Format("2006-01-02")
	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="mitglieder_%s.csv"`, stamp))
		if _, err := h.exporter.ExportCSV(r.Context(), w); err != nil {
			logger.Error("CSV export failed", "error", err)
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="mitglieder_%s.xlsx"`, stamp))
		if _, err := h.exporter.ExportXLSX(r.Context(), w); err != nil {
			logger.Error("XLSX export failed", "error", err)
		}
	default:
		badRequest(w, "Unknown export format: "+format)
	}
}

// Template handles GET /api/v1/import/template
func (h *TransferHandler) Template(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="import_vorlage.csv"`)
	if err := h.exporter.WriteTemplate(w); err != nil {
		logger.Error("Template download failed", "error", err)
	}
}
