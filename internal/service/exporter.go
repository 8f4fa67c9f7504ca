package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository"

	"github.com/xuri/excelize/v2"
)

const (
	exportDateFormat     = "02.01.2006"
	exportDateTimeFormat = "02.01.2006 15:04"
	exportSheetName      = "Mitglieder"
)

// exportHeaders are the roster export columns. German headers, matching what
// the administration expects to re-open in Excel.
var exportHeaders = []string{
	"Vorname",
	"Nachname",
	"Geburtsdatum",
	"Personalnummer",
	"Ausweisnummer",
	"Ausgestellt am",
	"Gültig bis",
	"Mitarbeitertyp",
	"Aktiv",
	"Erstellt am",
}

type exportService struct {
	repo repository.MemberRepository
}

func NewExportService(repo repository.MemberRepository) ExportService {
	return &exportService{repo: repo}
}

// ExportCSV writes the full roster as UTF-8 CSV with a byte order mark so
// that Excel detects the encoding. Returns the number of exported rows.
func (s *exportService) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	members, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load members: %w", err)
	}

	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return 0, err
	}
	for i := range members {
		if err := cw.Write(exportRow(&members[i])); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}

	logger.Info("CSV export written", "members", len(members))
	return len(members), nil
}

// ExportXLSX writes the full roster as an Excel workbook with a single
// "Mitglieder" sheet. Returns the number of exported rows.
func (s *exportService) ExportXLSX(ctx context.Context, w io.Writer) (int, error) {
	members, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load members: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheetName); err != nil {
		return 0, err
	}

	if err := writeSheetRow(f, 1, exportHeaders); err != nil {
		return 0, err
	}
	for i := range members {
		if err := writeSheetRow(f, i+2, exportRow(&members[i])); err != nil {
			return 0, err
		}
	}

	if err := f.Write(w); err != nil {
		return 0, err
	}
	logger.Info("XLSX export written", "members", len(members))
	return len(members), nil
}

// WriteTemplate writes an import template CSV: the accepted headers plus two
// sample rows showing the expected date format.
func (s *exportService) WriteTemplate(w io.Writer) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"Vorname", "Nachname", "Geburtsdatum", "Personalnummer", "Ausgestellt"},
		{"Max", "Mustermann", "15.06.1985", "12345", "01.01.2024"},
		{"Erika", "Musterfrau", "1990-03-22", "", ""},
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportRow(m *domain.Member) []string {
	active := "Nein"
	if m.IsActive {
		active = "Ja"
	}
	return []string{
		m.FirstName,
		m.LastName,
		m.BirthDate.Format(exportDateFormat),
		m.PersonnelNumber,
		m.FullCardNumber(),
		formatOptionalDate(m.IssuedDate),
		formatOptionalDate(m.ValidUntil),
		m.MemberType.DisplayName(),
		active,
		m.CreatedAt.Format(exportDateTimeFormat),
	}
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(exportDateFormat)
}

func writeSheetRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(exportSheetName, cell, &cells)
}
