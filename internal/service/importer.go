package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFile is returned for import uploads that are neither CSV nor
// Excel workbooks.
var ErrUnsupportedFile = errors.New("unsupported file type, expected .csv, .xlsx or .xls")

// headerAliases maps spreadsheet column headers, after trimming and
// lower-casing, onto canonical member fields. Rosters arrive with German and
// English headers in the wild; the first column matching a field wins.
var headerAliases = map[string]string{
	"vorname":          "first_name",
	"first_name":       "first_name",
	"nachname":         "last_name",
	"last_name":        "last_name",
	"geburtsdatum":     "birth_date",
	"birth_date":       "birth_date",
	"personalnummer":   "personnel_number",
	"personnel_number": "personnel_number",
	"ausgestellt":      "issued_date",
	"issued_date":      "issued_date",
}

// importDateFormats is the ordered list of accepted date representations.
// The first layout that parses wins; ambiguity is resolved by this order,
// never by guessing.
var importDateFormats = []string{
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
}

const (
	twoDigitYearLayout = "01/02/06"
	twoDigitYearPivot  = 50
)

// excelEpoch is the day-zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

type importService struct {
	repo    repository.MemberRepository
	members MemberService
}

func NewImportService(repo repository.MemberRepository, members MemberService) ImportService {
	return &importService{repo: repo, members: members}
}

func (s *importService) ImportFile(ctx context.Context, filename string, r io.Reader) (*ImportResult, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSVRows(r)
	case ".xlsx", ".xls":
		rows, err = readExcelRows(r)
	default:
		return nil, ErrUnsupportedFile
	}
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	if len(rows) == 0 {
		return &ImportResult{}, nil
	}

	columns := mapHeaders(rows[0])
	result := &ImportResult{}

	for i, row := range rows[1:] {
		// Header is line 1, so the first data row reports as line 2.
		rowNum := i + 2
		if isBlankRow(row) {
			continue
		}
		if err := s.importRow(ctx, columns, row); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RowError{Row: rowNum, Message: err.Error()})
			continue
		}
		result.Succeeded++
	}

	logger.Info("Roster import finished", "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// importRow maps, validates and persists one data row. Each row commits on
// its own; a failure never aborts the batch.
func (s *importService) importRow(ctx context.Context, columns map[int]string, row []string) error {
	values := map[string]string{}
	for idx, field := range columns {
		if idx >= len(row) {
			continue
		}
		if cell := strings.TrimSpace(row[idx]); cell != "" {
			if _, taken := values[field]; !taken {
				values[field] = cell
			}
		}
	}

	if values["first_name"] == "" || values["last_name"] == "" {
		return errors.New("first and last name are required")
	}
	if values["birth_date"] == "" {
		return errors.New("birth date is missing")
	}
	birthDate, err := parseImportDate(values["birth_date"])
	if err != nil {
		return fmt.Errorf("invalid birth date: %v", err)
	}

	issued := time.Now().Truncate(24 * time.Hour)
	if raw := values["issued_date"]; raw != "" {
		issued, err = parseImportDate(raw)
		if err != nil {
			return fmt.Errorf("invalid issue date: %v", err)
		}
	}

	existing, err := s.repo.FindByIdentity(ctx, values["first_name"], values["last_name"], birthDate)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("duplicate check failed: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("duplicate: %s %s already exists", values["first_name"], values["last_name"])
	}

	m := &domain.Member{
		FirstName:        values["first_name"],
		LastName:         values["last_name"],
		BirthDate:        birthDate,
		PersonnelNumber:  values["personnel_number"],
		MemberType:       domain.MemberTypeFF,
		CardNumberPrefix: domain.SuggestedPrefix(domain.MemberTypeFF),
		IssuedDate:       &issued,
		IsActive:         true,
	}
	if _, err := s.members.Create(ctx, m); err != nil {
		return err
	}
	return nil
}

// mapHeaders resolves the header row into column index -> canonical field.
// Unknown columns are ignored; the first column claiming a field wins.
func mapHeaders(header []string) map[int]string {
	columns := map[int]string{}
	claimed := map[string]bool{}
	for idx, h := range header {
		field, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok || claimed[field] {
			continue
		}
		columns[idx] = field
		claimed[field] = true
	}
	return columns
}

// parseImportDate tries the documented format list in order, then two-digit
// years (pivot 50: 49 reads as 2049, 50 as 1950), then spreadsheet serials.
func parseImportDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range importDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(twoDigitYearLayout, s); err == nil {
		yy := t.Year() % 100
		year := 1900 + yy
		if yy < twoDigitYearPivot {
			year = 2000 + yy
		}
		return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 1 && serial < 200000 {
		return excelEpoch.AddDate(0, 0, int(serial)), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}

func readCSVRows(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	// Spreadsheet applications commonly prepend a UTF-8 byte order mark.
	if lead, err := br.Peek(3); err == nil && bytes.Equal(lead, []byte{0xEF, 0xBB, 0xBF}) {
		if _, err := br.Discard(3); err != nil {
			return nil, err
		}
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

func readExcelRows(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
