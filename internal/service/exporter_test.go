package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/MLeprich/mitgliederverwaltung/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"
)

func exportFixture() []domain.Member {
	issued := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2029, time.January, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Member{
		{
			ID:               1,
			FirstName:        "Max",
			LastName:         "Mustermann",
			BirthDate:        time.Date(1985, time.June, 15, 0, 0, 0, 0, time.UTC),
			PersonnelNumber:  "12345",
			MemberType:       domain.MemberTypeFF,
			CardNumberPrefix: "FF",
			CardNumber:       "123456",
			IssuedDate:       &issued,
			ValidUntil:       &until,
			CreatedAt:        time.Date(2024, time.January, 1, 9, 30, 0, 0, time.UTC),
			IsActive:         true,
		},
		{
			ID:         2,
			FirstName:  "Erika",
			LastName:   "Musterfrau",
			BirthDate:  time.Date(1990, time.March, 22, 0, 0, 0, 0, time.UTC),
			MemberType: domain.MemberTypeExtern,
			CardNumber: "654321",
			CreatedAt:  time.Date(2024, time.February, 2, 14, 0, 0, 0, time.UTC),
			IsActive:   false,
		},
	}
}

func TestExportService_ExportCSV(t *testing.T) {
	ctx := context.Background()
	repo := new(MockMemberRepo)
	svc := NewExportService(repo)

	repo.On("ListAll", ctx).Return(exportFixture(), nil).Once()

	var buf bytes.Buffer
	n, err := svc.ExportCSV(ctx, &buf)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	out := buf.Bytes()
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, out[:3])

	records, err := csv.NewReader(bytes.NewReader(out[3:])).ReadAll()
	assert.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, exportHeaders, records[0])
	assert.Equal(t, []string{
		"Max", "Mustermann", "15.06.1985", "12345", "FF123456",
		"01.01.2024", "01.01.2029", "Freiwillige Feuerwehr", "Ja", "01.01.2024 09:30",
	}, records[1])
	assert.Equal(t, "Nein", records[2][8])
	assert.Equal(t, "", records[2][5]) // no issue date
}

func TestExportService_ExportXLSX(t *testing.T) {
	ctx := context.Background()
	repo := new(MockMemberRepo)
	svc := NewExportService(repo)

	repo.On("ListAll", ctx).Return(exportFixture(), nil).Once()

	var buf bytes.Buffer
	n, err := svc.ExportXLSX(ctx, &buf)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenReader(&buf)
	assert.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Mitglieder"}, f.GetSheetList())
	rows, err := f.GetRows("Mitglieder")
	assert.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "Vorname", rows[0][0])
	assert.Equal(t, "FF123456", rows[1][4])
}

func TestExportService_WriteTemplate(t *testing.T) {
	svc := NewExportService(new(MockMemberRepo))

	var buf bytes.Buffer
	assert.NoError(t, svc.WriteTemplate(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\xEF\xBB\xBF"))
	assert.Contains(t, out, "Vorname,Nachname,Geburtsdatum,Personalnummer,Ausgestellt")
	assert.Contains(t, out, "Max,Mustermann,15.06.1985")
}
