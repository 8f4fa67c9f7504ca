package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository"
)

type MemberService interface {
	Create(ctx context.Context, m *domain.Member) (*domain.Member, error)
	Get(ctx context.Context, id int64) (*domain.Member, error)
	Update(ctx context.Context, m *domain.Member) (*domain.Member, error)
	Delete(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) (*domain.Member, error)
	List(ctx context.Context, f repository.MemberFilter) ([]domain.Member, int32, error)
	Dashboard(ctx context.Context) (*Dashboard, error)

	// AttachPhoto validates, normalizes and stores an uploaded photo. On any
	// failure the previously stored photo is left in place.
	AttachPhoto(ctx context.Context, id int64, raw []byte) (*domain.Member, error)
	// Photo streams the stored photo of a member.
	Photo(ctx context.Context, id int64) (io.ReadCloser, error)
}

type ImportService interface {
	// ImportFile reads a CSV or XLSX roster file and creates one member per
	// valid row. Failures are isolated per row.
	ImportFile(ctx context.Context, filename string, r io.Reader) (*ImportResult, error)
}

type ExportService interface {
	ExportCSV(ctx context.Context, w io.Writer) (int, error)
	ExportXLSX(ctx context.Context, w io.Writer) (int, error)
	WriteTemplate(w io.Writer) error
}

type EmailService interface {
	SendExpiryReminder(ctx context.Context, to string, members []domain.Member) error
}

// Dashboard aggregates the landing page data.
type Dashboard struct {
	Stats           *repository.MemberStats `json:"stats"`
	RecentMembers   []domain.Member         `json:"recent_members"`
	ExpiringMembers []domain.Member         `json:"expiring_members"`
}

// RowError is a single rejected import row.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (e RowError) String() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ImportResult reports the per-row outcome of a roster import.
type ImportResult struct {
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Errors    []RowError `json:"errors,omitempty"`
}

// summaryErrorCap bounds the number of row errors shown in the summary.
const summaryErrorCap = 10

// Summary renders a human-readable result with at most ten row errors and a
// "+N more" suffix for the rest.
func (r *ImportResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d imported, %d failed", r.Succeeded, r.Failed)
	if len(r.Errors) == 0 {
		return b.String()
	}
	b.WriteString(":")
	shown := r.Errors
	if len(shown) > summaryErrorCap {
		shown = shown[:summaryErrorCap]
	}
	for _, re := range shown {
		b.WriteString("\n" + re.String())
	}
	if rest := len(r.Errors) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "\n+%d more", rest)
	}
	return b.String()
}
