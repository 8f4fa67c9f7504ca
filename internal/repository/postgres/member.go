package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MLeprich/mitgliederverwaltung/internal/domain"
	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
	"github.com/MLeprich/mitgliederverwaltung/internal/repository"

	"github.com/lib/pq"
)

type memberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) repository.MemberRepository {
	return &memberRepository{db: db}
}

const memberColumns = `id, first_name, last_name, birth_date, COALESCE(personnel_number, ''), member_type,
	COALESCE(card_number_prefix, ''), card_number, issued_date, valid_until, manual_validity,
	COALESCE(photo_path, ''), created_at, updated_at, is_active`

func (r *memberRepository) Create(ctx context.Context, m *domain.Member) error {
	query := `INSERT INTO members (first_name, last_name, birth_date, personnel_number, member_type,
	              card_number_prefix, card_number, issued_date, valid_until, manual_validity,
	              photo_path, created_at, updated_at, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	err := r.db.QueryRowContext(ctx, query,
		m.FirstName, m.LastName, m.BirthDate, nullString(m.PersonnelNumber), m.MemberType,
		nullString(m.CardNumberPrefix), m.CardNumber, nullTime(m.IssuedDate), nullTime(m.ValidUntil),
		m.ManualValidity, nullString(m.PhotoPath), m.CreatedAt, m.UpdatedAt, m.IsActive,
	).Scan(&m.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert member %q: %w", m.CardNumber, repository.ErrDuplicateCardNumber)
	}
	return err
}

func (r *memberRepository) GetByID(ctx context.Context, id int64) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return m, err
}

func (r *memberRepository) Update(ctx context.Context, m *domain.Member) error {
	// card_number is deliberately not part of the SET list: once assigned it
	// never changes.
	query := `UPDATE members SET first_name=$1, last_name=$2, birth_date=$3, personnel_number=$4,
	              member_type=$5, card_number_prefix=$6, issued_date=$7, valid_until=$8,
	              manual_validity=$9, photo_path=$10, updated_at=$11, is_active=$12
	          WHERE id=$13`
	m.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		m.FirstName, m.LastName, m.BirthDate, nullString(m.PersonnelNumber),
		m.MemberType, nullString(m.CardNumberPrefix), nullTime(m.IssuedDate), nullTime(m.ValidUntil),
		m.ManualValidity, nullString(m.PhotoPath), m.UpdatedAt, m.IsActive, m.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *memberRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *memberRepository) List(ctx context.Context, f repository.MemberFilter) ([]domain.Member, int32, error) {
	logger.EnterMethod("memberRepository.List", "search", f.Search, "status", f.Status)

	where, args := buildListFilter(f)

	countQuery := `SELECT COUNT(*) FROM members` + where
	var total int32
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		logger.ExitMethodWithError("memberRepository.List", err)
		return nil, 0, err
	}

	order := ` ORDER BY last_name, first_name`
	switch f.Sort {
	case "created":
		order = ` ORDER BY created_at DESC`
	case "valid_until":
		order = ` ORDER BY valid_until ASC NULLS LAST`
	}

	query := `SELECT ` + memberColumns + ` FROM members` + where + order
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	logger.DatabaseCall("SELECT", "members", "filter", f.Status)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		logger.ExitMethodWithError("memberRepository.List", err)
		return nil, 0, err
	}
	defer rows.Close()

	members, err := collectMembers(rows)
	if err != nil {
		logger.ExitMethodWithError("memberRepository.List", err)
		return nil, 0, err
	}
	logger.ExitMethod("memberRepository.List", "count", len(members), "total", total)
	return members, total, nil
}

func buildListFilter(f repository.MemberFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		clauses = append(clauses,
			fmt.Sprintf("(first_name ILIKE %s OR last_name ILIKE %s OR personnel_number ILIKE %s)", p, p, p))
	}

	today := f.Today
	if today.IsZero() {
		today = time.Now()
	}
	today = startOfDay(today)
	warnDays := f.WarnDays
	if warnDays <= 0 {
		warnDays = domain.DefaultExpiryWarnDays
	}

	// Day boundaries mirror domain.ClassifyCard: a card expiring today is
	// still expiring-soon, not expired.
	switch f.Status {
	case "active":
		clauses = append(clauses, "is_active")
	case "inactive":
		clauses = append(clauses, "NOT is_active")
	case "expired":
		clauses = append(clauses, fmt.Sprintf("valid_until < %s", arg(today)))
	case "expiring":
		p1 := arg(today)
		p2 := arg(today.AddDate(0, 0, warnDays))
		clauses = append(clauses, fmt.Sprintf("valid_until >= %s AND valid_until <= %s", p1, p2))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *memberRepository) ListAll(ctx context.Context) ([]domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members ORDER BY last_name, first_name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMembers(rows)
}

func (r *memberRepository) CardNumberExists(ctx context.Context, cardNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM members WHERE card_number = $1)`, cardNumber).Scan(&exists)
	return exists, err
}

func (r *memberRepository) FindByIdentity(ctx context.Context, firstName, lastName string, birthDate time.Time) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members
	          WHERE LOWER(first_name) = LOWER($1) AND LOWER(last_name) = LOWER($2) AND birth_date = $3`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, firstName, lastName, birthDate))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return m, err
}

func (r *memberRepository) ListExpiring(ctx context.Context, before time.Time, limit int32) ([]domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members
	          WHERE is_active AND valid_until IS NOT NULL AND valid_until <= $1
	          ORDER BY valid_until`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMembers(rows)
}

func (r *memberRepository) ListRecent(ctx context.Context, limit int32) ([]domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE is_active ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMembers(rows)
}

func (r *memberRepository) Stats(ctx context.Context, today time.Time, warnDays int) (*repository.MemberStats, error) {
	query := `SELECT COUNT(*),
	                 COUNT(*) FILTER (WHERE is_active),
	                 COUNT(*) FILTER (WHERE is_active AND valid_until > $2),
	                 COUNT(*) FILTER (WHERE is_active AND valid_until >= $1 AND valid_until <= $2),
	                 COUNT(*) FILTER (WHERE is_active AND valid_until < $1)
	          FROM members`
	stats := &repository.MemberStats{}
	today = startOfDay(today)
	threshold := today.AddDate(0, 0, warnDays)
	err := r.db.QueryRowContext(ctx, query, today, threshold).Scan(
		&stats.Total, &stats.Active, &stats.ValidCards, &stats.ExpiringSoon, &stats.ExpiredCards)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (*domain.Member, error) {
	m := &domain.Member{}
	var issued, validUntil sql.NullTime
	err := row.Scan(
		&m.ID, &m.FirstName, &m.LastName, &m.BirthDate, &m.PersonnelNumber, &m.MemberType,
		&m.CardNumberPrefix, &m.CardNumber, &issued, &validUntil, &m.ManualValidity,
		&m.PhotoPath, &m.CreatedAt, &m.UpdatedAt, &m.IsActive,
	)
	if err != nil {
		return nil, err
	}
	if issued.Valid {
		t := issued.Time
		m.IssuedDate = &t
	}
	if validUntil.Valid {
		t := validUntil.Time
		m.ValidUntil = &t
	}
	return m, nil
}

func collectMembers(rows *sql.Rows) ([]domain.Member, error) {
	var members []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
