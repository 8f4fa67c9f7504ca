package domain

import (
	"strconv"
	"strings"
	"time"
)

type MemberType string

const (
	MemberTypeBF         MemberType = "BF"     // career fire service
	MemberTypeFF         MemberType = "FF"     // volunteer fire service (default)
	MemberTypeJF         MemberType = "JF"     // youth fire service
	MemberTypeStadt      MemberType = "STADT"  // municipal staff
	MemberTypeExtern     MemberType = "EXTERN" // external staff
	MemberTypePraktikant MemberType = "PRAKTIKANT"
)

// MemberTypes lists all valid member types in display order.
var MemberTypes = []MemberType{
	MemberTypeBF,
	MemberTypeFF,
	MemberTypeJF,
	MemberTypeStadt,
	MemberTypeExtern,
	MemberTypePraktikant,
}

func (t MemberType) IsValid() bool {
	for _, known := range MemberTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DisplayName returns the human-readable label used on printed cards.
func (t MemberType) DisplayName() string {
	switch t {
	case MemberTypeBF:
		return "Berufsfeuerwehr"
	case MemberTypeFF:
		return "Freiwillige Feuerwehr"
	case MemberTypeJF:
		return "Jugendfeuerwehr"
	case MemberTypeStadt:
		return "Stadt"
	case MemberTypeExtern:
		return "Extern"
	case MemberTypePraktikant:
		return "Praktikant"
	default:
		return string(t)
	}
}

// CardNumberPrefixes is the fixed set of allowed card number prefixes.
var CardNumberPrefixes = []string{"", "FF", "JF"}

func IsValidCardPrefix(prefix string) bool {
	for _, p := range CardNumberPrefixes {
		if prefix == p {
			return true
		}
	}
	return false
}

// SuggestedPrefix returns the card number prefix conventionally used for a
// member type. Career and municipal staff cards carry no prefix.
func SuggestedPrefix(t MemberType) string {
	switch t {
	case MemberTypeFF:
		return "FF"
	case MemberTypeJF:
		return "JF"
	default:
		return ""
	}
}

// Validity terms in days. External staff and interns get short-term cards.
const (
	ShortValidityDays = 365
	LongValidityDays  = 5 * 365
)

// ValidityDays returns the automatic card validity term for a member type.
func ValidityDays(t MemberType) int {
	switch t {
	case MemberTypeExtern, MemberTypePraktikant:
		return ShortValidityDays
	default:
		return LongValidityDays
	}
}

type CardStatus string

const (
	CardStatusNoExpiry     CardStatus = "no-expiry-set"
	CardStatusExpired      CardStatus = "expired"
	CardStatusExpiringSoon CardStatus = "expiring-soon"
	CardStatusValid        CardStatus = "valid"
)

// DefaultExpiryWarnDays is the window in which a card counts as expiring soon.
const DefaultExpiryWarnDays = 30

// ClassifyCard derives the card status from the expiry date. It is total:
// a nil expiry is a regular state, not an error.
func ClassifyCard(validUntil *time.Time, today time.Time, warnDays int) CardStatus {
	if validUntil == nil {
		return CardStatusNoExpiry
	}
	today = truncateToDay(today)
	expiry := truncateToDay(*validUntil)
	if today.After(expiry) {
		return CardStatusExpired
	}
	if !today.AddDate(0, 0, warnDays).Before(expiry) {
		return CardStatusExpiringSoon
	}
	return CardStatusValid
}

// Member is a roster entry with its ID-card lifecycle state.
type Member struct {
	ID               int64      `json:"id"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	BirthDate        time.Time  `json:"birth_date"`
	PersonnelNumber  string     `json:"personnel_number,omitempty"`
	MemberType       MemberType `json:"member_type"`
	CardNumberPrefix string     `json:"card_number_prefix,omitempty"`
	CardNumber       string     `json:"card_number"`
	IssuedDate       *time.Time `json:"issued_date,omitempty"`
	ValidUntil       *time.Time `json:"valid_until,omitempty"`
	ManualValidity   bool       `json:"manual_validity"`
	PhotoPath        string     `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	IsActive         bool       `json:"is_active"`
}

func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// FullCardNumber renders the card number as printed, prefix included.
func (m *Member) FullCardNumber() string {
	return m.CardNumberPrefix + m.CardNumber
}

// Age returns the member's age in full years as of the given day.
func (m *Member) Age(today time.Time) int {
	age := today.Year() - m.BirthDate.Year()
	if today.Month() < m.BirthDate.Month() ||
		(today.Month() == m.BirthDate.Month() && today.Day() < m.BirthDate.Day()) {
		age--
	}
	return age
}

// CardStatus derives the current card state of this member.
func (m *Member) CardStatus(today time.Time, warnDays int) CardStatus {
	return ClassifyCard(m.ValidUntil, today, warnDays)
}

// ApplyValidityWindow computes valid_until from the issue date and member
// type. Runs on every persist; it only fills the value in when the card has
// been issued, no manual override is active and no expiry is set yet. An
// already-set expiry is never recomputed.
func (m *Member) ApplyValidityWindow() {
	if m.IssuedDate == nil || m.ManualValidity || m.ValidUntil != nil {
		return
	}
	expiry := m.IssuedDate.AddDate(0, 0, ValidityDays(m.MemberType))
	m.ValidUntil = &expiry
}

// AgePolicy is the configured admissible age range for roster members.
type AgePolicy struct {
	Min int
	Max int
}

// Validate checks the member against required-field, date-ordering and age
// rules. It returns a *ValidationError describing the first violation.
func (m *Member) Validate(today time.Time, policy AgePolicy) error {
	if strings.TrimSpace(m.FirstName) == "" {
		return &ValidationError{Field: "first_name", Message: "first name is required"}
	}
	if strings.TrimSpace(m.LastName) == "" {
		return &ValidationError{Field: "last_name", Message: "last name is required"}
	}
	if m.BirthDate.IsZero() {
		return &ValidationError{Field: "birth_date", Message: "birth date is required"}
	}
	if m.BirthDate.After(today) {
		return &ValidationError{Field: "birth_date", Message: "birth date cannot be in the future"}
	}
	if age := m.Age(today); age < policy.Min || age > policy.Max {
		return &ValidationError{
			Field:   "birth_date",
			Message: "age must be between " + strconv.Itoa(policy.Min) + " and " + strconv.Itoa(policy.Max) + " years",
		}
	}
	if !m.MemberType.IsValid() {
		return &ValidationError{Field: "member_type", Message: "unknown member type: " + string(m.MemberType)}
	}
	if !IsValidCardPrefix(m.CardNumberPrefix) {
		return &ValidationError{Field: "card_number_prefix", Message: "unknown card number prefix: " + m.CardNumberPrefix}
	}
	if m.IssuedDate != nil && m.ValidUntil != nil && !m.ValidUntil.After(*m.IssuedDate) {
		return &ValidationError{Field: "valid_until", Message: "valid until must be after the issue date"}
	}
	if m.ManualValidity && m.IssuedDate != nil && m.ValidUntil == nil {
		return &ValidationError{Field: "valid_until", Message: "manual validity requires an explicit valid until date"}
	}
	return nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
