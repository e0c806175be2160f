package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income   MovementKind = "income"
	Expense  MovementKind = "expense"
	Transfer MovementKind = "transfer"
)

const (
	Pending    ReconciliationState = "pending"
	Reconciled ReconciliationState = "reconciled"
)

const (
	Monthly RepetitionType = "monthly"
	Yearly  RepetitionType = "yearly"
	Weekly  RepetitionType = "weekly"
	Daily   RepetitionType = "daily"
)

type (
	MovementKind        string
	ReconciliationState string
	RepetitionType      string

	Date struct {
		time.Time
	}

	// MonthTag is a reconciliation month in "YYYY-MM" form. It is stored
	// alongside the movement date and is not recomputed on read.
	MonthTag string

	Money struct {
		Cents int64
	}

	// Movement is a recorded financial event. Depending on Kind it
	// references zero, one, or two accounts.
	Movement struct {
		ID                   int64
		UserID               string
		Date                 Date
		Description          string
		Kind                 MovementKind
		CategoryID           int64
		Amount               Money
		PaymentMethod        string
		OriginAccountID      *int64
		DestinationAccountID *int64
		CreditInstrumentID   *int64
		Installments         *int64
		Reconciled           ReconciliationState
		ReconciliationMonth  MonthTag
	}

	// Account is a money container. ComputedBalance is maintained
	// exclusively through movement effects after creation.
	Account struct {
		ID              int64
		UserID          string
		Name            string
		Bank            string
		InitialBalance  Money
		FinalBalance    *Money
		ComputedBalance Money
		Active          bool
	}

	Category struct {
		ID     int64
		UserID string
		Name   string
	}

	// Budget caps expenses for one category in one month. At most one
	// budget may exist per (user, category, month).
	Budget struct {
		ID         int64
		UserID     string
		CategoryID int64
		Month      MonthTag
		Limit      Money
	}

	// RecurringMovement is a template materialized into real movements
	// by the recurring worker.
	RecurringMovement struct {
		ID                   int64
		UserID               string
		Every                RepetitionType
		StartDate            Date
		EndDate              Date
		Description          string
		Kind                 MovementKind
		CategoryID           int64
		Amount               Money
		PaymentMethod        string
		OriginAccountID      *int64
		DestinationAccountID *int64
		LastExecution        time.Time
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrInvalidKind        = errors.New("invalid movement kind")
	ErrMissingOrigin      = errors.New("missing origin account")
	ErrMissingDestination = errors.New("missing destination account")
	ErrSameAccount        = errors.New("origin and destination account are the same")
	ErrInvalidMonthTag    = errors.New("invalid reconciliation month")
	ErrInvalidState       = errors.New("invalid reconciliation state")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrEmptyAccountName   = errors.New("empty account name")
	ErrAccountNameTooLong = errors.New("account name too long (max 100 characters)")
	ErrMissingCategory    = errors.New("missing budget category")
	ErrInvalidDateRange   = errors.New("end date must not be before start date")
	ErrInvalidRepetition  = errors.New("invalid repetition type")
)

// NewDate creates a Date from year, month, day (UTC, midnight).
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar day in "2006-01-02" form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MonthTagOf derives the "YYYY-MM" tag from a point in time.
func MonthTagOf(t time.Time) MonthTag {
	return MonthTag(t.Format("2006-01"))
}

// Prev returns the tag of the calendar month before m.
func (m MonthTag) Prev() MonthTag {
	t, err := m.Time()
	if err != nil {
		return m
	}
	return MonthTagOf(t.AddDate(0, -1, 0))
}

// Time returns the first instant of the tagged month.
func (m MonthTag) Time() (time.Time, error) {
	t, err := time.Parse("2006-01", string(m))
	if err != nil {
		return time.Time{}, ErrInvalidMonthTag
	}
	return t, nil
}

func (m MonthTag) Validate() error {
	_, err := m.Time()
	return err
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (k MovementKind) Validate() error {
	switch k {
	case Income, Expense, Transfer:
		return nil
	}
	return ErrInvalidKind
}

func (s ReconciliationState) Validate() error {
	switch s {
	case Pending, Reconciled:
		return nil
	}
	return ErrInvalidState
}

// Validate checks a movement at the input boundary. A transfer must name
// both accounts; the degraded half-effect posting documented for stored
// rows is never accepted for new input.
func (m Movement) Validate() error {
	if err := m.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(m.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(m.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if err := m.Amount.Validate(); err != nil {
		return err
	}
	if err := m.Kind.Validate(); err != nil {
		return err
	}
	switch m.Kind {
	case Expense:
		if m.OriginAccountID == nil {
			return ErrMissingOrigin
		}
	case Income:
		if m.DestinationAccountID == nil {
			return ErrMissingDestination
		}
	case Transfer:
		if m.OriginAccountID == nil {
			return ErrMissingOrigin
		}
		if m.DestinationAccountID == nil {
			return ErrMissingDestination
		}
		if *m.OriginAccountID == *m.DestinationAccountID {
			return ErrSameAccount
		}
	}
	if m.Reconciled != "" {
		if err := m.Reconciled.Validate(); err != nil {
			return err
		}
	}
	if m.ReconciliationMonth != "" {
		if err := m.ReconciliationMonth.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyAccountName
	}
	if len(a.Name) > 100 {
		return ErrAccountNameTooLong
	}
	return nil
}

func (b Budget) Validate() error {
	if b.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if err := b.Month.Validate(); err != nil {
		return fmt.Errorf("budget month: %w", err)
	}
	return b.Limit.Validate()
}

func (r RecurringMovement) Validate() error {
	if err := r.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate.Time) {
		return ErrInvalidDateRange
	}
	switch r.Every {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return ErrInvalidRepetition
	}
	template := Movement{
		Date:                 r.StartDate,
		Description:          r.Description,
		Kind:                 r.Kind,
		CategoryID:           r.CategoryID,
		Amount:               r.Amount,
		PaymentMethod:        r.PaymentMethod,
		OriginAccountID:      r.OriginAccountID,
		DestinationAccountID: r.DestinationAccountID,
	}
	return template.Validate()
}
