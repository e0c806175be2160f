package core

import (
	"testing"
	"time"
)

func ref(id int64) *int64 { return &id }

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-09")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.String() != "2025-03-09" {
		t.Fatalf("round trip got %s", d.String())
	}
	if _, err := ParseDate("09/03/2025"); err == nil {
		t.Fatalf("expected error for non-ISO date")
	}
}

func TestMonthTag(t *testing.T) {
	tag := MonthTagOf(time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC))
	if tag != "2025-03" {
		t.Fatalf("tag=%s", tag)
	}
	if tag.Prev() != "2025-02" {
		t.Fatalf("prev=%s", tag.Prev())
	}
	// Across the year boundary.
	if MonthTag("2025-01").Prev() != "2024-12" {
		t.Fatalf("prev across year=%s", MonthTag("2025-01").Prev())
	}
	if err := MonthTag("2025-13").Validate(); err == nil {
		t.Fatalf("expected error for month 13")
	}
}

func TestMovementValidate(t *testing.T) {
	good := Movement{
		Date:            NewDate(2025, 1, 1),
		Description:     "groceries",
		Kind:            Expense,
		Amount:          Money{Cents: 1000},
		OriginAccountID: ref(1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		m    Movement
		want error
	}{
		{"zero date", Movement{Description: "a", Kind: Expense, Amount: Money{Cents: 1}, OriginAccountID: ref(1)}, ErrInvalidDate},
		{"empty description", Movement{Date: NewDate(2025, 1, 1), Kind: Expense, Amount: Money{Cents: 1}, OriginAccountID: ref(1)}, ErrEmptyDescription},
		{"zero amount", Movement{Date: NewDate(2025, 1, 1), Description: "a", Kind: Expense, OriginAccountID: ref(1)}, ErrInvalidAmount},
		{"bad kind", Movement{Date: NewDate(2025, 1, 1), Description: "a", Kind: "refund", Amount: Money{Cents: 1}}, ErrInvalidKind},
		{"expense without origin", Movement{Date: NewDate(2025, 1, 1), Description: "a", Kind: Expense, Amount: Money{Cents: 1}}, ErrMissingOrigin},
		{"income without destination", Movement{Date: NewDate(2025, 1, 1), Description: "a", Kind: Income, Amount: Money{Cents: 1}}, ErrMissingDestination},
		{"transfer without destination", Movement{Date: NewDate(2025, 1, 1), Description: "a", Kind: Transfer, Amount: Money{Cents: 1}, OriginAccountID: ref(1)}, ErrMissingDestination},
		{"transfer without origin", Movement{Date: NewDate(2025, 1, 1), Description: "a", Kind: Transfer, Amount: Money{Cents: 1}, DestinationAccountID: ref(2)}, ErrMissingOrigin},
		{"transfer to itself", Movement{Date: NewDate(2025, 1, 1), Description: "a", Kind: Transfer, Amount: Money{Cents: 1}, OriginAccountID: ref(1), DestinationAccountID: ref(1)}, ErrSameAccount},
		{"bad month tag", Movement{Date: NewDate(2025, 1, 1), Description: "a", Kind: Expense, Amount: Money{Cents: 1}, OriginAccountID: ref(1), ReconciliationMonth: "january"}, ErrInvalidMonthTag},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.m.Validate(); err != tc.want {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBudgetValidate(t *testing.T) {
	good := Budget{CategoryID: 3, Month: "2025-02", Limit: Money{Cents: 50000}}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Budget{
		{Month: "2025-02", Limit: Money{Cents: 1}},
		{CategoryID: 3, Month: "bad", Limit: Money{Cents: 1}},
		{CategoryID: 3, Month: "2025-02"},
	}
	for i, b := range bads {
		if err := b.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestRecurringMovementValidate(t *testing.T) {
	good := RecurringMovement{
		Every:           Monthly,
		StartDate:       NewDate(2025, 1, 10),
		Description:     "rent",
		Kind:            Expense,
		Amount:          Money{Cents: 90000},
		OriginAccountID: ref(1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bad := good
	bad.EndDate = NewDate(2024, 12, 31)
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for end before start")
	}
	bad = good
	bad.Every = "biweekly"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for repetition type")
	}
	bad = good
	bad.OriginAccountID = nil
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for template without origin")
	}
}
