package services

import (
	"context"
	"errors"
	"testing"

	"movimenti/internal/core"
	"movimenti/internal/storage"
)

func TestBudgetCreateAndConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewBudgetService(env.repo)

	b, err := svc.Create(ctx, core.Budget{
		UserID:     "user-1",
		CategoryID: 3,
		Month:      "2026-08",
		Limit:      core.Money{Cents: 50000},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ID == 0 {
		t.Error("created budget should carry its ID")
	}

	_, err = svc.Create(ctx, core.Budget{
		UserID:     "user-1",
		CategoryID: 3,
		Month:      "2026-08",
		Limit:      core.Money{Cents: 60000},
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate error = %v, want ErrConflict", err)
	}
}

func TestBudgetCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBudgetService(env.repo)

	if _, err := svc.Create(context.Background(), core.Budget{
		UserID:     "user-1",
		CategoryID: 3,
		Month:      "august",
		Limit:      core.Money{Cents: 100},
	}); !errors.Is(err, core.ErrInvalidMonthTag) {
		t.Errorf("error = %v, want ErrInvalidMonthTag", err)
	}
}

func TestBudgetStatusAndOverrun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewBudgetService(env.repo)

	accountID := env.createAccount(t, "user-1", "Checking", 0)

	if _, err := svc.Create(ctx, core.Budget{
		UserID:     "user-1",
		CategoryID: 3,
		Month:      "2026-08",
		Limit:      core.Money{Cents: 2000},
	}); err != nil {
		t.Fatalf("Create budget: %v", err)
	}

	spend := func(cents int64) {
		t.Helper()
		if _, err := env.service.Create(ctx, core.Movement{
			UserID:          "user-1",
			Date:            core.NewDate(2026, 8, 10),
			Description:     "Spend",
			Kind:            core.Expense,
			CategoryID:      3,
			Amount:          core.Money{Cents: cents},
			OriginAccountID: ref(accountID),
		}); err != nil {
			t.Fatalf("Create movement: %v", err)
		}
	}

	spend(1500)

	statuses, err := svc.Status(ctx, "user-1", "2026-08")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	if statuses[0].Spent.Cents != 1500 || statuses[0].Over {
		t.Errorf("got %+v, want spent 1500 under limit", statuses[0])
	}

	spend(600)

	st, err := svc.CheckOverrun(ctx, "user-1", 3, "2026-08")
	if err != nil {
		t.Fatalf("CheckOverrun: %v", err)
	}
	if st == nil {
		t.Fatal("expected a budget status")
	}
	if st.Spent.Cents != 2100 || !st.Over {
		t.Errorf("got %+v, want spent 2100 over limit", st)
	}

	// No budget for this category.
	st, err = svc.CheckOverrun(ctx, "user-1", 99, "2026-08")
	if err != nil {
		t.Fatalf("CheckOverrun: %v", err)
	}
	if st != nil {
		t.Errorf("status = %+v, want nil for unbudgeted category", st)
	}
}
