package services

import (
	"context"

	"movimenti/internal/core"
	"movimenti/internal/storage"
)

// BudgetStatus pairs a budget with the expense total recorded against
// its category in its month.
type BudgetStatus struct {
	Budget core.Budget
	Spent  core.Money
	Over   bool
}

type BudgetService struct {
	storage *storage.SQLiteRepository
}

func NewBudgetService(repo *storage.SQLiteRepository) *BudgetService {
	return &BudgetService{storage: repo}
}

// Create persists a budget. A second budget for the same category and
// month surfaces storage.ErrConflict.
func (s *BudgetService) Create(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	id, err := s.storage.CreateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, err
	}
	b.ID = id
	return b, nil
}

// Status reports every budget for a month together with current spend.
func (s *BudgetService) Status(ctx context.Context, userID string, month core.MonthTag) ([]BudgetStatus, error) {
	budgets, err := s.storage.ListBudgets(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	if len(budgets) == 0 {
		return nil, nil
	}

	spent, err := s.storage.SumExpensesByCategory(ctx, userID, month)
	if err != nil {
		return nil, err
	}

	out := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		cents := spent[b.CategoryID]
		out = append(out, BudgetStatus{
			Budget: b,
			Spent:  core.Money{Cents: cents},
			Over:   cents > b.Limit.Cents,
		})
	}
	return out, nil
}

// CheckOverrun reports whether the category's month spend exceeds its
// budget. A nil result means no budget exists for that category and
// month.
func (s *BudgetService) CheckOverrun(ctx context.Context, userID string, categoryID int64, month core.MonthTag) (*BudgetStatus, error) {
	statuses, err := s.Status(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	for _, st := range statuses {
		if st.Budget.CategoryID == categoryID {
			return &st, nil
		}
	}
	return nil, nil
}
