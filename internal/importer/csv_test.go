package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"movimenti/internal/core"
	"movimenti/internal/services"
	"movimenti/internal/storage"
)

func newImportEnv(t *testing.T) (*storage.SQLiteRepository, *Importer) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, NewImporter(services.NewMovementService(repo, nil, nil))
}

func createAccount(t *testing.T, repo *storage.SQLiteRepository, userID string, initialCents int64) int64 {
	t.Helper()
	id, err := repo.CreateAccount(context.Background(), core.Account{
		UserID:         userID,
		Name:           "Checking",
		InitialBalance: core.Money{Cents: initialCents},
		Active:         true,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return id
}

func TestImportAppliesBalances(t *testing.T) {
	repo, imp := newImportEnv(t)
	ctx := context.Background()

	accountID := createAccount(t, repo, "user-1", 10000)

	csvData := `date,description,kind,amount,category_id,payment_method,origin_account_id,destination_account_id
2026-08-01,Groceries,expense,12.50,3,card,1,
2026-08-02,Salary,income,2500.00,1,,,1
`
	result, err := imp.Import(ctx, "user-1", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Imported != 2 {
		t.Fatalf("imported = %d, want 2 (failures: %+v)", result.Imported, result.Failed)
	}
	if len(result.Failed) != 0 {
		t.Errorf("failed rows = %+v, want none", result.Failed)
	}

	a, err := repo.GetAccount(ctx, "user-1", accountID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	// 10000 - 1250 + 250000
	if a.ComputedBalance.Cents != 258750 {
		t.Errorf("balance = %d, want 258750", a.ComputedBalance.Cents)
	}

	movements, err := repo.ListMovements(ctx, "user-1", storage.MovementFilter{})
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("movements = %d, want 2", len(movements))
	}
	if movements[0].ReconciliationMonth != "2026-08" {
		t.Errorf("reconciliation month = %s, want 2026-08", movements[0].ReconciliationMonth)
	}
}

func TestImportSkipsBadRows(t *testing.T) {
	repo, imp := newImportEnv(t)
	ctx := context.Background()

	createAccount(t, repo, "user-1", 0)

	csvData := `date,description,kind,amount,category_id,payment_method,origin_account_id,destination_account_id
2026-08-01,Good,expense,10.00,,,1,
not-a-date,Bad date,expense,10.00,,,1,
2026-08-03,Bad amount,expense,abc,,,1,
2026-08-04,No origin,expense,10.00,,,,
2026-08-05,Unknown account,expense,10.00,,,99,
`
	result, err := imp.Import(ctx, "user-1", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("imported = %d, want 1", result.Imported)
	}
	if len(result.Failed) != 4 {
		t.Fatalf("failed rows = %d, want 4: %+v", len(result.Failed), result.Failed)
	}
	// Header is line 1; first failing row is line 3.
	if result.Failed[0].Line != 3 {
		t.Errorf("first failure line = %d, want 3", result.Failed[0].Line)
	}
}

func TestImportRejectsMissingColumns(t *testing.T) {
	_, imp := newImportEnv(t)

	csvData := `date,description,amount
2026-08-01,Groceries,12.50
`
	if _, err := imp.Import(context.Background(), "user-1", strings.NewReader(csvData)); err == nil {
		t.Error("import without kind column should fail")
	}
}
