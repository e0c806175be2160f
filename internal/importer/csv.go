// Package importer bulk-loads movements from CSV exports. Each row goes
// through the same validation and atomic balance application as a
// manual entry; a bad row is reported and skipped, the rest import.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"movimenti/internal/core"
	"movimenti/internal/services"
)

// Expected header: date,description,kind,amount,category_id,
// payment_method,origin_account_id,destination_account_id.
// The last four columns may be empty per row depending on kind.
var requiredColumns = []string{"date", "description", "kind", "amount"}

type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type Result struct {
	Imported int        `json:"imported"`
	Failed   []RowError `json:"failed,omitempty"`
}

type Importer struct {
	movements *services.MovementService
}

func NewImporter(movements *services.MovementService) *Importer {
	return &Importer{movements: movements}
}

// Import reads CSV rows and creates a movement per row for the given
// user. Row numbering in errors is 1-based and counts the header.
func (i *Importer) Import(ctx context.Context, userID string, r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	col := toIndex(headers)
	for _, k := range requiredColumns {
		if _, ok := col[k]; !ok {
			return Result{}, fmt.Errorf("missing column: %s", k)
		}
	}

	var result Result
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Failed = append(result.Failed, RowError{Line: line, Message: err.Error()})
			continue
		}

		m, err := rowToMovement(userID, rec, col)
		if err != nil {
			result.Failed = append(result.Failed, RowError{Line: line, Message: err.Error()})
			continue
		}

		if _, err := i.movements.Create(ctx, m); err != nil {
			result.Failed = append(result.Failed, RowError{Line: line, Message: err.Error()})
			continue
		}
		result.Imported++
	}
	return result, nil
}

func rowToMovement(userID string, rec []string, col map[string]int) (core.Movement, error) {
	get := func(name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	date, err := core.ParseDate(get("date"))
	if err != nil {
		return core.Movement{}, fmt.Errorf("date %q: %w", get("date"), err)
	}

	cents, err := core.ParseDecimalToCents(get("amount"))
	if err != nil {
		return core.Movement{}, fmt.Errorf("amount %q: %w", get("amount"), err)
	}

	m := core.Movement{
		UserID:        userID,
		Date:          date,
		Description:   get("description"),
		Kind:          core.MovementKind(strings.ToLower(get("kind"))),
		Amount:        core.Money{Cents: cents},
		PaymentMethod: get("payment_method"),
	}

	if m.CategoryID, err = optionalID(get("category_id")); err != nil {
		return core.Movement{}, fmt.Errorf("category_id: %w", err)
	}
	if m.OriginAccountID, err = optionalRef(get("origin_account_id")); err != nil {
		return core.Movement{}, fmt.Errorf("origin_account_id: %w", err)
	}
	if m.DestinationAccountID, err = optionalRef(get("destination_account_id")); err != nil {
		return core.Movement{}, fmt.Errorf("destination_account_id: %w", err)
	}

	return m, nil
}

func optionalID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func optionalRef(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func toIndex(headers []string) map[string]int {
	col := make(map[string]int, len(headers))
	for i, h := range headers {
		col[strings.TrimSpace(h)] = i
	}
	return col
}
