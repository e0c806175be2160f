package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"movimenti/internal/core"
	"movimenti/internal/storage"
)

// DuenessChecker decides whether a recurring template should fire,
// given its last execution and the current time. Each repetition type
// has its own strategy.
type DuenessChecker interface {
	IsDue(lastExecution, now time.Time, startDate core.Date) bool
}

// DailyChecker fires whenever the last execution was before today.
type DailyChecker struct{}

func (DailyChecker) IsDue(lastExecution, now time.Time, _ core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	return lastExecution.Format("2006-01-02") != now.Format("2006-01-02")
}

// WeeklyChecker fires once 7 or more days have passed.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(lastExecution, now time.Time, _ core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	daysSince := now.Sub(lastExecution).Hours() / 24
	return daysSince >= 7
}

// MonthlyChecker fires once per month when the start date's day of
// month is reached. A target day missing from the current month (e.g.
// the 31st in February) clamps to the month's last day.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(lastExecution, now time.Time, startDate core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.Year() == now.Year() && lastExecution.Month() == now.Month() {
		return false
	}
	return now.Day() >= clampDay(startDate.Day(), now)
}

// YearlyChecker fires once per year when the start date's month and day
// are reached.
type YearlyChecker struct{}

func (YearlyChecker) IsDue(lastExecution, now time.Time, startDate core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.Year() == now.Year() {
		return false
	}
	if now.Month() < startDate.Month() {
		return false
	}
	if now.Month() == startDate.Month() {
		return now.Day() >= clampDay(startDate.Day(), now)
	}
	return true
}

func clampDay(targetDay int, now time.Time) int {
	lastDayOfMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if targetDay > lastDayOfMonth {
		return lastDayOfMonth
	}
	return targetDay
}

var duenessStrategies = map[core.RepetitionType]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for a repetition type.
func GetDuenessChecker(every core.RepetitionType) (DuenessChecker, error) {
	checker, ok := duenessStrategies[every]
	if !ok {
		return nil, fmt.Errorf("unknown repetition type: %s", every)
	}
	return checker, nil
}

// RecurringProcessor materializes due recurring templates into real
// movements through the movement service, so every generated movement
// gets the same atomic balance application as a manual one.
type RecurringProcessor struct {
	storage   *storage.SQLiteRepository
	movements *MovementService
}

func NewRecurringProcessor(repo *storage.SQLiteRepository, movements *MovementService) *RecurringProcessor {
	return &RecurringProcessor{
		storage:   repo,
		movements: movements,
	}
}

// ProcessDue checks every recurring template and creates movements for
// the due ones. A failure on one template logs and moves on; the rest
// still run.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil || p.movements == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	templates, err := p.storage.ListRecurring(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recurring movements: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring movements",
		"total", len(templates),
		"processing_date", now.Format("2006-01-02"))

	processed := 0
	for _, rm := range templates {
		due, err := p.isDue(rm, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to check dueness",
				"recurring_id", rm.ID, "error", err)
			continue
		}
		if !due {
			continue
		}

		movement := core.Movement{
			UserID:               rm.UserID,
			Date:                 core.Date{Time: now},
			Description:          rm.Description,
			Kind:                 rm.Kind,
			CategoryID:           rm.CategoryID,
			Amount:               rm.Amount,
			PaymentMethod:        rm.PaymentMethod,
			OriginAccountID:      rm.OriginAccountID,
			DestinationAccountID: rm.DestinationAccountID,
		}
		if _, err := p.movements.Create(ctx, movement); err != nil {
			slog.ErrorContext(ctx, "Failed to create movement from recurring template",
				"recurring_id", rm.ID,
				"description", rm.Description,
				"error", err)
			continue
		}

		if err := p.storage.MarkRecurringExecuted(ctx, rm.ID, now); err != nil {
			// The movement is already created; log and keep going.
			slog.ErrorContext(ctx, "Failed to update last execution date",
				"recurring_id", rm.ID, "error", err)
		}

		processed++
		slog.InfoContext(ctx, "Created movement from recurring template",
			"recurring_id", rm.ID,
			"description", rm.Description,
			"amount_cents", rm.Amount.Cents,
			"every", rm.Every)
	}

	slog.InfoContext(ctx, "Recurring movement processing complete",
		"processed", processed,
		"total_checked", len(templates))

	return processed, nil
}

func (p *RecurringProcessor) isDue(rm core.RecurringMovement, now time.Time) (bool, error) {
	if now.Before(rm.StartDate.Time) {
		return false, nil
	}
	if !rm.EndDate.IsZero() && now.After(rm.EndDate.AddDate(0, 0, 1)) {
		return false, nil
	}
	checker, err := GetDuenessChecker(rm.Every)
	if err != nil {
		return false, err
	}
	return checker.IsDue(rm.LastExecution, now, rm.StartDate), nil
}
