package core

import (
	"sort"
	"time"
)

// historyMonths is the span of the rolling income/expense series and of
// the category breakdown window.
const historyMonths = 6

type (
	CategoryAmount struct {
		CategoryID int64
		Amount     Money
	}

	// MonthFlow is one point of the rolling series: income and expense
	// totals for one calendar month, keyed by the movement date (not the
	// reconciliation tag).
	MonthFlow struct {
		Month   MonthTag
		Income  Money
		Expense Money
	}

	Dashboard struct {
		TotalBalance  Money
		CurrentMonth  []Movement
		PreviousMonth []Movement
		History       []MonthFlow
		TopCategories []CategoryAmount
	}
)

// BuildDashboard computes the dashboard view from the full entity set.
// Pure function over its inputs; nothing is mutated.
//
// Month partitions use the stored reconciliation tag. The history series
// and the category breakdown use the calendar month of the movement
// date, over the last six months ending at now.
func BuildDashboard(accounts []Account, movements []Movement, now time.Time) Dashboard {
	var d Dashboard

	for _, a := range accounts {
		d.TotalBalance.Cents += a.ComputedBalance.Cents
	}

	currentTag := MonthTagOf(now)
	previousTag := currentTag.Prev()
	for _, m := range movements {
		switch m.ReconciliationMonth {
		case currentTag:
			d.CurrentMonth = append(d.CurrentMonth, m)
		case previousTag:
			d.PreviousMonth = append(d.PreviousMonth, m)
		}
	}

	// Window opens at the first day of the oldest month in the series.
	windowStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, -(historyMonths - 1), 0)

	flows := make(map[MonthTag]*MonthFlow, historyMonths)
	d.History = make([]MonthFlow, historyMonths)
	for i := 0; i < historyMonths; i++ {
		tag := MonthTagOf(windowStart.AddDate(0, i, 0))
		d.History[i] = MonthFlow{Month: tag}
		flows[tag] = &d.History[i]
	}

	byCategory := make(map[int64]int64)
	for _, m := range movements {
		if m.Date.Before(windowStart) {
			continue
		}
		flow, ok := flows[MonthTagOf(m.Date.Time)]
		if !ok {
			continue
		}
		switch m.Kind {
		case Income:
			flow.Income.Cents += m.Amount.Cents
		case Expense:
			flow.Expense.Cents += m.Amount.Cents
			byCategory[m.CategoryID] += m.Amount.Cents
		}
	}

	d.TopCategories = make([]CategoryAmount, 0, len(byCategory))
	for id, cents := range byCategory {
		d.TopCategories = append(d.TopCategories, CategoryAmount{CategoryID: id, Amount: Money{Cents: cents}})
	}
	sort.Slice(d.TopCategories, func(i, j int) bool {
		if d.TopCategories[i].Amount.Cents != d.TopCategories[j].Amount.Cents {
			return d.TopCategories[i].Amount.Cents > d.TopCategories[j].Amount.Cents
		}
		return d.TopCategories[i].CategoryID < d.TopCategories[j].CategoryID
	})

	return d
}
