package core

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/strongo/decimal"
)

// materialityThreshold is the |net amount| cutoff for the expense breakdown,
// in fixed-point units (1 == 0.01 currency units).
const materialityThreshold decimal.Decimal64p2 = 1

// recentTransactionLimit caps the recent-transaction feed.
const recentTransactionLimit = 10

type (
	// BalancePoint is one step of the observer's balance trajectory.
	// RunningBalance is the cumulative net amount up to and including this
	// record, in chronological order.
	BalancePoint struct {
		ID             int64     `json:"id"`
		Date           time.Time `json:"date"`
		Label          string    `json:"label"`
		Description    string    `json:"description"`
		IsPayment      bool      `json:"isPayment"`
		Amount         float64   `json:"amount"`
		PaidShare      float64   `json:"paidShare"`
		OwedShare      float64   `json:"owedShare"`
		NetAmount      float64   `json:"netAmount"`
		RunningBalance float64   `json:"runningBalance"`
	}

	// CategoryTotal is the observer's summed owed share for one category.
	CategoryTotal struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}

	// DebtEntry is the netted repayment position against one counterparty.
	// NetBalance is positive when the counterparty owes the observer.
	DebtEntry struct {
		UserID     int64   `json:"userId"`
		Name       string  `json:"name"`
		YouOwe     float64 `json:"youOwe"`
		TheyOwe    float64 `json:"theyOwe"`
		NetBalance float64 `json:"netBalance"`
	}

	// Transaction is one row of the recent-transaction feed.
	Transaction struct {
		ID          int64     `json:"id"`
		Date        time.Time `json:"date"`
		Description string    `json:"description"`
		IsPayment   bool      `json:"isPayment"`
		Amount      float64   `json:"amount"`
		PaidShare   float64   `json:"paidShare"`
		OwedShare   float64   `json:"owedShare"`
		NetAmount   float64   `json:"netAmount"`
		Category    string    `json:"category"`
	}

	// BreakdownEntry is one materially significant record of the impact
	// breakdown, tagged by the sign of the observer's net amount.
	BreakdownEntry struct {
		ID          int64     `json:"id"`
		Date        time.Time `json:"date"`
		Description string    `json:"description"`
		Amount      float64   `json:"amount"`
		IsPositive  bool      `json:"isPositive"`
		Category    string    `json:"category"`
	}

	// ShareSummary is the observer's cumulative paid and owed share.
	ShareSummary struct {
		Paid float64 `json:"paid"`
		Owed float64 `json:"owed"`
	}

	// Dashboard is the full derived view set for one observer. It is a pure
	// function of its inputs and replaced wholesale on every recomputation.
	Dashboard struct {
		BalanceHistory       []BalancePoint   `json:"balanceHistory"`
		CategoryDistribution []CategoryTotal  `json:"categoryDistribution"`
		UserDebts            []DebtEntry      `json:"userDebts"`
		RecentTransactions   []Transaction    `json:"recentTransactions"`
		ExpenseBreakdown     []BreakdownEntry `json:"expenseBreakdown"`
		Balance              float64          `json:"balance"`
		Summary              ShareSummary     `json:"summary"`
	}
)

// debtTotals accumulates repayment flows against one counterparty.
type debtTotals struct {
	owedTo   decimal.Decimal64p2 // observer owes counterparty
	owedFrom decimal.Decimal64p2 // counterparty owes observer
}

// aggregator holds the five concurrent accumulations of one pass.
type aggregator struct {
	observerID int64

	runningBalance decimal.Decimal64p2
	totalPaid      decimal.Decimal64p2
	totalOwed      decimal.Decimal64p2

	history    []BalancePoint
	categories map[string]decimal.Decimal64p2
	debts      map[int64]*debtTotals
	feed       []Transaction
	breakdown  []BreakdownEntry
}

// Aggregate derives the dashboard views for one observer from a batch of
// normalized expense records and the group's member roster.
//
// The pass is single-threaded and pure: records are sorted ascending by date
// (stable, so equal dates keep their batch order) and folded once. Records
// without a participation for the observer contribute nothing. An observerID
// of zero is the defined no-op and yields the empty view set.
func Aggregate(records []ExpenseRecord, observerID int64, members []Member) Dashboard {
	if observerID == 0 {
		return emptyDashboard()
	}

	sorted := make([]ExpenseRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	agg := &aggregator{
		observerID: observerID,
		history:    []BalancePoint{},
		categories: map[string]decimal.Decimal64p2{},
		debts:      map[int64]*debtTotals{},
		feed:       []Transaction{},
		breakdown:  []BreakdownEntry{},
	}
	for _, rec := range sorted {
		agg.foldSafe(rec)
	}

	return agg.finish(members)
}

// foldSafe contains a panic while folding one record so a single corrupt item
// can never blank the whole dashboard. The record is skipped and logged; any
// contributions it made before panicking stand.
func (a *aggregator) foldSafe(rec ExpenseRecord) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("skipping expense record after processing failure",
				"expense_id", rec.ID,
				"reason", fmt.Sprint(r))
		}
	}()
	a.fold(rec)
}

func (a *aggregator) fold(rec ExpenseRecord) {
	part, ok := rec.Participation(a.observerID)
	if !ok {
		return
	}

	a.totalPaid += part.PaidShare
	a.totalOwed += part.OwedShare
	a.runningBalance += part.NetBalance

	a.history = append(a.history, BalancePoint{
		ID:             rec.ID,
		Date:           rec.Date,
		Label:          fmt.Sprintf("%d/%d", int(rec.Date.Month()), rec.Date.Day()),
		Description:    rec.Description,
		IsPayment:      rec.IsPayment,
		Amount:         rec.Cost.AsFloat64(),
		PaidShare:      part.PaidShare.AsFloat64(),
		OwedShare:      part.OwedShare.AsFloat64(),
		NetAmount:      part.NetBalance.AsFloat64(),
		RunningBalance: a.runningBalance.AsFloat64(),
	})

	// Settlement transfers carry no category weight.
	if !rec.IsPayment {
		a.categories[rec.Category] += part.OwedShare
	}

	for _, rep := range rec.Repayments {
		switch a.observerID {
		case rep.From:
			a.debt(rep.To).owedTo += rep.Amount
		case rep.To:
			a.debt(rep.From).owedFrom += rep.Amount
		}
	}

	a.feed = append(a.feed, Transaction{
		ID:          rec.ID,
		Date:        rec.Date,
		Description: rec.Description,
		IsPayment:   rec.IsPayment,
		Amount:      rec.Cost.AsFloat64(),
		PaidShare:   part.PaidShare.AsFloat64(),
		OwedShare:   part.OwedShare.AsFloat64(),
		NetAmount:   part.NetBalance.AsFloat64(),
		Category:    rec.Category,
	})

	if abs(part.NetBalance) > materialityThreshold {
		a.breakdown = append(a.breakdown, BreakdownEntry{
			ID:          rec.ID,
			Date:        rec.Date,
			Description: rec.Description,
			Amount:      abs(part.NetBalance).AsFloat64(),
			IsPositive:  part.NetBalance > 0,
			Category:    rec.Category,
		})
	}
}

func (a *aggregator) debt(userID int64) *debtTotals {
	d, ok := a.debts[userID]
	if !ok {
		d = &debtTotals{}
		a.debts[userID] = d
	}
	return d
}

// finish turns the accumulators into their sorted, filtered output views.
func (a *aggregator) finish(members []Member) Dashboard {
	categories := make([]CategoryTotal, 0, len(a.categories))
	for name, total := range a.categories {
		if total > 0 {
			categories = append(categories, CategoryTotal{Name: name, Value: total.AsFloat64()})
		}
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Value != categories[j].Value {
			return categories[i].Value > categories[j].Value
		}
		return categories[i].Name < categories[j].Name
	})

	names := make(map[int64]string, len(members))
	for _, m := range members {
		names[m.ID] = m.DisplayName()
	}

	debts := make([]DebtEntry, 0, len(a.debts))
	for userID, d := range a.debts {
		if d.owedTo == 0 && d.owedFrom == 0 {
			continue
		}
		name, ok := names[userID]
		if !ok {
			name = fmt.Sprintf("User %d", userID)
		}
		debts = append(debts, DebtEntry{
			UserID:     userID,
			Name:       name,
			YouOwe:     d.owedTo.AsFloat64(),
			TheyOwe:    d.owedFrom.AsFloat64(),
			NetBalance: (d.owedFrom - d.owedTo).AsFloat64(),
		})
	}
	sort.Slice(debts, func(i, j int) bool {
		bi, bj := absf(debts[i].NetBalance), absf(debts[j].NetBalance)
		if bi != bj {
			return bi > bj
		}
		return debts[i].UserID < debts[j].UserID
	})

	feed := a.feed
	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].Date.After(feed[j].Date)
	})
	if len(feed) > recentTransactionLimit {
		feed = feed[:recentTransactionLimit]
	}

	sort.SliceStable(a.breakdown, func(i, j int) bool {
		return a.breakdown[i].Amount > a.breakdown[j].Amount
	})

	return Dashboard{
		BalanceHistory:       a.history,
		CategoryDistribution: categories,
		UserDebts:            debts,
		RecentTransactions:   feed,
		ExpenseBreakdown:     a.breakdown,
		Balance:              a.runningBalance.AsFloat64(),
		Summary: ShareSummary{
			Paid: a.totalPaid.AsFloat64(),
			Owed: a.totalOwed.AsFloat64(),
		},
	}
}

func emptyDashboard() Dashboard {
	return Dashboard{
		BalanceHistory:       []BalancePoint{},
		CategoryDistribution: []CategoryTotal{},
		UserDebts:            []DebtEntry{},
		RecentTransactions:   []Transaction{},
		ExpenseBreakdown:     []BreakdownEntry{},
	}
}

func abs(d decimal.Decimal64p2) decimal.Decimal64p2 {
	if d < 0 {
		return -d
	}
	return d
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
