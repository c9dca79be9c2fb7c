package core

import (
	"strings"
	"time"

	"github.com/strongo/decimal"
)

const (
	// FallbackDescription replaces a missing or blank expense description so
	// downstream views never render an empty label.
	FallbackDescription = "(no description)"

	// FallbackCategory is the bucket for expenses the upstream service left
	// uncategorized. It must stay distinct from any real category name.
	FallbackCategory = "Uncategorized"
)

type (
	// RawExpense is one expense item as the upstream service encodes it:
	// monetary fields are strings, the category is an optional object and the
	// payment flag and repayments list may be absent entirely.
	RawExpense struct {
		ID          int64              `json:"id"`
		Description string             `json:"description"`
		Cost        string             `json:"cost"`
		Date        string             `json:"date"`
		CreatedAt   string             `json:"created_at"`
		Payment     *bool              `json:"payment"`
		Category    *RawCategory       `json:"category"`
		Users       []RawParticipation `json:"users"`
		Repayments  []RawRepayment     `json:"repayments"`
	}

	RawCategory struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	// RawParticipation is one user's stake in an expense, with the three
	// string-encoded share amounts the upstream supplies.
	RawParticipation struct {
		UserID     int64  `json:"user_id"`
		PaidShare  string `json:"paid_share"`
		OwedShare  string `json:"owed_share"`
		NetBalance string `json:"net_balance"`
	}

	// RawRepayment is a directed money flow attached to an expense.
	RawRepayment struct {
		From   int64  `json:"from"`
		To     int64  `json:"to"`
		Amount string `json:"amount"`
	}

	// ExpenseRecord is the normalized, typed form of a RawExpense. All
	// monetary fields are fixed-point decimals and every optional upstream
	// field has been defaulted, so consumers never see a missing value.
	ExpenseRecord struct {
		ID             int64
		Description    string
		Cost           decimal.Decimal64p2
		Date           time.Time
		IsPayment      bool
		Category       string
		Participations []Participation
		Repayments     []Repayment
	}

	// Participation carries the observer-relevant share amounts for one user.
	// NetBalance is upstream-supplied and not recomputed from the shares.
	Participation struct {
		UserID     int64
		PaidShare  decimal.Decimal64p2
		OwedShare  decimal.Decimal64p2
		NetBalance decimal.Decimal64p2
	}

	// Repayment is a debtor→creditor flow. Direction is significant.
	Repayment struct {
		From   int64
		To     int64
		Amount decimal.Decimal64p2
	}

	// Member is one entry of a group roster, used to resolve display names
	// for the debt ledger.
	Member struct {
		ID        int64
		FirstName string
		LastName  string
	}

	// Group is a shared-expense group with its member roster.
	Group struct {
		ID      int64
		Name    string
		Members []Member
	}

	// User is the authenticated upstream user.
	User struct {
		ID        int64
		FirstName string
		LastName  string
		Email     string
	}
)

// upstream date format, e.g. "2024-03-01T18:22:40Z"; some endpoints return
// plain calendar dates.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// NormalizeExpense coerces one upstream item into a typed ExpenseRecord. It is
// a pure transform and never fails: malformed amounts become zero, missing
// optional fields take their documented fallbacks. One broken item must not
// poison a whole batch.
func NormalizeExpense(raw RawExpense) ExpenseRecord {
	rec := ExpenseRecord{
		ID:          raw.ID,
		Description: strings.TrimSpace(raw.Description),
		Cost:        ParseAmount(raw.Cost),
		Date:        parseDate(raw.Date),
		Category:    FallbackCategory,
	}
	if rec.Description == "" {
		rec.Description = FallbackDescription
	}
	if raw.Payment != nil {
		rec.IsPayment = *raw.Payment
	}
	if raw.Category != nil && strings.TrimSpace(raw.Category.Name) != "" {
		rec.Category = raw.Category.Name
	}

	rec.Participations = make([]Participation, 0, len(raw.Users))
	for _, u := range raw.Users {
		rec.Participations = append(rec.Participations, Participation{
			UserID:     u.UserID,
			PaidShare:  ParseAmount(u.PaidShare),
			OwedShare:  ParseAmount(u.OwedShare),
			NetBalance: ParseAmount(u.NetBalance),
		})
	}

	rec.Repayments = make([]Repayment, 0, len(raw.Repayments))
	for _, r := range raw.Repayments {
		rec.Repayments = append(rec.Repayments, Repayment{
			From:   r.From,
			To:     r.To,
			Amount: ParseAmount(r.Amount),
		})
	}

	return rec
}

// NormalizeExpenses maps a whole upstream batch through NormalizeExpense.
func NormalizeExpenses(raw []RawExpense) []ExpenseRecord {
	records := make([]ExpenseRecord, 0, len(raw))
	for _, r := range raw {
		records = append(records, NormalizeExpense(r))
	}
	return records
}

// ParseAmount parses an upstream monetary string. Any parse failure (empty,
// non-numeric, null-ish) yields exactly zero rather than an error; the
// upstream data is best-effort and a bad amount must contribute nothing.
func ParseAmount(s string) decimal.Decimal64p2 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.ParseDecimal64p2(s)
	if err != nil {
		return 0
	}
	return d
}

// parseDate parses the upstream date string. Unparsable dates become the zero
// time, which sorts before every real date.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Participation returns the entry for the given user, if any.
func (r ExpenseRecord) Participation(userID int64) (Participation, bool) {
	for _, p := range r.Participations {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participation{}, false
}

// DisplayName renders the member name shown in the debt ledger.
func (m Member) DisplayName() string {
	if m.LastName != "" {
		return m.FirstName + " " + m.LastName
	}
	return m.FirstName
}
