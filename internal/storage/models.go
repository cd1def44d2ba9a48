package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cadenza/internal/core"
)

// RecurringGroup mirrors a row of recurring_groups.
type RecurringGroup struct {
	ID               string
	Name             string
	MerchantPattern  string
	ExpectedAmount   decimal.NullDecimal
	AmountVariance   decimal.NullDecimal
	Frequency        string
	CategoryID       sql.NullString
	LastSeenDate     sql.NullString
	NextExpectedDate sql.NullString
	IsActive         bool
	CreatedAt        string
}

// Transaction mirrors a row of transactions.
type Transaction struct {
	ID               string
	Date             string
	Amount           decimal.Decimal
	RawDescription   string
	CleanMerchant    sql.NullString
	CategoryID       sql.NullString
	RecurringGroupID sql.NullString
	IsRecurring      bool
}

func groupFromCore(g core.RecurringGroup) RecurringGroup {
	return RecurringGroup{
		ID:               g.ID,
		Name:             g.Name,
		MerchantPattern:  g.MerchantPattern,
		ExpectedAmount:   g.ExpectedAmount,
		AmountVariance:   g.AmountVariance,
		Frequency:        string(g.Frequency),
		CategoryID:       nullString(g.CategoryID),
		LastSeenDate:     nullString(g.LastSeenDate.String()),
		NextExpectedDate: nullString(g.NextExpectedDate.String()),
		IsActive:         g.IsActive,
		CreatedAt:        g.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (r RecurringGroup) toCore() (core.RecurringGroup, error) {
	g := core.RecurringGroup{
		ID:              r.ID,
		Name:            r.Name,
		MerchantPattern: r.MerchantPattern,
		ExpectedAmount:  r.ExpectedAmount,
		AmountVariance:  r.AmountVariance,
		Frequency:       core.Frequency(r.Frequency),
		CategoryID:      r.CategoryID.String,
		IsActive:        r.IsActive,
	}
	var err error
	if g.LastSeenDate, err = parseNullDate(r.LastSeenDate); err != nil {
		return g, fmt.Errorf("group %s last_seen_date: %w", r.ID, err)
	}
	if g.NextExpectedDate, err = parseNullDate(r.NextExpectedDate); err != nil {
		return g, fmt.Errorf("group %s next_expected_date: %w", r.ID, err)
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339Nano, r.CreatedAt); err != nil {
		return g, fmt.Errorf("group %s created_at: %w", r.ID, err)
	}
	return g, nil
}

func transactionFromCore(t core.Transaction) Transaction {
	return Transaction{
		ID:               t.ID,
		Date:             t.Date.String(),
		Amount:           t.Amount,
		RawDescription:   t.RawDescription,
		CleanMerchant:    nullString(t.CleanMerchant),
		CategoryID:       nullString(t.CategoryID),
		RecurringGroupID: nullString(t.RecurringGroupID),
		IsRecurring:      t.RecurringGroupID != "",
	}
}

func (r Transaction) toCore() (core.Transaction, error) {
	d, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s date: %w", r.ID, err)
	}
	return core.Transaction{
		ID:               r.ID,
		Date:             d,
		Amount:           r.Amount,
		RawDescription:   r.RawDescription,
		CleanMerchant:    r.CleanMerchant.String,
		CategoryID:       r.CategoryID.String,
		RecurringGroupID: r.RecurringGroupID.String,
		IsRecurring:      r.IsRecurring,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseNullDate(s sql.NullString) (core.Date, error) {
	if !s.Valid || s.String == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s.String)
}
