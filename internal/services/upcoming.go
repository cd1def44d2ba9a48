package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"cadenza/internal/core"
)

// Renewal is an active group expected to charge again soon.
type Renewal struct {
	Group     core.RecurringGroup
	DaysUntil int // negative when overdue
}

type UpcomingRenewals struct {
	Renewals []Renewal
	Total    decimal.Decimal // sum of known expected amounts
}

// Upcoming lists active groups whose next expected date falls on or before
// asOf plus days, soonest first. Overdue groups are included.
func (r *Registry) Upcoming(ctx context.Context, asOf time.Time, days int) (UpcomingRenewals, error) {
	if days < 0 {
		return UpcomingRenewals{}, core.InvalidRequest("upcoming", "", "days cannot be negative")
	}
	groups, err := r.repo.ListGroups(ctx, false)
	if err != nil {
		return UpcomingRenewals{}, fmt.Errorf("list groups: %w", err)
	}

	today := core.DateOf(asOf)
	cutoff := core.DateOf(today.AddDate(0, 0, days))

	out := UpcomingRenewals{Renewals: []Renewal{}, Total: decimal.Zero}
	for _, g := range groups {
		if g.NextExpectedDate.IsEmpty() || g.NextExpectedDate.After(cutoff) {
			continue
		}
		out.Renewals = append(out.Renewals, Renewal{
			Group:     g,
			DaysUntil: daysBetween(today, g.NextExpectedDate),
		})
		if g.ExpectedAmount.Valid {
			out.Total = out.Total.Add(g.ExpectedAmount.Decimal)
		}
	}

	slices.SortStableFunc(out.Renewals, func(a, b Renewal) int {
		return a.Group.NextExpectedDate.Compare(b.Group.NextExpectedDate.Time)
	})
	return out, nil
}

func daysBetween(from, to core.Date) int {
	return int(to.Sub(from.Time).Hours() / 24)
}
