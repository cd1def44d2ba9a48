package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cadenza/internal/amqp"
	"cadenza/internal/core"
	"cadenza/internal/log"
	"cadenza/internal/storage"
)

// NewGroup holds the fields of a manually created group. Frequency is
// required; AmountVariance stays unset unless given.
type NewGroup struct {
	Name            string
	MerchantPattern string
	ExpectedAmount  *decimal.Decimal
	AmountVariance  *decimal.Decimal
	Frequency       core.Frequency
	CategoryID      string
}

// GroupUpdate is a partial update: nil fields are left unchanged. An empty
// CategoryID clears the category.
type GroupUpdate struct {
	Name            *string
	MerchantPattern *string
	ExpectedAmount  *decimal.Decimal
	AmountVariance  *decimal.Decimal
	Frequency       *core.Frequency
	CategoryID      *string
	IsActive        *bool
}

func (u GroupUpdate) IsEmpty() bool {
	return u == GroupUpdate{}
}

// Registry reads and maintains persisted groups.
type Registry struct {
	repo   storage.Repository
	events EventPublisher
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

func NewRegistry(repo storage.Repository, events EventPublisher, logger *log.Logger) *Registry {
	return &Registry{
		repo:   repo,
		events: events,
		logger: componentLogger(logger, log.ComponentRegistry),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// List returns groups ordered by name, inactive ones only when asked.
func (r *Registry) List(ctx context.Context, includeInactive bool) ([]core.RecurringGroup, error) {
	groups, err := r.repo.ListGroups(ctx, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (r *Registry) Get(ctx context.Context, id string) (core.RecurringGroup, error) {
	return r.repo.GetGroup(ctx, id)
}

// TransactionCount reports how many transactions are linked to group id.
func (r *Registry) TransactionCount(ctx context.Context, id string) (int64, error) {
	if _, err := r.repo.GetGroup(ctx, id); err != nil {
		return 0, err
	}
	return r.repo.CountGroupTransactions(ctx, id)
}

// Create stores a group with no members and therefore no cadence dates.
func (r *Registry) Create(ctx context.Context, in NewGroup) (core.RecurringGroup, error) {
	if strings.TrimSpace(string(in.Frequency)) == "" {
		return core.RecurringGroup{}, core.InvalidRequest("recurring group", "", "frequency is required")
	}
	freq, err := core.ParseFrequency(string(in.Frequency))
	if err != nil {
		return core.RecurringGroup{}, err
	}

	g := core.RecurringGroup{
		ID:              r.newID(),
		Name:            strings.TrimSpace(in.Name),
		MerchantPattern: strings.TrimSpace(in.MerchantPattern),
		Frequency:       freq,
		CategoryID:      in.CategoryID,
		IsActive:        true,
		CreatedAt:       r.now().UTC(),
	}
	if in.ExpectedAmount != nil {
		g.ExpectedAmount = decimal.NewNullDecimal(in.ExpectedAmount.Abs())
	}
	if in.AmountVariance != nil {
		g.AmountVariance = decimal.NewNullDecimal(*in.AmountVariance)
	}
	if err := g.Validate(); err != nil {
		return core.RecurringGroup{}, invalidGroup("", err)
	}

	if err := r.repo.InsertGroup(ctx, g); err != nil {
		return core.RecurringGroup{}, fmt.Errorf("insert group: %w", err)
	}

	r.logger.InfoContext(ctx, "Created recurring group",
		log.NewFields().WithOperation(log.OpCreate).WithGroup(g.ID, g.Name, g.Frequency.String()).ToSlice()...)
	publish(ctx, r.logger, r.events, amqp.NewGroupEvent(amqp.EventGroupCreated, g.ID))
	return g, nil
}

// Update applies the supplied fields. Changing the frequency recomputes the
// next expected date from the last seen date.
func (r *Registry) Update(ctx context.Context, id string, u GroupUpdate) (core.RecurringGroup, error) {
	var g core.RecurringGroup
	err := r.repo.WithTx(ctx, func(q storage.Querier) error {
		var err error
		g, err = q.GetGroup(ctx, id)
		if err != nil {
			return err
		}
		if u.IsEmpty() {
			return nil
		}

		if err := u.apply(&g); err != nil {
			return err
		}
		if err := g.Validate(); err != nil {
			return invalidGroup(id, err)
		}
		return q.UpdateGroup(ctx, g)
	})
	if err != nil {
		return core.RecurringGroup{}, err
	}
	if u.IsEmpty() {
		return g, nil
	}

	r.logger.InfoContext(ctx, "Updated recurring group",
		log.NewFields().WithOperation(log.OpUpdate).WithGroup(g.ID, g.Name, g.Frequency.String()).ToSlice()...)
	publish(ctx, r.logger, r.events, amqp.NewGroupEvent(amqp.EventGroupUpdated, g.ID))
	return g, nil
}

func (u GroupUpdate) apply(g *core.RecurringGroup) error {
	if u.Name != nil {
		g.Name = strings.TrimSpace(*u.Name)
	}
	if u.MerchantPattern != nil {
		g.MerchantPattern = strings.TrimSpace(*u.MerchantPattern)
	}
	if u.ExpectedAmount != nil {
		g.ExpectedAmount = decimal.NewNullDecimal(u.ExpectedAmount.Abs())
	}
	if u.AmountVariance != nil {
		g.AmountVariance = decimal.NewNullDecimal(*u.AmountVariance)
	}
	if u.CategoryID != nil {
		g.CategoryID = strings.TrimSpace(*u.CategoryID)
	}
	if u.IsActive != nil {
		g.IsActive = *u.IsActive
	}
	if u.Frequency != nil {
		freq, err := core.ParseFrequency(string(*u.Frequency))
		if err != nil {
			return err
		}
		if freq != g.Frequency {
			g.Frequency = freq
			if err := g.Recompute(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete unlinks every member transaction and removes the group, atomically.
func (r *Registry) Delete(ctx context.Context, id string) error {
	var unlinked int64
	err := r.repo.WithTx(ctx, func(q storage.Querier) error {
		if _, err := q.GetGroup(ctx, id); err != nil {
			return err
		}
		var err error
		unlinked, err = unlinkGroup(ctx, q, id)
		if err != nil {
			return err
		}
		return q.DeleteGroup(ctx, id)
	})
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Deleted recurring group",
		log.FieldOperation, log.OpDelete,
		log.FieldGroupID, id,
		log.FieldTxnCount, unlinked)
	publish(ctx, r.logger, r.events, amqp.NewGroupEvent(amqp.EventGroupDeleted, id))
	return nil
}
