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

// Selector names the group a transaction joins: exactly one of an existing
// group id or a new group spec.
type Selector struct {
	GroupID string
	New     *NewGroupSpec
}

// NewGroupSpec describes an ad hoc group created around one transaction.
// Empty fields take defaults: the transaction's merchant for Name and
// monthly for Frequency.
type NewGroupSpec struct {
	Name       string
	Frequency  core.Frequency
	CategoryID string
}

// MembershipManager links single transactions to groups and back.
type MembershipManager struct {
	repo   storage.Repository
	events EventPublisher
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

func NewMembershipManager(repo storage.Repository, events EventPublisher, logger *log.Logger) *MembershipManager {
	return &MembershipManager{
		repo:   repo,
		events: events,
		logger: componentLogger(logger, log.ComponentMembership),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// MarkRecurring links transactionID to the selected group and advances the
// group's last seen date if the transaction is newer. It returns the group
// as stored after the change.
func (m *MembershipManager) MarkRecurring(ctx context.Context, transactionID string, sel Selector) (core.RecurringGroup, error) {
	sel.GroupID = strings.TrimSpace(sel.GroupID)
	if (sel.GroupID == "") == (sel.New == nil) {
		return core.RecurringGroup{}, core.InvalidRequest("transaction", transactionID,
			"exactly one of an existing group or a new group is required")
	}

	var spec NewGroupSpec
	if sel.New != nil {
		spec = *sel.New
		if spec.Frequency == "" {
			spec.Frequency = core.Monthly
		}
		freq, err := core.ParseFrequency(string(spec.Frequency))
		if err != nil {
			return core.RecurringGroup{}, err
		}
		spec.Frequency = freq
	}

	var group core.RecurringGroup
	created := false
	err := m.repo.WithTx(ctx, func(q storage.Querier) error {
		txn, err := q.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}

		if sel.New != nil {
			group, err = m.newGroup(txn, spec)
			if err != nil {
				return err
			}
			if err := q.InsertGroup(ctx, group); err != nil {
				return fmt.Errorf("insert group: %w", err)
			}
			created = true
		} else {
			group, err = q.GetGroup(ctx, sel.GroupID)
			if err != nil {
				return err
			}
		}

		if err := linkTransaction(ctx, q, txn.ID, group.ID); err != nil {
			return err
		}

		advanced, err := group.Advance(txn.Date)
		if err != nil {
			return err
		}
		if advanced && !created {
			if err := q.UpdateGroup(ctx, group); err != nil {
				return fmt.Errorf("advance group cadence: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return core.RecurringGroup{}, err
	}

	m.logger.InfoContext(ctx, "Marked transaction recurring",
		log.NewFields().
			WithOperation(log.OpMark).
			WithTransaction(transactionID).
			WithGroup(group.ID, group.Name, group.Frequency.String()).
			ToSlice()...)

	if created {
		publish(ctx, m.logger, m.events, amqp.NewGroupEvent(amqp.EventGroupCreated, group.ID, transactionID))
	} else {
		publish(ctx, m.logger, m.events, amqp.NewGroupEvent(amqp.EventTransactionMarked, group.ID, transactionID))
	}
	return group, nil
}

// newGroup builds the ad hoc group for txn. Its cadence is set once the
// transaction is linked.
func (m *MembershipManager) newGroup(txn core.Transaction, spec NewGroupSpec) (core.RecurringGroup, error) {
	merchant := strings.TrimSpace(txn.Merchant())
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = merchant
	}

	g := core.RecurringGroup{
		ID:              m.newID(),
		Name:            truncate(name, 100),
		MerchantPattern: truncate(merchant, 255),
		ExpectedAmount:  decimal.NewNullDecimal(txn.Amount.Abs()),
		AmountVariance:  decimal.NewNullDecimal(core.DefaultAmountVariance),
		Frequency:       spec.Frequency,
		CategoryID:      spec.CategoryID,
		IsActive:        true,
		CreatedAt:       m.now().UTC(),
	}
	if _, err := g.Advance(txn.Date); err != nil {
		return core.RecurringGroup{}, err
	}
	if err := g.Validate(); err != nil {
		return core.RecurringGroup{}, invalidGroup(g.ID, err)
	}
	return g, nil
}

// UnmarkRecurring clears transactionID's group link. The former group's
// last seen date is left as is. Unmarking an unlinked transaction is a
// no-op.
func (m *MembershipManager) UnmarkRecurring(ctx context.Context, transactionID string) error {
	var formerGroup string
	err := m.repo.WithTx(ctx, func(q storage.Querier) error {
		txn, err := q.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		formerGroup = txn.RecurringGroupID
		if formerGroup == "" && !txn.IsRecurring {
			return nil
		}
		return unlinkTransaction(ctx, q, txn.ID)
	})
	if err != nil {
		return err
	}
	if formerGroup == "" {
		return nil
	}

	m.logger.InfoContext(ctx, "Unmarked transaction",
		log.NewFields().
			WithOperation(log.OpUnmark).
			WithTransaction(transactionID).
			WithGroup(formerGroup, "", "").
			ToSlice()...)

	publish(ctx, m.logger, m.events, amqp.NewGroupEvent(amqp.EventTransactionUnmarked, formerGroup, transactionID))
	return nil
}
