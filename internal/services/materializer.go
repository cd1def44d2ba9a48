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

// Materializer turns an accepted detection candidate into a persisted group
// with its transactions linked, in one database transaction.
type Materializer struct {
	repo       storage.Repository
	candidates CandidateStore
	events     EventPublisher
	logger     *log.Logger
	now        func() time.Time
	newID      func() string
}

func NewMaterializer(repo storage.Repository, candidates CandidateStore, events EventPublisher, logger *log.Logger) *Materializer {
	return &Materializer{
		repo:       repo,
		candidates: candidates,
		events:     events,
		logger:     componentLogger(logger, log.ComponentMaterializer),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Apply materializes the current candidate identified by handle. Unknown or
// stale handles fail with InvalidRequest. A consumed candidate cannot be
// applied twice.
func (m *Materializer) Apply(ctx context.Context, handle string) (core.RecurringGroup, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return core.RecurringGroup{}, core.InvalidRequest("candidate", "", "handle is required")
	}
	if m.candidates == nil {
		return core.RecurringGroup{}, core.InvalidRequest("candidate", handle, "no current detection run")
	}

	candidate, ok, err := m.candidates.Lookup(ctx, handle)
	if err != nil {
		return core.RecurringGroup{}, fmt.Errorf("lookup candidate: %w", err)
	}
	if !ok {
		return core.RecurringGroup{}, core.InvalidRequest("candidate", handle, "no current candidate matches handle")
	}

	group, err := m.Materialize(ctx, candidate)
	if err != nil {
		return core.RecurringGroup{}, err
	}

	if err := m.candidates.Remove(ctx, handle); err != nil {
		m.logger.WarnContext(ctx, "Failed to discard applied candidate",
			log.FieldHandle, handle,
			log.FieldError, err)
	}
	return group, nil
}

// Materialize persists candidate as a new group. Every transaction id must
// exist and be unlinked; otherwise nothing is written.
func (m *Materializer) Materialize(ctx context.Context, candidate core.DetectionCandidate) (core.RecurringGroup, error) {
	ids := candidate.UniqueTransactionIDs()
	if len(ids) == 0 {
		return core.RecurringGroup{}, core.InvalidRequest("candidate", candidate.Handle, "no transaction ids")
	}
	freq, err := core.ParseFrequency(string(candidate.Frequency))
	if err != nil {
		return core.RecurringGroup{}, err
	}

	name := strings.TrimSpace(candidate.SuggestedName)
	if name == "" {
		name = candidate.MerchantPattern
	}

	group := core.RecurringGroup{
		ID:              m.newID(),
		Name:            truncate(name, 100),
		MerchantPattern: truncate(candidate.MerchantPattern, 255),
		ExpectedAmount:  decimal.NewNullDecimal(candidate.AverageAmount.Abs()),
		AmountVariance:  decimal.NewNullDecimal(core.DefaultAmountVariance),
		Frequency:       freq,
		IsActive:        true,
		CreatedAt:       m.now().UTC(),
	}

	err = m.repo.WithTx(ctx, func(q storage.Querier) error {
		txns, err := q.GetTransactions(ctx, ids)
		if err != nil {
			return fmt.Errorf("load candidate transactions: %w", err)
		}
		if err := checkMaterializable(ids, txns); err != nil {
			return err
		}

		for _, t := range txns {
			if t.Date.After(group.LastSeenDate) {
				group.LastSeenDate = t.Date
			}
		}
		if err := group.Recompute(); err != nil {
			return err
		}
		if err := group.Validate(); err != nil {
			return invalidGroup(group.ID, err)
		}

		if err := q.InsertGroup(ctx, group); err != nil {
			return fmt.Errorf("insert group: %w", err)
		}
		return linkTransactions(ctx, q, ids, group.ID)
	})
	if err != nil {
		return core.RecurringGroup{}, err
	}

	m.logger.InfoContext(ctx, "Materialized recurring group",
		log.NewFields().
			WithOperation(log.OpMaterialize).
			WithGroup(group.ID, group.Name, group.Frequency.String()).
			WithCandidate(candidate.Handle, candidate.MerchantPattern, candidate.Confidence).
			ToSlice()...)

	publish(ctx, m.logger, m.events, amqp.NewGroupEvent(amqp.EventGroupCreated, group.ID, ids...))
	return group, nil
}

// checkMaterializable rejects the collaborator's ids unless all of them name
// existing transactions that belong to no group.
func checkMaterializable(ids []string, txns []core.Transaction) error {
	byID := make(map[string]core.Transaction, len(txns))
	for _, t := range txns {
		byID[t.ID] = t
	}
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return core.NotFound("transaction", id)
		}
		if t.RecurringGroupID != "" {
			return core.InvalidRequest("transaction", id, "already linked to recurring group "+t.RecurringGroupID)
		}
	}
	return nil
}
