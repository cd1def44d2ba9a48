package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"cadenza/internal/core"
	"cadenza/internal/log"
	"cadenza/internal/patterns"
	"cadenza/internal/storage"
)

const (
	// MinEligibleTransactions is the smallest batch worth sending to the
	// collaborator.
	MinEligibleTransactions = 5

	// ConfidenceFloor is exclusive: candidates must score above it and at
	// most 1.
	ConfidenceFloor = 0.5
)

// DetectorConfig holds configuration for the detector
type DetectorConfig struct {
	// Lookback bounds how far back eligible transactions are read (default: 365 days)
	Lookback time.Duration

	// Timeout bounds the collaborator round-trip (default: 60s)
	Timeout time.Duration
}

// DefaultDetectorConfig returns sensible defaults
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Lookback: 365 * 24 * time.Hour,
		Timeout:  60 * time.Second,
	}
}

type DetectionResult struct {
	Candidates []core.DetectionCandidate
	Total      int
}

// Detector asks the pattern collaborator for recurring candidates among
// unlinked expenses. It never writes groups or transactions.
type Detector struct {
	repo         storage.Querier
	collaborator patterns.Collaborator
	candidates   CandidateStore
	config       DetectorConfig
	logger       *log.Logger
	now          func() time.Time

	flight singleflight.Group
}

func NewDetector(repo storage.Querier, collaborator patterns.Collaborator, candidates CandidateStore, config DetectorConfig, logger *log.Logger) *Detector {
	defaults := DefaultDetectorConfig()
	if config.Lookback <= 0 {
		config.Lookback = defaults.Lookback
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &Detector{
		repo:         repo,
		collaborator: collaborator,
		candidates:   candidates,
		config:       config,
		logger:       componentLogger(logger, log.ComponentDetector),
		now:          time.Now,
	}
}

// Detect runs one detection pass and makes its candidates the current set.
// Collaborator failures, malformed output and timeouts all yield an empty
// result with a nil error. Concurrent callers share a single pass.
func (d *Detector) Detect(ctx context.Context) (DetectionResult, error) {
	ch := d.flight.DoChan("detect", func() (any, error) {
		return d.detect(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return DetectionResult{}, res.Err
		}
		return res.Val.(DetectionResult), nil
	case <-ctx.Done():
		d.logger.WarnContext(ctx, "Detection abandoned by caller", log.FieldError, ctx.Err())
		return DetectionResult{Candidates: []core.DetectionCandidate{}}, nil
	}
}

func (d *Detector) detect(ctx context.Context) (DetectionResult, error) {
	start := time.Now()
	empty := DetectionResult{Candidates: []core.DetectionCandidate{}}

	eligible, err := d.eligible(ctx)
	if err != nil {
		return DetectionResult{}, err
	}

	if len(eligible) < MinEligibleTransactions {
		d.logger.InfoContext(ctx, "Too few eligible transactions, skipping detection",
			log.FieldEligible, len(eligible))
		return empty, d.store(ctx, nil)
	}

	found, err := d.callCollaborator(ctx, eligible)
	if err != nil {
		fields := log.NewFields().
			WithOperation(log.OpDetect).
			WithErrorType(log.ErrorTypeCollaborator).
			WithError(core.CollaboratorFailure(err))
		fields[log.FieldEligible] = len(eligible)
		d.logger.ErrorContext(ctx, "Pattern detection failed, returning no candidates", fields.ToSlice()...)
		return empty, d.store(ctx, nil)
	}

	candidates := make([]core.DetectionCandidate, 0, len(found))
	for _, p := range found {
		if p.Confidence > 1 {
			d.logger.WarnContext(ctx, "Dropping pattern with out of range confidence",
				log.FieldMerchant, p.MerchantPattern,
				log.FieldConfidence, p.Confidence)
			continue
		}
		// NaN fails this comparison as well.
		if !(p.Confidence > ConfidenceFloor) {
			continue
		}
		candidates = append(candidates, toCandidate(p))
	}

	if err := d.store(ctx, candidates); err != nil {
		return DetectionResult{}, err
	}

	d.logger.InfoContext(ctx, "Detection finished",
		log.FieldEligible, len(eligible),
		log.FieldCandidates, len(candidates),
		"returned", len(found),
		log.FieldDuration, time.Since(start).Milliseconds())

	return DetectionResult{Candidates: candidates, Total: len(candidates)}, nil
}

func (d *Detector) eligible(ctx context.Context) ([]core.Transaction, error) {
	since := core.DateOf(d.now().Add(-d.config.Lookback))
	txns, err := d.repo.ListUnlinkedTransactionsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list eligible transactions: %w", err)
	}

	eligible := txns[:0]
	for _, t := range txns {
		if t.IsExpense() && t.RecurringGroupID == "" {
			eligible = append(eligible, t)
		}
	}
	return eligible, nil
}

func (d *Detector) callCollaborator(ctx context.Context, txns []core.Transaction) ([]patterns.Pattern, error) {
	batch := make([]patterns.TransactionInput, len(txns))
	for i, t := range txns {
		batch[i] = patterns.TransactionInput{
			ID:             t.ID,
			Date:           t.Date.String(),
			Amount:         t.Amount.InexactFloat64(),
			Merchant:       t.Merchant(),
			RawDescription: t.RawDescription,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	found, err := d.collaborator.DetectPatterns(ctx, batch)
	if err != nil {
		return nil, err
	}
	// A late answer is treated like no answer.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

func (d *Detector) store(ctx context.Context, candidates []core.DetectionCandidate) error {
	if d.candidates == nil {
		return nil
	}
	if err := d.candidates.ReplaceCurrent(ctx, candidates); err != nil {
		return fmt.Errorf("store detection candidates: %w", err)
	}
	return nil
}

// toCandidate keeps the collaborator's values as given. Frequencies are
// normalized when recognizable; unknown ones are kept so that apply can
// reject them explicitly.
func toCandidate(p patterns.Pattern) core.DetectionCandidate {
	freq, err := core.ParseFrequency(p.Frequency)
	if err != nil {
		freq = core.Frequency(p.Frequency)
	}
	return core.DetectionCandidate{
		MerchantPattern: p.MerchantPattern,
		SuggestedName:   p.SuggestedName,
		TransactionIDs:  p.TransactionIDs,
		Frequency:       freq,
		AverageAmount:   p.AverageAmount,
		Confidence:      p.Confidence,
	}.WithHandle()
}
