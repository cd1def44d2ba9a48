// Package services implements the recurring-charge engine: detection of
// candidate groups, their materialization, single-transaction membership
// and the group registry.
package services

import (
	"context"
	"time"

	"cadenza/internal/amqp"
	"cadenza/internal/core"
	"cadenza/internal/log"
)

// CandidateStore holds the candidates of the latest detection run.
type CandidateStore interface {
	// ReplaceCurrent makes candidates the only resolvable set.
	ReplaceCurrent(ctx context.Context, candidates []core.DetectionCandidate) error
	Lookup(ctx context.Context, handle string) (core.DetectionCandidate, bool, error)
	Remove(ctx context.Context, handle string) error
}

// EventPublisher announces committed changes. Publishing never fails the
// operation that triggered it.
type EventPublisher interface {
	Publish(ctx context.Context, event amqp.GroupEvent) error
}

const eventTimeout = 5 * time.Second

func publish(ctx context.Context, logger *log.Logger, events EventPublisher, event amqp.GroupEvent) {
	if events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(log.NewContext(context.WithoutCancel(ctx), logger), eventTimeout)
	defer cancel()

	if err := events.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish group event",
			log.FieldEventType, event.Type,
			log.FieldGroupID, event.GroupID,
			log.FieldError, err)
	}
}

func componentLogger(logger *log.Logger, component string) *log.Logger {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return logger.WithComponent(component)
}
