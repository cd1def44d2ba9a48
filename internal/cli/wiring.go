package cli

import (
	"context"
	"fmt"

	"cadenza/internal/amqp"
	"cadenza/internal/cache"
	"cadenza/internal/config"
	"cadenza/internal/log"
	"cadenza/internal/patterns"
	"cadenza/internal/patterns/gemini"
	"cadenza/internal/patterns/openai"
	"cadenza/internal/patterns/static"
	"cadenza/internal/services"
)

// NewCollaborator builds the pattern collaborator named by
// cfg.PatternProvider.
func NewCollaborator(ctx context.Context, cfg *config.Config) (patterns.Collaborator, error) {
	switch cfg.PatternProvider {
	case config.ProviderGemini:
		return gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case config.ProviderOpenAI:
		return openai.NewClient(cfg.LLMEndpoint, cfg.LLMAPIKey, cfg.LLMModel), nil
	case config.ProviderStatic:
		if cfg.PatternsFile == "" {
			return static.New(), nil
		}
		return static.FromFile(cfg.PatternsFile)
	default:
		return nil, fmt.Errorf("unknown pattern provider %q", cfg.PatternProvider)
	}
}

// CandidateStore is a services.CandidateStore that owns resources.
type CandidateStore interface {
	services.CandidateStore
	Close() error
}

type memoryStore struct {
	*cache.MemoryCandidateStore
	manager *cache.Manager
}

func (s memoryStore) Close() error {
	s.manager.Stop()
	return nil
}

type redisStore struct {
	*cache.RedisCandidateStore
	close func() error
}

func (s redisStore) Close() error { return s.close() }

// NewCandidateStore builds the store named by cfg.CandidateStore. Only the
// redis store keeps handles across processes.
func NewCandidateStore(ctx context.Context, cfg *config.Config) (CandidateStore, error) {
	switch cfg.CandidateStore {
	case config.StoreMemory:
		store := cache.NewMemoryCandidateStore(cfg.CandidateCacheSize, cfg.CandidateTTL)
		manager := cache.NewManager()
		manager.Register(store)
		manager.StartCleanup(cfg.CandidateTTL)
		return memoryStore{MemoryCandidateStore: store, manager: manager}, nil
	case config.StoreRedis:
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return redisStore{
			RedisCandidateStore: cache.NewRedisCandidateStore(client, "", cfg.CandidateTTL),
			close:               client.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown candidate store %q", cfg.CandidateStore)
	}
}

// NewEventPublisher connects to AMQP when configured. When AMQP is
// disabled or unreachable it returns a nil publisher and events are
// skipped. The returned close func is never nil.
func NewEventPublisher(logger *log.Logger, cfg *config.Config) (services.EventPublisher, func() error) {
	noop := func() error { return nil }
	if cfg.AMQPURL == "" {
		logger.Debug("AMQP not configured, group events disabled")
		return nil, noop
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
	if err != nil {
		logger.Warn("AMQP unavailable, group events disabled",
			log.FieldErrorType, log.ErrorTypeNetwork,
			log.FieldError, err)
		return nil, noop
	}
	return client, client.Close
}
