package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"cadenza/internal/core"
)

const defaultCandidateKey = "recurring:candidates:current"

// NewRedisClient connects to the Redis server at url (redis://...).
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	slog.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr)
	return client, nil
}

// RedisCandidateStore keeps the current detection run in one Redis hash
// (handle -> candidate JSON) so that separate processes can detect and
// apply.
type RedisCandidateStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

type candidateRecord struct {
	Handle          string          `json:"handle"`
	MerchantPattern string          `json:"merchant_pattern"`
	SuggestedName   string          `json:"suggested_name"`
	TransactionIDs  []string        `json:"transaction_ids"`
	Frequency       string          `json:"frequency"`
	AverageAmount   decimal.Decimal `json:"average_amount"`
	Confidence      float64         `json:"confidence"`
}

func NewRedisCandidateStore(client redis.UniversalClient, key string, ttl time.Duration) *RedisCandidateStore {
	if key == "" {
		key = defaultCandidateKey
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCandidateStore{client: client, key: key, ttl: ttl}
}

func (s *RedisCandidateStore) ReplaceCurrent(ctx context.Context, candidates []core.DetectionCandidate) error {
	fields := make([]any, 0, len(candidates)*2)
	for _, c := range candidates {
		body, err := json.Marshal(candidateRecord{
			Handle:          c.Handle,
			MerchantPattern: c.MerchantPattern,
			SuggestedName:   c.SuggestedName,
			TransactionIDs:  c.TransactionIDs,
			Frequency:       string(c.Frequency),
			AverageAmount:   c.AverageAmount,
			Confidence:      c.Confidence,
		})
		if err != nil {
			return fmt.Errorf("marshal candidate %s: %w", c.Handle, err)
		}
		fields = append(fields, c.Handle, body)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields...)
			pipe.Expire(ctx, s.key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store candidates: %w", err)
	}
	return nil
}

func (s *RedisCandidateStore) Lookup(ctx context.Context, handle string) (core.DetectionCandidate, bool, error) {
	body, err := s.client.HGet(ctx, s.key, handle).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.DetectionCandidate{}, false, nil
	}
	if err != nil {
		return core.DetectionCandidate{}, false, fmt.Errorf("lookup candidate %s: %w", handle, err)
	}

	var rec candidateRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return core.DetectionCandidate{}, false, fmt.Errorf("decode candidate %s: %w", handle, err)
	}
	return core.DetectionCandidate{
		Handle:          rec.Handle,
		MerchantPattern: rec.MerchantPattern,
		SuggestedName:   rec.SuggestedName,
		TransactionIDs:  rec.TransactionIDs,
		Frequency:       core.Frequency(rec.Frequency),
		AverageAmount:   rec.AverageAmount,
		Confidence:      rec.Confidence,
	}, true, nil
}

func (s *RedisCandidateStore) Remove(ctx context.Context, handle string) error {
	if err := s.client.HDel(ctx, s.key, handle).Err(); err != nil {
		return fmt.Errorf("remove candidate %s: %w", handle, err)
	}
	return nil
}
