package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cadenza/internal/amqp"
	"cadenza/internal/cache"
	"cadenza/internal/core"
	"cadenza/internal/log"
	"cadenza/internal/storage"
)

var errInjected = errors.New("injected failure")

func newTestRepository(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "recurring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newCandidateStore() *cache.MemoryCandidateStore {
	return cache.NewMemoryCandidateStore(100, time.Hour)
}

func seedTransaction(t *testing.T, repo storage.Repository, id string, date core.Date, amount, merchant string) core.Transaction {
	t.Helper()
	txn := core.Transaction{
		ID:             id,
		Date:           date,
		Amount:         decimal.RequireFromString(amount),
		RawDescription: "POS " + merchant,
		CleanMerchant:  merchant,
	}
	require.NoError(t, repo.InsertTransaction(context.Background(), txn))
	return txn
}

func seedGroup(t *testing.T, repo storage.Repository, id, name string, freq core.Frequency, lastSeen core.Date) core.RecurringGroup {
	t.Helper()
	g := core.RecurringGroup{
		ID:              id,
		Name:            name,
		MerchantPattern: name,
		ExpectedAmount:  decimal.NewNullDecimal(decimal.RequireFromString("9.99")),
		AmountVariance:  decimal.NewNullDecimal(core.DefaultAmountVariance),
		Frequency:       freq,
		LastSeenDate:    lastSeen,
		IsActive:        true,
		CreatedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, g.Recompute())
	require.NoError(t, repo.InsertGroup(context.Background(), g))
	return g
}

func requireTransaction(t *testing.T, repo storage.Repository, id string) core.Transaction {
	t.Helper()
	txn, err := repo.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return txn
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.GroupEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e amqp.GroupEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Events() []amqp.GroupEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]amqp.GroupEvent(nil), p.events...)
}

// faultyRepository hands WithTx callbacks a Querier whose overridden
// statements fail after running.
type faultyRepository struct {
	storage.Repository
	wrap func(storage.Querier) storage.Querier
}

func (r faultyRepository) WithTx(ctx context.Context, fn func(q storage.Querier) error) error {
	return r.Repository.WithTx(ctx, func(q storage.Querier) error {
		return fn(r.wrap(q))
	})
}

// halfLinkingQuerier links only the first transaction of a bulk link and
// then fails.
type halfLinkingQuerier struct {
	storage.Querier
}

func (q halfLinkingQuerier) SetTransactionsGroup(ctx context.Context, ids []string, groupID string) (int64, error) {
	if len(ids) > 0 {
		if err := q.Querier.SetTransactionGroup(ctx, ids[0], groupID); err != nil {
			return 0, err
		}
	}
	return 1, errInjected
}

type failingUpdateQuerier struct {
	storage.Querier
}

func (q failingUpdateQuerier) UpdateGroup(context.Context, core.RecurringGroup) error {
	return errInjected
}

func testLogger() *log.Logger {
	return log.Nop()
}

// bufferLogger returns a logger writing JSON records to buf.
func bufferLogger() (*log.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return log.New(log.Config{Handler: slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})}), buf
}

func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var r map[string]any
		require.NoError(t, dec.Decode(&r))
		records = append(records, r)
	}
	return records
}

func findRecord(records []map[string]any, level, msg string) (map[string]any, bool) {
	for _, r := range records {
		if r[slog.LevelKey] == level && r[slog.MessageKey] == msg {
			return r, true
		}
	}
	return nil, false
}
