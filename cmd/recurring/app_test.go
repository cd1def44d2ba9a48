package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadenza/internal/amqp"
	"cadenza/internal/cache"
	"cadenza/internal/core"
	"cadenza/internal/log"
	"cadenza/internal/patterns"
	"cadenza/internal/patterns/static"
	"cadenza/internal/services"
	"cadenza/internal/storage"
)

type fixture struct {
	app  *app
	repo *storage.SQLiteRepository
	out  *bytes.Buffer
	ids  []string
}

// newFixture seeds five monthly Netflix charges ending last month and a
// collaborator that reports them as one pattern.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "recurring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	start := time.Now().AddDate(0, -6, 0)
	var ids []string
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("t%d", i+1)
		ids = append(ids, id)
		require.NoError(t, repo.InsertTransaction(ctx, core.Transaction{
			ID:             id,
			Date:           core.DateOf(start.AddDate(0, i, 0)),
			Amount:         decimal.RequireFromString("-15.99"),
			RawDescription: "NETFLIX.COM",
			CleanMerchant:  "Netflix",
		}))
	}

	collab := static.New(patterns.Pattern{
		MerchantPattern: "NETFLIX",
		SuggestedName:   "Netflix",
		TransactionIDs:  ids,
		Frequency:       "monthly",
		AverageAmount:   decimal.RequireFromString("15.99"),
		Confidence:      0.9,
	})
	store := cache.NewMemoryCandidateStore(16, time.Hour)
	logger := log.Nop()
	out := &bytes.Buffer{}

	return &fixture{
		app: &app{
			registry:          services.NewRegistry(repo, nil, logger),
			detector:          services.NewDetector(repo, collab, store, services.DefaultDetectorConfig(), logger),
			materializer:      services.NewMaterializer(repo, store, nil, logger),
			membership:        services.NewMembershipManager(repo, nil, logger),
			detectBeforeApply: true,
			out:               out,
			now:               time.Now,
		},
		repo: repo,
		out:  out,
		ids:  ids,
	}
}

func TestRun_DetectAndApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	handle := core.CandidateHandle("NETFLIX", f.ids)

	require.NoError(t, f.app.run(ctx, "detect", nil))
	assert.Contains(t, f.out.String(), handle)
	assert.Contains(t, f.out.String(), "1 candidate(s)")

	f.out.Reset()
	require.NoError(t, f.app.run(ctx, "apply", []string{"-handle", handle}))
	assert.Contains(t, f.out.String(), "name:          Netflix")
	assert.Contains(t, f.out.String(), "transactions:  5")

	txn, err := f.repo.GetTransaction(ctx, "t3")
	require.NoError(t, err)
	assert.True(t, txn.IsRecurring)
	assert.NotEmpty(t, txn.RecurringGroupID)
}

func TestRun_ApplyUnknownHandle(t *testing.T) {
	f := newFixture(t)

	err := f.app.run(context.Background(), "apply", []string{"-handle", "deadbeef"})
	assert.True(t, core.IsInvalidRequest(err))
}

func TestRun_CreateUpdateDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.app.run(ctx, "create", []string{
		"-name", "Gym", "-pattern", "FITNESS", "-frequency", "monthly", "-amount", "39,90",
	}))
	assert.Contains(t, f.out.String(), "expected:      39.90")
	assert.Contains(t, f.out.String(), "variance:      -")

	groups, err := f.app.registry.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	id := groups[0].ID

	f.out.Reset()
	require.NoError(t, f.app.run(ctx, "update", []string{"-id", id, "-name", "Gym Plus", "-active=false"}))
	assert.Contains(t, f.out.String(), "name:          Gym Plus")
	assert.Contains(t, f.out.String(), "active:        false")

	f.out.Reset()
	require.NoError(t, f.app.run(ctx, "list", nil))
	assert.Empty(t, f.out.String())

	require.NoError(t, f.app.run(ctx, "list", []string{"-all"}))
	assert.Contains(t, f.out.String(), "(inactive)")

	f.out.Reset()
	require.NoError(t, f.app.run(ctx, "delete", []string{"-id", id}))
	assert.Equal(t, "deleted "+id+"\n", f.out.String())

	err = f.app.run(ctx, "get", []string{"-id", id})
	assert.True(t, core.IsNotFound(err))
}

func TestRun_MarkAndUnmark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.app.run(ctx, "mark", []string{"-txn", "t1", "-new", "-name", "Streaming"}))
	assert.Contains(t, f.out.String(), "name:          Streaming")
	assert.Contains(t, f.out.String(), "frequency:     monthly")

	txn, err := f.repo.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	groupID := txn.RecurringGroupID
	require.NotEmpty(t, groupID)

	f.out.Reset()
	require.NoError(t, f.app.run(ctx, "mark", []string{"-txn", "t2", "-group", groupID}))
	assert.Contains(t, f.out.String(), "transactions:  2")

	f.out.Reset()
	require.NoError(t, f.app.run(ctx, "unmark", []string{"-txn", "t1"}))
	assert.Equal(t, "unmarked t1\n", f.out.String())

	txn, err = f.repo.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, txn.IsRecurring)
	assert.Empty(t, txn.RecurringGroupID)
}

func TestRun_Upcoming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.app.now = func() time.Time { return time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC) }

	require.NoError(t, f.app.run(ctx, "create", []string{"-name", "Phone", "-pattern", "TELCO", "-amount", "12.50"}))
	groups, err := f.app.registry.List(ctx, false)
	require.NoError(t, err)
	require.NoError(t, f.repo.WithTx(ctx, func(q storage.Querier) error {
		g := groups[0]
		g.LastSeenDate = core.NewDate(2024, 6, 10)
		if err := g.Recompute(); err != nil {
			return err
		}
		return q.UpdateGroup(ctx, g)
	}))

	f.out.Reset()
	require.NoError(t, f.app.run(ctx, "upcoming", []string{"-days", "14"}))
	assert.Contains(t, f.out.String(), "2024-07-10  Phone")
	assert.Contains(t, f.out.String(), "in   9 days")
	assert.Contains(t, f.out.String(), "total 12.50")
}

func TestRun_Usage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		command string
		args    []string
	}{
		{"unknown command", "frobnicate", nil},
		{"missing handle", "apply", nil},
		{"missing id", "get", nil},
		{"stray argument", "list", []string{"extra"}},
		{"unknown flag", "detect", []string{"-verbose"}},
		{"missing txn", "unmark", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.app.run(ctx, tt.command, tt.args)
			assert.ErrorIs(t, err, errUsage)
		})
	}
}

func TestRun_WatchWithoutBroker(t *testing.T) {
	f := newFixture(t)

	err := f.app.run(context.Background(), "watch", nil)
	assert.ErrorContains(t, err, "AMQP_URL")
}

type replayConsumer struct {
	events []amqp.GroupEvent
	queue  string
}

func (c *replayConsumer) Consume(ctx context.Context, queue string, handler func(context.Context, amqp.GroupEvent) error) error {
	c.queue = queue
	for _, e := range c.events {
		if err := handler(ctx, e); err != nil {
			return err
		}
	}
	return context.Canceled
}

func TestRun_WatchPrintsEvents(t *testing.T) {
	f := newFixture(t)
	logs := &bytes.Buffer{}
	f.app.logger = log.New(log.Config{
		Component: log.ComponentCLI,
		Handler:   slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
	at := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	event := amqp.GroupEvent{Type: amqp.EventTransactionMarked, GroupID: "g1", TransactionIDs: []string{"t1", "t2"}, Timestamp: at}
	f.app.consumer = &replayConsumer{events: []amqp.GroupEvent{event}}
	f.app.queue = "recurring_events"

	require.NoError(t, f.app.run(context.Background(), "watch", nil))
	assert.Equal(t, "recurring_events", f.app.consumer.(*replayConsumer).queue)
	assert.Contains(t, f.out.String(), "2024-07-01T09:00:00Z  transaction.marked")
	assert.Contains(t, f.out.String(), "group=g1 transactions=t1,t2")

	var record map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &record))
	assert.Equal(t, "Received group event", record[slog.MessageKey])
	assert.Equal(t, "watch", record[log.FieldOperation])
	assert.Equal(t, log.ComponentCLI, record[log.FieldComponent])
	assert.Equal(t, "g1", record[log.FieldGroupID])
}
