package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadenza/internal/amqp"
	"cadenza/internal/core"
	"cadenza/internal/storage"
)

func TestMembership_SelectorMustBeExactlyOne(t *testing.T) {
	repo := newTestRepository(t)
	seedTransaction(t, repo, "t1", core.NewDate(2024, 1, 1), "-5", "Cafe")
	m := NewMembershipManager(repo, nil, testLogger())

	tests := []struct {
		name string
		sel  Selector
	}{
		{name: "neither", sel: Selector{}},
		{name: "both", sel: Selector{GroupID: "g1", New: &NewGroupSpec{}}},
		{name: "blank group id", sel: Selector{GroupID: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.MarkRecurring(context.Background(), "t1", tt.sel)
			assert.True(t, core.IsInvalidRequest(err), "got %v", err)
		})
	}
	assert.False(t, requireTransaction(t, repo, "t1").IsRecurring)
}

func TestMembership_NewGroupDefaults(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	txn := seedTransaction(t, repo, "t1", core.NewDate(2024, 1, 31), "-49.00", "Gym Plus")
	events := &recordingPublisher{}

	group, err := NewMembershipManager(repo, events, testLogger()).
		MarkRecurring(ctx, "t1", Selector{New: &NewGroupSpec{}})
	require.NoError(t, err)

	want, err := core.NextExpected(txn.Date, core.Monthly)
	require.NoError(t, err)
	assert.Equal(t, core.Monthly, group.Frequency)
	assert.Equal(t, "Gym Plus", group.Name)
	assert.Equal(t, "Gym Plus", group.MerchantPattern)
	assert.True(t, group.ExpectedAmount.Decimal.Equal(decimal.NewFromInt(49)))
	assert.Equal(t, txn.Date, group.LastSeenDate)
	assert.Equal(t, want, group.NextExpectedDate)
	assert.Equal(t, core.NewDate(2024, 2, 28), group.NextExpectedDate)

	stored, err := repo.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, group.NextExpectedDate, stored.NextExpectedDate)

	linked := requireTransaction(t, repo, "t1")
	assert.Equal(t, group.ID, linked.RecurringGroupID)
	assert.True(t, linked.IsRecurring)

	published := events.Events()
	require.Len(t, published, 1)
	assert.Equal(t, amqp.EventGroupCreated, published[0].Type)
}

func TestMembership_NewGroupFallsBackToRawDescription(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	require.NoError(t, repo.InsertTransaction(ctx, core.Transaction{
		ID:             "t1",
		Date:           core.NewDate(2024, 3, 3),
		Amount:         decimal.NewFromInt(-20),
		RawDescription: "DD ACME INSURANCE",
	}))

	group, err := NewMembershipManager(repo, nil, testLogger()).MarkRecurring(ctx, "t1",
		Selector{New: &NewGroupSpec{Frequency: core.Yearly, CategoryID: "insurance"}})
	require.NoError(t, err)
	assert.Equal(t, "DD ACME INSURANCE", group.Name)
	assert.Equal(t, core.Yearly, group.Frequency)
	assert.Equal(t, "insurance", group.CategoryID)
	assert.Equal(t, core.NewDate(2025, 3, 3), group.NextExpectedDate)
}

func TestMembership_NewGroupRejectsUnknownFrequency(t *testing.T) {
	repo := newTestRepository(t)
	seedTransaction(t, repo, "t1", core.NewDate(2024, 1, 1), "-5", "Cafe")

	_, err := NewMembershipManager(repo, nil, testLogger()).
		MarkRecurring(context.Background(), "t1", Selector{New: &NewGroupSpec{Frequency: "daily"}})
	assert.True(t, core.IsInvalidRequest(err))
}

func TestMembership_NotFound(t *testing.T) {
	repo := newTestRepository(t)
	seedTransaction(t, repo, "t1", core.NewDate(2024, 1, 1), "-5", "Cafe")
	seedGroup(t, repo, "g1", "Cafe", core.Weekly, core.Date{})
	m := NewMembershipManager(repo, nil, testLogger())

	_, err := m.MarkRecurring(context.Background(), "t1", Selector{GroupID: "missing"})
	assert.True(t, core.IsNotFound(err))
	assert.False(t, requireTransaction(t, repo, "t1").IsRecurring)

	_, err = m.MarkRecurring(context.Background(), "ghost", Selector{GroupID: "g1"})
	assert.True(t, core.IsNotFound(err))

	assert.True(t, core.IsNotFound(m.UnmarkRecurring(context.Background(), "ghost")))
}

func TestMembership_LastSeenOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	seedGroup(t, repo, "g1", "Rent", core.Monthly, core.NewDate(2024, 3, 1))
	seedTransaction(t, repo, "older", core.NewDate(2024, 1, 1), "-900", "Landlord")
	seedTransaction(t, repo, "newer", core.NewDate(2024, 4, 1), "-900", "Landlord")
	events := &recordingPublisher{}
	m := NewMembershipManager(repo, events, testLogger())

	group, err := m.MarkRecurring(ctx, "older", Selector{GroupID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, 3, 1), group.LastSeenDate)
	assert.Equal(t, core.NewDate(2024, 4, 1), group.NextExpectedDate)

	stored, err := repo.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, 3, 1), stored.LastSeenDate)
	assert.True(t, requireTransaction(t, repo, "older").IsRecurring)

	group, err = m.MarkRecurring(ctx, "newer", Selector{GroupID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, 4, 1), group.LastSeenDate)
	assert.Equal(t, core.NewDate(2024, 5, 1), group.NextExpectedDate)

	stored, err = repo.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, 4, 1), stored.LastSeenDate)
	assert.Equal(t, core.NewDate(2024, 5, 1), stored.NextExpectedDate)

	for _, e := range events.Events() {
		assert.Equal(t, amqp.EventTransactionMarked, e.Type)
	}
}

func TestMembership_FirstMemberSetsCadence(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	seedGroup(t, repo, "g1", "Water", core.Quarterly, core.Date{})
	seedTransaction(t, repo, "t1", core.NewDate(2024, 11, 30), "-60", "Water Co")

	group, err := NewMembershipManager(repo, nil, testLogger()).MarkRecurring(ctx, "t1", Selector{GroupID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, 11, 30), group.LastSeenDate)
	assert.Equal(t, core.NewDate(2025, 2, 28), group.NextExpectedDate)
}

func TestMembership_FailedAdvanceRollsBackLink(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	seedGroup(t, repo, "g1", "Rent", core.Monthly, core.NewDate(2024, 1, 1))
	seedTransaction(t, repo, "t1", core.NewDate(2024, 2, 1), "-900", "Landlord")

	faulty := faultyRepository{
		Repository: repo,
		wrap:       func(q storage.Querier) storage.Querier { return failingUpdateQuerier{q} },
	}
	_, err := NewMembershipManager(faulty, nil, testLogger()).MarkRecurring(ctx, "t1", Selector{GroupID: "g1"})
	require.ErrorIs(t, err, errInjected)

	txn := requireTransaction(t, repo, "t1")
	assert.Empty(t, txn.RecurringGroupID)
	assert.False(t, txn.IsRecurring)
}

func TestMembership_Unmark(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	seedGroup(t, repo, "g1", "Rent", core.Monthly, core.Date{})
	seedTransaction(t, repo, "t1", core.NewDate(2024, 2, 1), "-900", "Landlord")
	events := &recordingPublisher{}
	m := NewMembershipManager(repo, events, testLogger())

	_, err := m.MarkRecurring(ctx, "t1", Selector{GroupID: "g1"})
	require.NoError(t, err)

	require.NoError(t, m.UnmarkRecurring(ctx, "t1"))
	txn := requireTransaction(t, repo, "t1")
	assert.Empty(t, txn.RecurringGroupID)
	assert.False(t, txn.IsRecurring)

	// The group keeps the cadence its former member set.
	group, err := repo.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, 2, 1), group.LastSeenDate)

	// Unmarking again is a no-op.
	require.NoError(t, m.UnmarkRecurring(ctx, "t1"))

	published := events.Events()
	require.Len(t, published, 2)
	assert.Equal(t, amqp.EventTransactionUnmarked, published[1].Type)
	assert.Equal(t, "g1", published[1].GroupID)
}

func TestMembership_ConcurrentMarksOnlyMoveForward(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	seedGroup(t, repo, "g1", "Phone", core.Monthly, core.Date{})
	var ids []string
	for month := 1; month <= 12; month++ {
		id := fmt.Sprintf("m%02d", month)
		ids = append(ids, id)
		seedTransaction(t, repo, id, core.NewDate(2024, month, 10), "-20", "Telco")
	}
	m := NewMembershipManager(repo, nil, testLogger())

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	start := make(chan struct{})
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := m.MarkRecurring(ctx, id, Selector{GroupID: "g1"})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := repo.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, 12, 10), stored.LastSeenDate)
	assert.Equal(t, core.NewDate(2025, 1, 10), stored.NextExpectedDate)
	for _, id := range ids {
		txn := requireTransaction(t, repo, id)
		assert.Equal(t, "g1", txn.RecurringGroupID, id)
		assert.True(t, txn.IsRecurring, id)
	}
}
