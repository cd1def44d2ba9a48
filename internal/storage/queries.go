package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cadenza/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Querier lists every statement the recurring services run against the
// store. Inside WithTx all of them share one transaction.
type Querier interface {
	InsertGroup(ctx context.Context, g core.RecurringGroup) error
	GetGroup(ctx context.Context, id string) (core.RecurringGroup, error)
	ListGroups(ctx context.Context, includeInactive bool) ([]core.RecurringGroup, error)
	UpdateGroup(ctx context.Context, g core.RecurringGroup) error
	DeleteGroup(ctx context.Context, id string) error
	CountGroupTransactions(ctx context.Context, groupID string) (int64, error)

	InsertTransaction(ctx context.Context, t core.Transaction) error
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	GetTransactions(ctx context.Context, ids []string) ([]core.Transaction, error)
	ListUnlinkedTransactionsSince(ctx context.Context, since core.Date) ([]core.Transaction, error)

	// SetTransactionGroup writes the group reference and the is_recurring
	// flag of one transaction. An empty groupID clears both.
	SetTransactionGroup(ctx context.Context, transactionID, groupID string) error
	SetTransactionsGroup(ctx context.Context, transactionIDs []string, groupID string) (int64, error)
	ClearGroupTransactions(ctx context.Context, groupID string) (int64, error)
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

var _ Querier = (*Queries)(nil)

const groupColumns = `id, name, merchant_pattern, expected_amount, amount_variance, frequency,
	category_id, last_seen_date, next_expected_date, is_active, created_at`

const transactionColumns = `id, date, amount, raw_description, clean_merchant, category_id,
	recurring_group_id, is_recurring`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (core.RecurringGroup, error) {
	var r RecurringGroup
	if err := row.Scan(
		&r.ID,
		&r.Name,
		&r.MerchantPattern,
		&r.ExpectedAmount,
		&r.AmountVariance,
		&r.Frequency,
		&r.CategoryID,
		&r.LastSeenDate,
		&r.NextExpectedDate,
		&r.IsActive,
		&r.CreatedAt,
	); err != nil {
		return core.RecurringGroup{}, err
	}
	return r.toCore()
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var r Transaction
	if err := row.Scan(
		&r.ID,
		&r.Date,
		&r.Amount,
		&r.RawDescription,
		&r.CleanMerchant,
		&r.CategoryID,
		&r.RecurringGroupID,
		&r.IsRecurring,
	); err != nil {
		return core.Transaction{}, err
	}
	return r.toCore()
}

const insertGroup = `INSERT INTO recurring_groups (` + groupColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertGroup(ctx context.Context, g core.RecurringGroup) error {
	r := groupFromCore(g)
	_, err := q.db.ExecContext(ctx, insertGroup,
		r.ID,
		r.Name,
		r.MerchantPattern,
		r.ExpectedAmount,
		r.AmountVariance,
		r.Frequency,
		r.CategoryID,
		r.LastSeenDate,
		r.NextExpectedDate,
		r.IsActive,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recurring group %s: %w", g.ID, err)
	}
	return nil
}

const getGroup = `SELECT ` + groupColumns + ` FROM recurring_groups WHERE id = ?`

func (q *Queries) GetGroup(ctx context.Context, id string) (core.RecurringGroup, error) {
	g, err := scanGroup(q.db.QueryRowContext(ctx, getGroup, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringGroup{}, core.NotFound("recurring group", id)
	}
	if err != nil {
		return core.RecurringGroup{}, fmt.Errorf("get recurring group %s: %w", id, err)
	}
	return g, nil
}

const listGroups = `SELECT ` + groupColumns + ` FROM recurring_groups
WHERE is_active = 1 OR ? = 1
ORDER BY name, id`

func (q *Queries) ListGroups(ctx context.Context, includeInactive bool) ([]core.RecurringGroup, error) {
	rows, err := q.db.QueryContext(ctx, listGroups, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list recurring groups: %w", err)
	}
	defer rows.Close()

	var groups []core.RecurringGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recurring groups: %w", err)
	}
	return groups, nil
}

const updateGroup = `UPDATE recurring_groups SET
	name = ?,
	merchant_pattern = ?,
	expected_amount = ?,
	amount_variance = ?,
	frequency = ?,
	category_id = ?,
	last_seen_date = ?,
	next_expected_date = ?,
	is_active = ?
WHERE id = ?`

func (q *Queries) UpdateGroup(ctx context.Context, g core.RecurringGroup) error {
	r := groupFromCore(g)
	res, err := q.db.ExecContext(ctx, updateGroup,
		r.Name,
		r.MerchantPattern,
		r.ExpectedAmount,
		r.AmountVariance,
		r.Frequency,
		r.CategoryID,
		r.LastSeenDate,
		r.NextExpectedDate,
		r.IsActive,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("update recurring group %s: %w", g.ID, err)
	}
	return requireAffected(res, "recurring group", g.ID)
}

const deleteGroup = `DELETE FROM recurring_groups WHERE id = ?`

func (q *Queries) DeleteGroup(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, deleteGroup, id)
	if err != nil {
		return fmt.Errorf("delete recurring group %s: %w", id, err)
	}
	return requireAffected(res, "recurring group", id)
}

const countGroupTransactions = `SELECT COUNT(*) FROM transactions WHERE recurring_group_id = ?`

func (q *Queries) CountGroupTransactions(ctx context.Context, groupID string) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, countGroupTransactions, groupID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions of group %s: %w", groupID, err)
	}
	return n, nil
}

const insertTransaction = `INSERT INTO transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	r := transactionFromCore(t)
	_, err := q.db.ExecContext(ctx, insertTransaction,
		r.ID,
		r.Date,
		r.Amount,
		r.RawDescription,
		r.CleanMerchant,
		r.CategoryID,
		r.RecurringGroupID,
		r.IsRecurring,
	)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", t.ID, err)
	}
	return nil
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

// GetTransactions returns the transactions that exist among ids, in no
// particular order. Missing ids are silently absent from the result.
func (q *Queries) GetTransactions(ctx context.Context, ids []string) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := q.db.QueryContext(ctx, query, anySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}
	return collectTransactions(rows)
}

const listUnlinkedTransactionsSince = `SELECT ` + transactionColumns + ` FROM transactions
WHERE date >= ? AND recurring_group_id IS NULL
ORDER BY date DESC, id`

func (q *Queries) ListUnlinkedTransactionsSince(ctx context.Context, since core.Date) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listUnlinkedTransactionsSince, since.String())
	if err != nil {
		return nil, fmt.Errorf("list unlinked transactions: %w", err)
	}
	return collectTransactions(rows)
}

const setTransactionGroup = `UPDATE transactions SET recurring_group_id = ?, is_recurring = ? WHERE id = ?`

func (q *Queries) SetTransactionGroup(ctx context.Context, transactionID, groupID string) error {
	res, err := q.db.ExecContext(ctx, setTransactionGroup, nullString(groupID), groupID != "", transactionID)
	if err != nil {
		return fmt.Errorf("set group of transaction %s: %w", transactionID, err)
	}
	return requireAffected(res, "transaction", transactionID)
}

func (q *Queries) SetTransactionsGroup(ctx context.Context, transactionIDs []string, groupID string) (int64, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}
	query := `UPDATE transactions SET recurring_group_id = ?, is_recurring = ? WHERE id IN (` + placeholders(len(transactionIDs)) + `)`
	args := append([]any{nullString(groupID), groupID != ""}, anySlice(transactionIDs)...)
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("set group of %d transactions: %w", len(transactionIDs), err)
	}
	return res.RowsAffected()
}

const clearGroupTransactions = `UPDATE transactions SET recurring_group_id = NULL, is_recurring = 0
WHERE recurring_group_id = ?`

func (q *Queries) ClearGroupTransactions(ctx context.Context, groupID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, clearGroupTransactions, groupID)
	if err != nil {
		return 0, fmt.Errorf("clear transactions of group %s: %w", groupID, err)
	}
	return res.RowsAffected()
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.NotFound(resource, id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
