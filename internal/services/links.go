package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"cadenza/internal/core"
	"cadenza/internal/storage"
)

// The helpers below are the only callers of the storage statements that
// write a transaction's group reference and is_recurring flag. Storage
// always writes the pair together.

func linkTransaction(ctx context.Context, q storage.Querier, transactionID, groupID string) error {
	if err := q.SetTransactionGroup(ctx, transactionID, groupID); err != nil {
		return fmt.Errorf("link transaction %s to group %s: %w", transactionID, groupID, err)
	}
	return nil
}

func unlinkTransaction(ctx context.Context, q storage.Querier, transactionID string) error {
	if err := q.SetTransactionGroup(ctx, transactionID, ""); err != nil {
		return fmt.Errorf("unlink transaction %s: %w", transactionID, err)
	}
	return nil
}

// linkTransactions links every id or fails. ids must already be known to
// exist.
func linkTransactions(ctx context.Context, q storage.Querier, transactionIDs []string, groupID string) error {
	n, err := q.SetTransactionsGroup(ctx, transactionIDs, groupID)
	if err != nil {
		return fmt.Errorf("link transactions to group %s: %w", groupID, err)
	}
	if n != int64(len(transactionIDs)) {
		return fmt.Errorf("link transactions to group %s: linked %d of %d", groupID, n, len(transactionIDs))
	}
	return nil
}

func unlinkGroup(ctx context.Context, q storage.Querier, groupID string) (int64, error) {
	n, err := q.ClearGroupTransactions(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("unlink transactions of group %s: %w", groupID, err)
	}
	return n, nil
}

// invalidGroup converts a validation failure into an InvalidRequest.
func invalidGroup(id string, err error) error {
	if core.IsInvalidRequest(err) {
		return err
	}
	return core.InvalidRequest("recurring group", id, err.Error())
}

// truncate shortens s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	for len(s) > max {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}
