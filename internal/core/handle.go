package core

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// CandidateHandle returns the stable handle identifying a detection
// candidate: a hash of its merchant pattern and sorted transaction ids.
// Two runs that suggest the same grouping produce the same handle.
func CandidateHandle(merchantPattern string, transactionIDs []string) string {
	ids := slices.Clone(transactionIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	h := sha256.New()
	h.Write([]byte(merchantPattern))
	for _, id := range ids {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// WithHandle returns c with its Handle populated.
func (c DetectionCandidate) WithHandle() DetectionCandidate {
	c.Handle = CandidateHandle(c.MerchantPattern, c.TransactionIDs)
	return c
}

// UniqueTransactionIDs returns the candidate's transaction ids without
// duplicates, preserving first occurrence order.
func (c DetectionCandidate) UniqueTransactionIDs() []string {
	seen := make(map[string]struct{}, len(c.TransactionIDs))
	out := make([]string, 0, len(c.TransactionIDs))
	for _, id := range c.TransactionIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
