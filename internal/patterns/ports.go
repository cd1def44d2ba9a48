// Package patterns defines the contract with the pattern collaborator: the
// external model that groups a batch of transactions into suspected
// recurring charges.
package patterns

import (
	"context"

	"github.com/shopspring/decimal"
)

type (
	// TransactionInput is one transaction as submitted to the collaborator.
	TransactionInput struct {
		ID             string  `json:"id"`
		Date           string  `json:"date"`
		Amount         float64 `json:"amount"`
		Merchant       string  `json:"merchant"`
		RawDescription string  `json:"raw_description"`
	}

	// Pattern is one suspected recurring charge as returned by the
	// collaborator. Nothing about it is trusted: the ids may not belong to
	// the submitted batch and the frequency may be outside the known set.
	Pattern struct {
		MerchantPattern string          `json:"merchant_pattern"`
		SuggestedName   string          `json:"suggested_name"`
		TransactionIDs  []string        `json:"transaction_ids"`
		Frequency       string          `json:"frequency"`
		AverageAmount   decimal.Decimal `json:"average_amount"`
		Confidence      float64         `json:"confidence"`
	}

	// Response is the JSON document the collaborator is asked to produce.
	Response struct {
		RecurringPatterns []Pattern `json:"recurring_patterns"`
	}
)

// Collaborator finds recurring patterns in a batch of transactions.
type Collaborator interface {
	DetectPatterns(ctx context.Context, batch []TransactionInput) ([]Pattern, error)
}
