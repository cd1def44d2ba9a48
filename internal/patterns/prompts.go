package patterns

import (
	"encoding/json"
	"fmt"
)

// MinPatternSize is the number of transactions the collaborator is asked
// to require before reporting a pattern.
const MinPatternSize = 2

const SystemPrompt = `You analyze financial transactions to identify recurring payments like subscriptions, bills, and regular charges.

Look for:
- Regular intervals (weekly, biweekly, monthly, quarterly, yearly)
- Similar amounts (within 15% variance)
- Same or similar merchant names
- Patterns suggesting subscriptions (streaming, software, utilities, memberships)

Respond with JSON only:
{
  "recurring_patterns": [
    {
      "merchant_pattern": "<merchant name or pattern to match>",
      "suggested_name": "<clean display name>",
      "transaction_ids": ["<id>", ...],
      "frequency": "weekly" | "biweekly" | "monthly" | "quarterly" | "yearly",
      "average_amount": <number>,
      "confidence": <0.0 to 1.0>
    }
  ]
}

Guidelines:
- Only include patterns with 2+ transactions
- Confidence should reflect how certain the pattern is (consistent timing + amount = higher)
- Monthly is most common for subscriptions
- Yearly patterns need at least 2 occurrences roughly 12 months apart
- Include only transaction IDs from the input that belong to this recurring group
- merchant_pattern should be specific enough to match future transactions`

const userPromptTemplate = `Analyze these transactions for recurring payment patterns:

%s

Look for subscriptions, bills, and regular charges. Return patterns with confidence > 0.5 only.`

// UserPrompt renders the batch into the user message.
func UserPrompt(batch []TransactionInput) (string, error) {
	body, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transaction batch: %w", err)
	}
	return fmt.Sprintf(userPromptTemplate, body), nil
}
