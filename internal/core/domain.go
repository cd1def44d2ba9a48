package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

// DefaultAmountVariance is the tolerance, in percent, assigned to groups
// created from a detection candidate or a single transaction.
var DefaultAmountVariance = decimal.NewFromInt(15)

type (
	Frequency string

	Date struct {
		time.Time
	}

	RecurringGroup struct {
		ID               string
		Name             string
		MerchantPattern  string
		ExpectedAmount   decimal.NullDecimal
		AmountVariance   decimal.NullDecimal // percent
		Frequency        Frequency
		CategoryID       string
		LastSeenDate     Date // zero when unknown
		NextExpectedDate Date // derived from LastSeenDate and Frequency
		IsActive         bool
		CreatedAt        time.Time
	}

	// Transaction is owned by the import pipeline. The recurring services only
	// ever write RecurringGroupID and IsRecurring, and always together.
	Transaction struct {
		ID               string
		Date             Date
		Amount           decimal.Decimal // negative = expense
		RawDescription   string
		CleanMerchant    string
		CategoryID       string
		RecurringGroupID string
		IsRecurring      bool
	}

	DetectionCandidate struct {
		Handle          string
		MerchantPattern string
		SuggestedName   string
		TransactionIDs  []string
		Frequency       Frequency
		AverageAmount   decimal.Decimal
		Confidence      float64
	}
)

var (
	ErrEmptyName            = errors.New("empty name")
	ErrEmptyMerchantPattern = errors.New("empty merchant pattern")
)

// Frequencies lists every supported frequency in ascending interval order.
func Frequencies() []Frequency {
	return []Frequency{Weekly, Biweekly, Monthly, Quarterly, Yearly}
}

// ParseFrequency converts s into a Frequency. Unknown values are rejected
// with an InvalidRequest error.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}

func (f Frequency) Validate() error {
	switch f {
	case Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return nil
	default:
		return InvalidRequest("frequency", string(f), "unrecognized frequency")
	}
}

func (f Frequency) String() string {
	return string(f)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO "2006-01-02" date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsEmpty() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// After reports whether d is a later calendar day than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// Merchant returns the cleaned merchant name, falling back to the raw
// bank description.
func (t Transaction) Merchant() string {
	if strings.TrimSpace(t.CleanMerchant) != "" {
		return t.CleanMerchant
	}
	return t.RawDescription
}

// IsExpense reports whether the transaction is money going out.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

func (g RecurringGroup) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if len(g.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if strings.TrimSpace(g.MerchantPattern) == "" {
		return ErrEmptyMerchantPattern
	}
	if len(g.MerchantPattern) > 255 {
		return errors.New("merchant pattern too long (max 255 characters)")
	}
	if err := g.Frequency.Validate(); err != nil {
		return err
	}
	if g.AmountVariance.Valid && g.AmountVariance.Decimal.IsNegative() {
		return errors.New("amount variance cannot be negative")
	}
	return nil
}

// Advance moves LastSeenDate forward to seen when seen is later, recomputing
// NextExpectedDate. It never moves LastSeenDate backward and reports whether
// the group changed.
func (g *RecurringGroup) Advance(seen Date) (bool, error) {
	if !g.LastSeenDate.IsEmpty() && !seen.After(g.LastSeenDate) {
		return false, nil
	}
	next, err := NextExpected(seen, g.Frequency)
	if err != nil {
		return false, err
	}
	g.LastSeenDate = seen
	g.NextExpectedDate = next
	return true, nil
}

// Recompute derives NextExpectedDate from the current LastSeenDate and
// Frequency. Groups without a last seen date have no expected date.
func (g *RecurringGroup) Recompute() error {
	if g.LastSeenDate.IsEmpty() {
		g.NextExpectedDate = Date{}
		return nil
	}
	next, err := NextExpected(g.LastSeenDate, g.Frequency)
	if err != nil {
		return err
	}
	g.NextExpectedDate = next
	return nil
}
