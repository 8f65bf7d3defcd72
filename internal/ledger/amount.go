package ledger

import (
	"fmt"
	"strings"

	"github.com/govalues/money"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
)

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = "INR"

// Zero returns a zero amount in curr.
func Zero(curr string) money.Amount {
	a, err := money.NewAmountFromMinorUnits(curr, 0)
	if err != nil {
		panic(fmt.Sprintf("ledger: unknown currency %q", curr))
	}
	return a
}

// FromMinor builds an amount from minor units (paise, cents).
func FromMinor(curr string, units int64) (money.Amount, error) {
	a, err := money.NewAmountFromMinorUnits(curr, units)
	if err != nil {
		return money.Amount{}, fmt.Errorf("%w: amount: %w", errs.ErrInvalid, err)
	}
	return a, nil
}

// Minor returns a in minor units. Amounts with more precision than the
// currency allows are reported as invalid.
func Minor(a money.Amount) (int64, error) {
	units, ok := a.MinorUnits()
	if !ok {
		return 0, fmt.Errorf("%w: amount %s out of range", errs.ErrInvalid, a)
	}
	return units, nil
}

// MustMinor is Minor for amounts built by this package from minor units.
func MustMinor(a money.Amount) int64 {
	units, _ := a.MinorUnits()
	return units
}

// CheckCurrency validates a currency code.
func CheckCurrency(curr string) error {
	if _, err := money.ParseCurr(curr); err != nil {
		return fmt.Errorf("%w: currency %q: %w", errs.ErrInvalid, curr, err)
	}
	return nil
}

// Scale returns the number of minor-unit digits of curr.
func Scale(curr string) (int, error) {
	c, err := money.ParseCurr(curr)
	if err != nil {
		return 0, fmt.Errorf("%w: currency %q: %w", errs.ErrInvalid, curr, err)
	}
	return c.Scale(), nil
}

// Sum adds amounts of the same currency, starting from zero in curr.
func Sum(curr string, amounts ...money.Amount) (money.Amount, error) {
	total := Zero(curr)
	for _, a := range amounts {
		next, err := total.Add(a)
		if err != nil {
			return money.Amount{}, fmt.Errorf("%w: %w", errs.ErrInvalid, err)
		}
		total = next
	}
	return total, nil
}

// ParseMajor parses an amount written in major units ("1250.50"). More
// decimal places than curr allows is an error.
func ParseMajor(curr, s string) (money.Amount, error) {
	a, err := money.ParseAmount(curr, strings.TrimSpace(s))
	if err != nil {
		return money.Amount{}, fmt.Errorf("%w: amount %q: %w", errs.ErrInvalid, s, err)
	}
	if a.Scale() > a.Curr().Scale() {
		return money.Amount{}, fmt.Errorf("%w: amount %q has more than %d decimal places", errs.ErrInvalid, s, a.Curr().Scale())
	}
	return a, nil
}
