package ledger

import (
	"fmt"

	"github.com/govalues/money"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
)

// increasesOn maps each category to the direction that increases its balance.
// It is the only place the sign convention is written down.
var increasesOn = map[Category]Direction{
	CategoryAsset:     DirectionDebit,
	CategoryExpense:   DirectionDebit,
	CategoryLiability: DirectionCredit,
	CategoryEquity:    DirectionCredit,
	CategoryRevenue:   DirectionCredit,
}

// ValidateSignTable checks that every category has exactly one valid increasing
// direction. It is run once at startup.
func ValidateSignTable() error {
	if len(increasesOn) != len(Categories) {
		return fmt.Errorf("sign table covers %d categories, want %d", len(increasesOn), len(Categories))
	}
	for _, c := range Categories {
		d, ok := increasesOn[c]
		if !ok {
			return fmt.Errorf("sign table missing category %s", c)
		}
		if d != DirectionDebit && d != DirectionCredit {
			return fmt.Errorf("sign table has invalid direction %q for %s", d, c)
		}
	}
	return nil
}

// NormalSide returns the direction that increases accounts of category c.
func NormalSide(c Category) (Direction, error) {
	d, ok := increasesOn[normalizeCategory(c)]
	if !ok {
		return "", fmt.Errorf("%w: unknown account category %q", errs.ErrInvalid, c)
	}
	return d, nil
}

// Effect returns the signed change an entry of amount in direction d makes to
// an account of category c.
func Effect(c Category, d Direction, amount money.Amount) (money.Amount, error) {
	normal, err := NormalSide(c)
	if err != nil {
		return money.Amount{}, err
	}
	switch d {
	case normal:
		return amount, nil
	case DirectionDebit, DirectionCredit:
		return amount.Neg(), nil
	}
	return money.Amount{}, fmt.Errorf("%w: direction must be DEBIT or CREDIT, got %q", errs.ErrInvalid, d)
}

// Apply adds the effect of an entry to balance.
func Apply(balance money.Amount, c Category, d Direction, amount money.Amount) (money.Amount, error) {
	delta, err := Effect(c, d, amount)
	if err != nil {
		return money.Amount{}, err
	}
	out, err := balance.Add(delta)
	if err != nil {
		return money.Amount{}, fmt.Errorf("%w: %w", errs.ErrInvalid, err)
	}
	return out, nil
}
