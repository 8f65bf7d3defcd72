// Package scenario translates classified kiosk events into balanced ledger entries.
//
// Compilation is pure: it reads the params and the account directory and returns
// entries without touching storage. Every recipe is built so that debits equal
// credits, whatever the inputs.
package scenario

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/kiosk-ledger/internal/dictionary"
	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

// maxUnits bounds a single input so sums of several inputs stay within int64.
const maxUnits = int64(1) << 52

// maxUnitsDigits is the digit count of maxUnits.
const maxUnitsDigits = 16

// Params are the numeric inputs of a scenario, in major units.
type Params map[string]decimal.Decimal

// ParseParams converts textual inputs, rejecting anything non-numeric.
func ParseParams(raw map[string]string) (Params, error) {
	out := make(Params, len(raw))
	for k, v := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not a number", errs.ErrInvalidScenarioParams, k, v)
		}
		out[k] = d
	}
	return out, nil
}

// Resolver maps a role to a concrete account.
type Resolver interface {
	Resolve(role ledger.Role) (ledger.Account, error)
}

// Compiled is the output of a scenario compilation.
type Compiled struct {
	Kind  ledger.ScenarioKind
	Label string
	// Inputs holds every catalogued field in minor units, zero when omitted.
	Inputs  map[string]int64
	Entries []ledger.Entry
}

// Compiler builds entries in a single configured currency.
type Compiler struct {
	currency string
	scale    int32
}

// NewCompiler returns a compiler for currency.
func NewCompiler(currency string) (*Compiler, error) {
	scale, err := ledger.Scale(currency)
	if err != nil {
		return nil, err
	}
	return &Compiler{currency: currency, scale: int32(scale)}, nil
}

// Currency returns the currency entries are produced in.
func (c *Compiler) Currency() string { return c.currency }

// leg is an entry before its role is bound to an account.
type leg struct {
	role  ledger.Role
	dir   ledger.Direction
	units int64
	desc  string
}

type recipe func(in map[string]int64) []leg

var recipes = map[ledger.ScenarioKind]recipe{
	ledger.KindWithdrawalMatched:  withdrawalMatched,
	ledger.KindWithdrawalWithFee:  withdrawalWithFee,
	ledger.KindDeposit:            deposit,
	ledger.KindGeneralSale:        generalSale,
	ledger.KindPhonePayWithdrawal: phonePayWithdrawal,
	ledger.KindPhonePayDeposit:    phonePayDeposit,
}

// Compile validates params against the catalog, runs the recipe for kind and
// binds each role through accounts. Zero-amount legs are dropped.
func (c *Compiler) Compile(kind ledger.ScenarioKind, params Params, accounts Resolver) (Compiled, error) {
	def, ok := dictionary.Lookup(kind)
	if !ok {
		return Compiled{}, fmt.Errorf("%w: %q", errs.ErrUnknownScenarioKind, kind)
	}
	build, ok := recipes[def.Kind]
	if !ok {
		return Compiled{}, fmt.Errorf("%w: %q has no recipe", errs.ErrUnknownScenarioKind, kind)
	}
	in, err := c.inputs(def, params)
	if err != nil {
		return Compiled{}, err
	}
	legs := make([]leg, 0, 6)
	for _, l := range build(in) {
		if l.units > 0 {
			legs = append(legs, l)
		}
	}
	if len(legs) == 0 {
		return Compiled{}, fmt.Errorf("%w: %s produces no entries for all-zero inputs", errs.ErrInvalidScenarioParams, def.Kind)
	}

	bound := map[ledger.Role]ledger.Account{}
	entries := make([]ledger.Entry, 0, len(legs))
	for _, l := range legs {
		acc, ok := bound[l.role]
		if !ok {
			acc, err = accounts.Resolve(l.role)
			if err != nil {
				return Compiled{}, err
			}
			bound[l.role] = acc
		}
		amt, err := ledger.FromMinor(c.currency, l.units)
		if err != nil {
			return Compiled{}, err
		}
		entries = append(entries, ledger.Entry{AccountID: acc.ID, Direction: l.dir, Amount: amt, Description: l.desc})
	}
	return Compiled{Kind: def.Kind, Label: def.Label, Inputs: in, Entries: entries}, nil
}

// inputs converts params to minor units, checking presence, sign and precision.
func (c *Compiler) inputs(def dictionary.ScenarioDef, params Params) (map[string]int64, error) {
	unknown := make([]string, 0)
	for name := range params {
		if _, ok := def.Field(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s does not take %s", errs.ErrInvalidScenarioParams, def.Kind, strings.Join(unknown, ", "))
	}
	out := make(map[string]int64, len(def.Fields))
	for _, f := range def.Fields {
		v, ok := params[f.Name]
		if !ok {
			if f.Required {
				return nil, fmt.Errorf("%w: %s is required", errs.ErrInvalidScenarioParams, f.Name)
			}
			out[f.Name] = 0
			continue
		}
		units, err := c.toUnits(f.Name, v)
		if err != nil {
			return nil, err
		}
		out[f.Name] = units
	}
	return out, nil
}

func (c *Compiler) toUnits(name string, v decimal.Decimal) (int64, error) {
	if v.IsNegative() {
		return 0, fmt.Errorf("%w: %s must not be negative", errs.ErrInvalidScenarioParams, name)
	}
	if v.IsZero() {
		return 0, nil
	}
	// Bound the magnitude from digits and exponent before anything rescales:
	// a value is at least 10^(digits+exp-1) and an integer needs exp >= -digits.
	digits, exp := int64(v.NumDigits()), int64(v.Exponent())+int64(c.scale)
	if digits+exp > maxUnitsDigits {
		return 0, fmt.Errorf("%w: %s is too large", errs.ErrInvalidScenarioParams, name)
	}
	if exp < -digits {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", errs.ErrInvalidScenarioParams, name, c.scale)
	}
	shifted := v.Shift(c.scale)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", errs.ErrInvalidScenarioParams, name, c.scale)
	}
	if shifted.GreaterThan(decimal.NewFromInt(maxUnits)) {
		return 0, fmt.Errorf("%w: %s is too large", errs.ErrInvalidScenarioParams, name)
	}
	return shifted.IntPart(), nil
}

// profitSplit books the margin between what came in and what went out.
func profitSplit(grossIn, grossOut int64) []leg {
	net := grossIn - grossOut
	switch {
	case net > 0:
		return []leg{{role: ledger.RoleRevenue, dir: ledger.DirectionCredit, units: net, desc: "Commission earned"}}
	case net < 0:
		return []leg{{role: ledger.RoleRevenue, dir: ledger.DirectionDebit, units: -net, desc: "Commission shortfall"}}
	}
	return nil
}

func withdrawalMatched(in map[string]int64) []leg {
	a := in[dictionary.FieldAmount]
	return []leg{
		{role: ledger.RoleSettlement, dir: ledger.DirectionDebit, units: a, desc: "Withdrawal settled"},
		{role: ledger.RoleCash, dir: ledger.DirectionCredit, units: a, desc: "Cash paid to customer"},
	}
}

func withdrawalWithFee(in map[string]int64) []leg {
	given, settled := in[dictionary.FieldCashGiven], in[dictionary.FieldAmountSettled]
	legs := []leg{
		{role: ledger.RoleSettlement, dir: ledger.DirectionDebit, units: settled, desc: "Withdrawal settled"},
		{role: ledger.RoleCash, dir: ledger.DirectionCredit, units: settled, desc: "Cash paid to customer"},
	}
	switch {
	case settled > given:
		diff := settled - given
		legs = append(legs,
			leg{role: ledger.RoleCash, dir: ledger.DirectionDebit, units: diff, desc: "Fee retained in cash"},
			leg{role: ledger.RoleRevenue, dir: ledger.DirectionCredit, units: diff, desc: "Withdrawal fee"},
		)
	case given > settled:
		diff := given - settled
		legs = append(legs,
			leg{role: ledger.RoleRevenue, dir: ledger.DirectionDebit, units: diff, desc: "Cash paid over settlement"},
			leg{role: ledger.RoleCash, dir: ledger.DirectionCredit, units: diff, desc: "Extra cash paid to customer"},
		)
	}
	return legs
}

func deposit(in map[string]int64) []leg {
	taken, deducted := in[dictionary.FieldCashTaken], in[dictionary.FieldAmountDeducted]
	legs := []leg{
		{role: ledger.RoleCash, dir: ledger.DirectionDebit, units: taken, desc: "Cash received from customer"},
		{role: ledger.RoleSettlement, dir: ledger.DirectionCredit, units: deducted, desc: "Deposit deducted from settlement"},
	}
	return append(legs, profitSplit(taken, deducted)...)
}

func phonePayWithdrawal(in map[string]int64) []leg {
	given, received := in[dictionary.FieldCashGiven], in[dictionary.FieldAmountReceived]
	legs := []leg{
		{role: ledger.RoleBank, dir: ledger.DirectionDebit, units: received, desc: "Received in bank"},
		{role: ledger.RoleCash, dir: ledger.DirectionCredit, units: given, desc: "Cash paid to customer"},
	}
	return append(legs, profitSplit(received, given)...)
}

func phonePayDeposit(in map[string]int64) []leg {
	taken, sent := in[dictionary.FieldCashTaken], in[dictionary.FieldAmountSent]
	legs := []leg{
		{role: ledger.RoleCash, dir: ledger.DirectionDebit, units: taken, desc: "Cash received from customer"},
		{role: ledger.RoleBank, dir: ledger.DirectionCredit, units: sent, desc: "Sent from bank"},
	}
	return append(legs, profitSplit(taken, sent)...)
}

func generalSale(in map[string]int64) []leg {
	cashIn, digitalIn := in[dictionary.FieldCashIn], in[dictionary.FieldDigitalIn]
	cashOut, digitalOut := in[dictionary.FieldCashOut], in[dictionary.FieldDigitalOut]
	legs := []leg{
		{role: ledger.RoleCash, dir: ledger.DirectionDebit, units: cashIn, desc: "Cash received"},
		{role: ledger.RoleBank, dir: ledger.DirectionDebit, units: digitalIn, desc: "Digital received"},
		{role: ledger.RoleCash, dir: ledger.DirectionCredit, units: cashOut, desc: "Cash paid"},
		{role: ledger.RoleBank, dir: ledger.DirectionCredit, units: digitalOut, desc: "Digital paid"},
	}
	return append(legs, profitSplit(cashIn+digitalIn, cashOut+digitalOut)...)
}
