// Package dictionary is the catalog of scenario kinds and the inputs each one takes.
package dictionary

import (
	"strings"

	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

type FieldDef struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

type ScenarioDef struct {
	Kind   ledger.ScenarioKind `json:"kind"`
	Label  string              `json:"label"`
	Fields []FieldDef          `json:"fields"`
}

// Param names shared by the compiler and the catalog.
const (
	FieldAmount         = "amount"
	FieldCashGiven      = "cashGiven"
	FieldAmountSettled  = "amountSettled"
	FieldCashTaken      = "cashTaken"
	FieldAmountDeducted = "amountDeducted"
	FieldAmountReceived = "amountReceived"
	FieldAmountSent     = "amountSent"
	FieldCashIn         = "cashIn"
	FieldDigitalIn      = "digitalIn"
	FieldCashOut        = "cashOut"
	FieldDigitalOut     = "digitalOut"
)

var curated = []ScenarioDef{
	{
		Kind:  ledger.KindWithdrawalMatched,
		Label: "Kiosk Withdrawal",
		Fields: []FieldDef{
			{Name: FieldAmount, Label: "Cash Given to Customer", Required: true},
		},
	},
	{
		Kind:  ledger.KindWithdrawalWithFee,
		Label: "Kiosk Withdrawal (with fee)",
		Fields: []FieldDef{
			{Name: FieldCashGiven, Label: "Cash Given to Customer", Required: true},
			{Name: FieldAmountSettled, Label: "Amount Settled in OD", Required: true},
		},
	},
	{
		Kind:  ledger.KindDeposit,
		Label: "Kiosk Deposit",
		Fields: []FieldDef{
			{Name: FieldCashTaken, Label: "Cash Taken from Customer", Required: true},
			{Name: FieldAmountDeducted, Label: "Amount Deducted from OD", Required: true},
		},
	},
	{
		Kind:  ledger.KindPhonePayWithdrawal,
		Label: "PhonePay Withdrawal",
		Fields: []FieldDef{
			{Name: FieldCashGiven, Label: "Cash Given to Customer", Required: true},
			{Name: FieldAmountReceived, Label: "Amount Received in Bank", Required: true},
		},
	},
	{
		Kind:  ledger.KindPhonePayDeposit,
		Label: "PhonePay Deposit",
		Fields: []FieldDef{
			{Name: FieldCashTaken, Label: "Cash Taken from Customer", Required: true},
			{Name: FieldAmountSent, Label: "Amount Sent from Bank", Required: true},
		},
	},
	{
		Kind:  ledger.KindGeneralSale,
		Label: "Service / Sale",
		Fields: []FieldDef{
			{Name: FieldCashIn, Label: "Cash Received (In)"},
			{Name: FieldDigitalIn, Label: "Digital Received (In)"},
			{Name: FieldCashOut, Label: "Cash Paid (Out)"},
			{Name: FieldDigitalOut, Label: "Digital Paid (Out)"},
		},
	},
}

// Scenarios returns every catalogued scenario in display order.
func Scenarios() []ScenarioDef {
	out := make([]ScenarioDef, len(curated))
	copy(out, curated)
	return out
}

// Lookup finds a scenario by kind, ignoring case.
func Lookup(kind ledger.ScenarioKind) (ScenarioDef, bool) {
	k := ledger.ScenarioKind(strings.ToUpper(strings.TrimSpace(string(kind))))
	for _, d := range curated {
		if d.Kind == k {
			return d, true
		}
	}
	return ScenarioDef{}, false
}

// Field reports whether name is an input of the scenario.
func (d ScenarioDef) Field(name string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}
