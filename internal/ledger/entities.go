package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/meta"
)

// Direction represents the side of an account an entry posts to.
type Direction string

const (
	// DirectionDebit posts a value on the debit side of an account.
	DirectionDebit Direction = "DEBIT"
	// DirectionCredit posts a value on the credit side of an account.
	DirectionCredit Direction = "CREDIT"
)

// ParseDirection accepts any casing of DEBIT or CREDIT.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case DirectionDebit, DirectionCredit:
		return d, nil
	}
	return "", fmt.Errorf("%w: direction must be DEBIT or CREDIT, got %q", errs.ErrInvalid, s)
}

// Category enumerates the broad classification of an account in the chart.
type Category string

const (
	// CategoryAsset holds resources the kiosk owns, such as the cash drawer.
	CategoryAsset Category = "ASSET"
	// CategoryLiability tracks obligations owed to others.
	CategoryLiability Category = "LIABILITY"
	// CategoryEquity captures the owner's residual interest.
	CategoryEquity Category = "EQUITY"
	// CategoryRevenue accumulates fees and margins earned.
	CategoryRevenue Category = "REVENUE"
	// CategoryExpense accumulates costs incurred.
	CategoryExpense Category = "EXPENSE"
)

// Categories is the closed set of account categories.
var Categories = []Category{CategoryAsset, CategoryLiability, CategoryEquity, CategoryRevenue, CategoryExpense}

// ParseCategory normalizes s and checks it against the closed category set.
func ParseCategory(s string) (Category, error) {
	c := normalizeCategory(Category(s))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown account category %q", errs.ErrInvalid, s)
}

func normalizeCategory(c Category) Category {
	return Category(strings.ToUpper(strings.TrimSpace(string(c))))
}

// Role is a logical slot a scenario posts to, bound to a concrete account by the directory.
type Role string

const (
	RoleCash       Role = "cash"
	RoleSettlement Role = "settlement"
	RoleBank       Role = "bank"
	RoleRevenue    Role = "revenue"
	RoleExpense    Role = "expense"
)

// ScenarioKind names a classified business event.
type ScenarioKind string

const (
	KindWithdrawalMatched  ScenarioKind = "WITHDRAWAL_MATCHED"
	KindWithdrawalWithFee  ScenarioKind = "WITHDRAWAL_WITH_FEE"
	KindDeposit            ScenarioKind = "DEPOSIT"
	KindGeneralSale        ScenarioKind = "GENERAL_SALE"
	KindPhonePayWithdrawal ScenarioKind = "PHONEPAY_WITHDRAWAL"
	KindPhonePayDeposit    ScenarioKind = "PHONEPAY_DEPOSIT"
	// KindManual marks groups committed directly from caller-supplied entries.
	KindManual ScenarioKind = "MANUAL"
)

// Account is an entry in the chart of accounts with its running balance.
type Account struct {
	ID       uuid.UUID
	Name     string
	Category Category
	// Opening is the balance the account was created with.
	Opening money.Amount
	// Balance is Opening plus the signed effect of every committed entry.
	Balance   money.Amount
	CreatedAt time.Time
}

// Entry is a single debit or credit line inside a transaction group.
type Entry struct {
	ID          uuid.UUID
	GroupID     uuid.UUID
	AccountID   uuid.UUID
	Direction   Direction
	Amount      money.Amount
	Description string
}

// TransactionGroup is the unit of atomic commit: a header plus its ordered entries.
type TransactionGroup struct {
	ID       uuid.UUID
	Scenario ScenarioKind
	// Date is the calendar day of the event, as midnight UTC.
	Date time.Time
	// Timestamp is the event time at second precision.
	Timestamp      time.Time
	CustomerName   string
	Description    string
	IdempotencyKey string
	// Fingerprint identifies the payload an idempotency key was first used with.
	Fingerprint string
	Metadata    meta.Metadata
	Entries     []Entry
}

// PostedEntry is an entry joined with the header fields of its group.
type PostedEntry struct {
	Entry
	Scenario  ScenarioKind
	Timestamp time.Time
}

// GroupFilter bounds a listing of transaction groups. From and To are inclusive days.
type GroupFilter struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// RecordStatus is the reconciliation state of a day.
type RecordStatus string

const (
	StatusOpen   RecordStatus = "OPEN"
	StatusClosed RecordStatus = "CLOSED"
	// StatusPending is reported for days without a stored record and is never persisted.
	StatusPending RecordStatus = "PENDING"
)

// ParseRecordStatus accepts the persistable statuses in any casing.
func ParseRecordStatus(s string) (RecordStatus, error) {
	switch st := RecordStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusOpen, StatusClosed:
		return st, nil
	}
	return "", fmt.Errorf("%w: status must be OPEN or CLOSED, got %q", errs.ErrInvalid, s)
}

// DailyRecord is the saved end-of-day snapshot for one calendar day.
type DailyRecord struct {
	Date          time.Time
	AccountID     uuid.UUID
	Opening       money.Amount
	Closing       money.Amount
	PhysicalCount money.Amount
	Difference    money.Amount
	Status        RecordStatus
	Notes         string
	UpdatedAt     time.Time
}
