package httpapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/scenario"
	"github.com/tinoosan/kiosk-ledger/internal/service/journal"
	"github.com/tinoosan/kiosk-ledger/internal/service/reconcile"
	"github.com/tinoosan/kiosk-ledger/internal/service/report"
)

// Amounts travel as minor units next to a display string in major units.

type postAccountRequest struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	OpeningMinor int64  `json:"opening_balance_minor"`
}

type renameAccountRequest struct {
	Name string `json:"name"`
}

type accountResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Category     ledger.Category `json:"category"`
	OpeningMinor int64           `json:"opening_balance_minor"`
	Opening      string          `json:"opening_balance"`
	BalanceMinor int64           `json:"balance_minor"`
	Balance      string          `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
}

type balanceResponse struct {
	AccountID    uuid.UUID `json:"account_id"`
	Currency     string    `json:"currency"`
	BalanceMinor int64     `json:"balance_minor"`
	Balance      string    `json:"balance"`
}

type postEntryLine struct {
	AccountID   uuid.UUID `json:"account_id"`
	Direction   string    `json:"direction"`
	AmountMinor int64     `json:"amount_minor"`
	Description string    `json:"description,omitempty"`
}

type postGroupRequest struct {
	Scenario       string            `json:"scenario,omitempty"`
	Date           string            `json:"date,omitempty"`
	Timestamp      *time.Time        `json:"timestamp,omitempty"`
	CustomerName   string            `json:"customer_name,omitempty"`
	Description    string            `json:"description,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Entries        []postEntryLine   `json:"entries"`
}

// scenarioRequest carries params as decimal strings or JSON numbers.
type scenarioRequest struct {
	Params         map[string]any `json:"params"`
	Date           string         `json:"date,omitempty"`
	Timestamp      *time.Time     `json:"timestamp,omitempty"`
	CustomerName   string         `json:"customer_name,omitempty"`
	Description    string         `json:"description,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

type entryResponse struct {
	ID          uuid.UUID        `json:"id"`
	GroupID     uuid.UUID        `json:"group_id"`
	AccountID   uuid.UUID        `json:"account_id"`
	Direction   ledger.Direction `json:"direction"`
	AmountMinor int64            `json:"amount_minor"`
	Amount      string           `json:"amount"`
	Description string           `json:"description,omitempty"`
}

type groupResponse struct {
	ID             uuid.UUID           `json:"id"`
	Scenario       ledger.ScenarioKind `json:"scenario"`
	Date           string              `json:"date"`
	Timestamp      time.Time           `json:"timestamp"`
	CustomerName   string              `json:"customer_name,omitempty"`
	Description    string              `json:"description,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	Metadata       map[string]string   `json:"metadata,omitempty"`
	Entries        []entryResponse     `json:"entries"`
	Replayed       bool                `json:"replayed,omitempty"`
}

type listGroupsResponse struct {
	Items  []groupResponse `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type previewLine struct {
	AccountID   uuid.UUID        `json:"account_id"`
	Direction   ledger.Direction `json:"direction"`
	AmountMinor int64            `json:"amount_minor"`
	Amount      string           `json:"amount"`
	Description string           `json:"description,omitempty"`
}

type compileResponse struct {
	Scenario    ledger.ScenarioKind `json:"scenario"`
	Label       string              `json:"label"`
	InputsMinor map[string]int64    `json:"inputs_minor"`
	Entries     []previewLine       `json:"entries"`
}

type saveDailyRecordRequest struct {
	AccountID          uuid.UUID `json:"account_id"`
	OpeningMinor       int64     `json:"opening_balance_minor"`
	ClosingMinor       int64     `json:"closing_balance_minor"`
	PhysicalCountMinor int64     `json:"physical_count_minor"`
	DifferenceMinor    int64     `json:"difference_minor"`
	Status             string    `json:"status"`
	Notes              string    `json:"notes,omitempty"`
}

type closeDayRequest struct {
	AccountID          uuid.UUID `json:"account_id,omitempty"`
	PhysicalCountMinor *int64    `json:"physical_count_minor"`
	Notes              string    `json:"notes,omitempty"`
}

type dailyRecordResponse struct {
	Date               string              `json:"date"`
	AccountID          uuid.UUID           `json:"account_id"`
	Status             ledger.RecordStatus `json:"status"`
	OpeningMinor       int64               `json:"opening_balance_minor"`
	Opening            string              `json:"opening_balance"`
	ClosingMinor       int64               `json:"closing_balance_minor"`
	Closing            string              `json:"closing_balance"`
	PhysicalCountMinor int64               `json:"physical_count_minor"`
	PhysicalCount      string              `json:"physical_count"`
	DifferenceMinor    int64               `json:"difference_minor"`
	Difference         string              `json:"difference"`
	Notes              string              `json:"notes,omitempty"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

type reconciliationResponse struct {
	PhysicalCountMinor int64               `json:"physical_count_minor"`
	DifferenceMinor    int64               `json:"difference_minor"`
	Difference         string              `json:"difference"`
	Status             ledger.RecordStatus `json:"status"`
}

// dayViewResponse pairs the calculated balances of a day with its stored record.
type dayViewResponse struct {
	Date           string                  `json:"date"`
	AccountID      uuid.UUID               `json:"account_id"`
	Status         ledger.RecordStatus     `json:"status"`
	OpeningMinor   int64                   `json:"opening_balance_minor"`
	Opening        string                  `json:"opening_balance"`
	ClosingMinor   int64                   `json:"closing_balance_minor"`
	Closing        string                  `json:"closing_balance"`
	CurrentMinor   int64                   `json:"current_balance_minor"`
	Current        string                  `json:"current_balance"`
	Record         *dailyRecordResponse    `json:"record"`
	Reconciliation *reconciliationResponse `json:"reconciliation,omitempty"`
}

type roleBalanceResponse struct {
	Role         ledger.Role `json:"role"`
	AccountID    uuid.UUID   `json:"account_id"`
	Name         string      `json:"name"`
	BalanceMinor int64       `json:"balance_minor"`
	Balance      string      `json:"balance"`
}

type scenarioStatResponse struct {
	Scenario    ledger.ScenarioKind `json:"scenario"`
	Groups      int                 `json:"groups"`
	VolumeMinor int64               `json:"volume_minor"`
	Volume      string              `json:"volume"`
}

type dayProfitResponse struct {
	Date        string `json:"date"`
	ProfitMinor int64  `json:"profit_minor"`
	Profit      string `json:"profit"`
}

type alertResponse struct {
	AccountID    uuid.UUID `json:"account_id"`
	Name         string    `json:"name"`
	BalanceMinor int64     `json:"balance_minor"`
	Balance      string    `json:"balance"`
	Message      string    `json:"message"`
}

type dashboardResponse struct {
	Date        string                 `json:"date"`
	ProfitMinor int64                  `json:"profit_minor"`
	Profit      string                 `json:"profit"`
	Balances    []roleBalanceResponse  `json:"balances"`
	Scenarios   []scenarioStatResponse `json:"scenarios"`
	Trend       []dayProfitResponse    `json:"trend"`
	Alerts      []alertResponse        `json:"alerts"`
}

// display renders a in major units at the currency scale, e.g. "1010.00".
func display(a money.Amount) string { return a.Decimal().String() }

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:           a.ID,
		Name:         a.Name,
		Category:     a.Category,
		OpeningMinor: ledger.MustMinor(a.Opening),
		Opening:      display(a.Opening),
		BalanceMinor: ledger.MustMinor(a.Balance),
		Balance:      display(a.Balance),
		CreatedAt:    a.CreatedAt,
	}
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		GroupID:     e.GroupID,
		AccountID:   e.AccountID,
		Direction:   e.Direction,
		AmountMinor: ledger.MustMinor(e.Amount),
		Amount:      display(e.Amount),
		Description: e.Description,
	}
}

func toGroupResponse(g ledger.TransactionGroup) groupResponse {
	out := groupResponse{
		ID:             g.ID,
		Scenario:       g.Scenario,
		Date:           ledger.FormatDay(g.Date),
		Timestamp:      g.Timestamp.UTC(),
		CustomerName:   g.CustomerName,
		Description:    g.Description,
		IdempotencyKey: g.IdempotencyKey,
		Entries:        make([]entryResponse, 0, len(g.Entries)),
	}
	if len(g.Metadata) > 0 {
		out.Metadata = g.Metadata.Clone()
	}
	for _, e := range g.Entries {
		out.Entries = append(out.Entries, toEntryResponse(e))
	}
	return out
}

func toCompileResponse(c scenario.Compiled) compileResponse {
	out := compileResponse{Scenario: c.Kind, Label: c.Label, InputsMinor: c.Inputs, Entries: make([]previewLine, 0, len(c.Entries))}
	for _, e := range c.Entries {
		out.Entries = append(out.Entries, previewLine{
			AccountID:   e.AccountID,
			Direction:   e.Direction,
			AmountMinor: ledger.MustMinor(e.Amount),
			Amount:      display(e.Amount),
			Description: e.Description,
		})
	}
	return out
}

func toDailyRecordResponse(r ledger.DailyRecord) dailyRecordResponse {
	return dailyRecordResponse{
		Date:               ledger.FormatDay(r.Date),
		AccountID:          r.AccountID,
		Status:             r.Status,
		OpeningMinor:       ledger.MustMinor(r.Opening),
		Opening:            display(r.Opening),
		ClosingMinor:       ledger.MustMinor(r.Closing),
		Closing:            display(r.Closing),
		PhysicalCountMinor: ledger.MustMinor(r.PhysicalCount),
		PhysicalCount:      display(r.PhysicalCount),
		DifferenceMinor:    ledger.MustMinor(r.Difference),
		Difference:         display(r.Difference),
		Notes:              r.Notes,
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

func toDayViewResponse(v reconcile.DayView) dayViewResponse {
	out := dayViewResponse{
		Date:         ledger.FormatDay(v.Date),
		AccountID:    v.AccountID,
		Status:       v.Status,
		OpeningMinor: ledger.MustMinor(v.Opening),
		Opening:      display(v.Opening),
		ClosingMinor: ledger.MustMinor(v.Closing),
		Closing:      display(v.Closing),
		CurrentMinor: ledger.MustMinor(v.Current),
		Current:      display(v.Current),
	}
	if v.Stored != nil {
		rec := toDailyRecordResponse(*v.Stored)
		out.Record = &rec
	}
	return out
}

func toReconciliationResponse(r reconcile.Result) *reconciliationResponse {
	return &reconciliationResponse{
		PhysicalCountMinor: ledger.MustMinor(r.PhysicalCount),
		DifferenceMinor:    ledger.MustMinor(r.Difference),
		Difference:         display(r.Difference),
		Status:             r.Status,
	}
}

func toDashboardResponse(d report.Dashboard) dashboardResponse {
	out := dashboardResponse{
		Date:        ledger.FormatDay(d.Date),
		ProfitMinor: ledger.MustMinor(d.Profit),
		Profit:      display(d.Profit),
		Balances:    []roleBalanceResponse{},
		Scenarios:   []scenarioStatResponse{},
		Trend:       []dayProfitResponse{},
		Alerts:      []alertResponse{},
	}
	for _, b := range d.Balances {
		out.Balances = append(out.Balances, roleBalanceResponse{
			Role: b.Role, AccountID: b.AccountID, Name: b.Name,
			BalanceMinor: ledger.MustMinor(b.Balance), Balance: display(b.Balance),
		})
	}
	for _, st := range d.Scenarios {
		out.Scenarios = append(out.Scenarios, scenarioStatResponse{
			Scenario: st.Scenario, Groups: st.Groups,
			VolumeMinor: ledger.MustMinor(st.Volume), Volume: display(st.Volume),
		})
	}
	for _, p := range d.Trend {
		out.Trend = append(out.Trend, dayProfitResponse{
			Date: ledger.FormatDay(p.Date), ProfitMinor: ledger.MustMinor(p.Profit), Profit: display(p.Profit),
		})
	}
	for _, a := range d.Alerts {
		out.Alerts = append(out.Alerts, alertResponse{
			AccountID: a.AccountID, Name: a.Name,
			BalanceMinor: ledger.MustMinor(a.Balance), Balance: display(a.Balance), Message: a.Message,
		})
	}
	return out
}

// toGroupInput converts a request body into a journal input in currency.
func toGroupInput(req postGroupRequest, currency string) (journal.GroupInput, error) {
	in := journal.GroupInput{
		Scenario:       ledger.ScenarioKind(req.Scenario),
		CustomerName:   req.CustomerName,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
		Entries:        make([]ledger.Entry, 0, len(req.Entries)),
	}
	if req.Metadata != nil {
		in.Metadata = req.Metadata
	}
	if req.Date != "" {
		day, err := ledger.ParseDay(req.Date)
		if err != nil {
			return journal.GroupInput{}, err
		}
		in.Date = day
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}
	for i, line := range req.Entries {
		dir, err := ledger.ParseDirection(line.Direction)
		if err != nil {
			return journal.GroupInput{}, fmt.Errorf("entries[%d]: %w", i, err)
		}
		amt, err := ledger.FromMinor(currency, line.AmountMinor)
		if err != nil {
			return journal.GroupInput{}, fmt.Errorf("entries[%d]: %w", i, err)
		}
		in.Entries = append(in.Entries, ledger.Entry{
			AccountID: line.AccountID, Direction: dir, Amount: amt, Description: line.Description,
		})
	}
	return in, nil
}

// rawParams flattens JSON params into the textual form the compiler parses.
func rawParams(in map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case json.Number:
			out[k] = t.String()
		case string:
			out[k] = t
		default:
			return nil, fmt.Errorf("%w: %s must be a number or a decimal string", errs.ErrInvalidScenarioParams, k)
		}
	}
	return out, nil
}
