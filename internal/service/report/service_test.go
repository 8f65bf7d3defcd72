package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/scenario"
	"github.com/tinoosan/kiosk-ledger/internal/service/account"
	"github.com/tinoosan/kiosk-ledger/internal/service/journal"
	"github.com/tinoosan/kiosk-ledger/internal/service/report"
	"github.com/tinoosan/kiosk-ledger/internal/storage/memory"
)

func record(t *testing.T, j journal.Service, at time.Time, kind ledger.ScenarioKind, kv ...string) {
	t.Helper()
	p := scenario.Params{}
	for i := 0; i+1 < len(kv); i += 2 {
		p[kv[i]] = decimal.RequireFromString(kv[i+1])
	}
	_, err := j.RecordScenario(context.Background(), journal.ScenarioInput{Kind: kind, Params: p, Timestamp: at})
	require.NoError(t, err)
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	accts := account.New(store, store, "INR", nil)
	_, err := accts.EnsureChart(ctx, account.DefaultChart())
	require.NoError(t, err)
	compiler, err := scenario.NewCompiler("INR")
	require.NoError(t, err)
	j := journal.New(store, store, journal.Options{Accounts: accts, Compiler: compiler, Location: time.UTC})

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	record(t, j, day.Add(-48*time.Hour+time.Hour), ledger.KindDeposit, "cashTaken", "500", "amountDeducted", "495")
	record(t, j, day.Add(9*time.Hour), ledger.KindDeposit, "cashTaken", "1000", "amountDeducted", "990")
	record(t, j, day.Add(10*time.Hour), ledger.KindDeposit, "cashTaken", "200", "amountDeducted", "198")
	record(t, j, day.Add(11*time.Hour), ledger.KindWithdrawalWithFee, "cashGiven", "1000", "amountSettled", "1010")
	record(t, j, day.Add(12*time.Hour), ledger.KindPhonePayWithdrawal, "cashGiven", "100", "amountReceived", "99")
	// Next day, outside the window.
	record(t, j, day.Add(30*time.Hour), ledger.KindDeposit, "cashTaken", "100", "amountDeducted", "50")

	d, err := report.New(store, nil, "INR", time.UTC).Dashboard(ctx, day)
	require.NoError(t, err)

	// 10 + 2 + 10 - 1
	assert.Equal(t, int64(2100), ledger.MustMinor(d.Profit))

	require.Len(t, d.Trend, report.TrendDays)
	assert.Equal(t, "2024-03-04", ledger.FormatDay(d.Trend[0].Date))
	assert.Equal(t, "2024-03-10", ledger.FormatDay(d.Trend[6].Date))
	assert.Equal(t, int64(500), ledger.MustMinor(d.Trend[4].Profit))
	assert.True(t, d.Trend[5].Profit.IsZero())
	assert.Equal(t, int64(2100), ledger.MustMinor(d.Trend[6].Profit))

	stats := map[ledger.ScenarioKind]report.ScenarioStat{}
	for _, s := range d.Scenarios {
		stats[s.Scenario] = s
	}
	require.Len(t, stats, 3)
	assert.Equal(t, 2, stats[ledger.KindDeposit].Groups)
	assert.Equal(t, int64(120000), ledger.MustMinor(stats[ledger.KindDeposit].Volume))
	assert.Equal(t, 1, stats[ledger.KindWithdrawalWithFee].Groups)
	assert.Equal(t, int64(102000), ledger.MustMinor(stats[ledger.KindWithdrawalWithFee].Volume))

	roles := map[ledger.Role]report.RoleBalance{}
	for _, b := range d.Balances {
		roles[b.Role] = b
	}
	require.Len(t, roles, 3)
	assert.Equal(t, "Cash", roles[ledger.RoleCash].Name)

	// The settlement account went negative on deposits.
	var flagged []string
	for _, a := range d.Alerts {
		flagged = append(flagged, a.Name)
	}
	assert.Contains(t, flagged, "OD Account")
}

func TestDashboard_EmptyLedger(t *testing.T) {
	store := memory.New()
	d, err := report.New(store, nil, "INR", time.UTC).Dashboard(context.Background(), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, d.Profit.IsZero())
	assert.Empty(t, d.Balances)
	assert.Empty(t, d.Scenarios)
	assert.Empty(t, d.Alerts)
	assert.Len(t, d.Trend, report.TrendDays)
}
