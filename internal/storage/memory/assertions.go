package memory

import (
	"github.com/tinoosan/kiosk-ledger/internal/service/account"
	"github.com/tinoosan/kiosk-ledger/internal/service/journal"
	"github.com/tinoosan/kiosk-ledger/internal/service/reconcile"
	"github.com/tinoosan/kiosk-ledger/internal/service/report"
)

// Compile-time assertions that *Store satisfies the service interfaces.
var (
	_ account.Repo     = (*Store)(nil)
	_ account.Writer   = (*Store)(nil)
	_ journal.Repo     = (*Store)(nil)
	_ journal.Writer   = (*Store)(nil)
	_ reconcile.Repo   = (*Store)(nil)
	_ reconcile.Writer = (*Store)(nil)
	_ report.Repo      = (*Store)(nil)
)
