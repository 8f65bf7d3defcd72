package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	groupsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "groups_committed_total",
			Help:      "Transaction groups committed, by scenario kind",
		},
		[]string{"scenario"},
	)
	commitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "group_commit_failures_total",
			Help:      "Rejected or failed group commits, by reason",
		},
		[]string{"reason"},
	)
)
