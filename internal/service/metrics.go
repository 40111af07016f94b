package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Orchestration counters. Backend call metrics live in backend.go next to
// the clients that record them.
var (
	chaptersCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epic_chapters_committed_total",
		Help: "Chapters generated and committed across all stories.",
	})

	continuityFoldsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epic_continuity_folds_total",
		Help: "Successful continuity state folds.",
	})

	continuityCompressionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epic_continuity_compressions_total",
		Help: "Window evictions compressed into the cumulative summary.",
	})

	advanceBusyRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epic_advance_busy_rejections_total",
		Help: "Advance calls rejected because the story was already locked.",
	})
)
