// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the scoring engine.
var (
	// Counters.
	AwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_awards_total",
			Help: "Total number of award calls by activity type and outcome",
		},
		[]string{"activity_type", "status"},
	)

	DailyLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_daily_limit_rejections_total",
			Help: "Total number of awards rejected by the daily cap",
		},
		[]string{"activity_type"},
	)

	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_badges_awarded_total",
			Help: "Total number of badges awarded",
		},
		[]string{"badge"},
	)

	RankRecomputeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_rank_recompute_runs_total",
			Help: "Total number of rank recompute job runs by outcome",
		},
		[]string{"status"},
	)

	// Gauges.
	TrackedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scoring_tracked_users",
			Help: "Number of users with a ranking aggregate row",
		},
	)

	RankRecomputeLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scoring_rank_recompute_last_run_timestamp",
			Help: "Unix timestamp of the last completed rank recompute",
		},
	)

	// Histograms.
	AwardDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scoring_award_duration_seconds",
			Help:    "Duration of award calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	RankRecomputeDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scoring_rank_recompute_duration_seconds",
			Help:    "Duration of rank recompute job runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
	)
)

// RecordAward records the outcome of one award call.
func RecordAward(activityType, status string) {
	AwardsTotal.WithLabelValues(activityType, status).Inc()
}

// RecordDailyLimitRejection records an award rejected by a daily cap.
func RecordDailyLimitRejection(activityType string) {
	DailyLimitRejectionsTotal.WithLabelValues(activityType).Inc()
}

// RecordBadgeAwarded records a badge grant.
func RecordBadgeAwarded(badge string) {
	BadgesAwardedTotal.WithLabelValues(badge).Inc()
}

// RecordRankRecomputeRun records a recompute job run outcome.
func RecordRankRecomputeRun(status string) {
	RankRecomputeRunsTotal.WithLabelValues(status).Inc()
}

// SetTrackedUsers updates the tracked-users gauge.
func SetTrackedUsers(n int64) {
	TrackedUsers.Set(float64(n))
}

// SetRankRecomputeLastRun marks the recompute job as completed now.
func SetRankRecomputeLastRun() {
	RankRecomputeLastRun.Set(float64(time.Now().Unix()))
}

// ObserveAwardDuration records the duration of an award call.
func ObserveAwardDuration(seconds float64) {
	AwardDurationSeconds.Observe(seconds)
}

// ObserveRankRecomputeDuration records the duration of a recompute run.
func ObserveRankRecomputeDuration(seconds float64) {
	RankRecomputeDurationSeconds.Observe(seconds)
}
