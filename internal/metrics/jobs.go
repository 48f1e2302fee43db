package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zargar_jobs_finished_total",
			Help: "Backup, restore and snapshot jobs that reached a terminal state",
		},
		[]string{"kind", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zargar_job_duration_seconds",
			Help:    "Wall time from job start to terminal state",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		},
		[]string{"kind"},
	)

	backupSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zargar_backup_size_bytes",
			Help:    "Size of completed backup archives",
			Buckets: prometheus.ExponentialBuckets(1<<20, 4, 10),
		},
	)

	snapshotCleanupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zargar_snapshot_cleanup_total",
			Help: "Expired snapshots processed by the cleanup sweep",
		},
		[]string{"result"},
	)

	safetySnapshotFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zargar_safety_snapshot_failures_total",
			Help: "Restores that proceeded without a safety snapshot",
		},
	)
)

// Job kinds used as label values.
const (
	KindBackup   = "backup"
	KindRestore  = "restore"
	KindSnapshot = "snapshot"
)

// ObserveJob records a job reaching a terminal status. A zero duration is
// not observed.
func ObserveJob(kind, status string, d time.Duration) {
	jobsFinishedTotal.WithLabelValues(kind, status).Inc()
	if d > 0 {
		jobDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func ObserveBackupSize(size int64) {
	backupSizeBytes.Observe(float64(size))
}

func ObserveCleanup(deleted, failed int) {
	snapshotCleanupTotal.WithLabelValues("deleted").Add(float64(deleted))
	snapshotCleanupTotal.WithLabelValues("error").Add(float64(failed))
}

func SafetySnapshotFailed() {
	safetySnapshotFailures.Inc()
}
