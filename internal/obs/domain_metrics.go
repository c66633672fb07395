package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ContractValidationsTotal counts contracted-change validations by outcome.
	ContractValidationsTotal *prometheus.CounterVec
	// AuditRunsTotal counts integrity audit runs by outcome.
	AuditRunsTotal *prometheus.CounterVec
	// AuditIssuesTotal counts discrepancies found by the integrity auditor.
	AuditIssuesTotal prometheus.Counter
	// AuditFixesTotal counts programs repaired by audit auto-fix.
	AuditFixesTotal prometheus.Counter
	// AuditRunDuration records integrity audit run duration in seconds.
	AuditRunDuration prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific
// Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ContractValidationsTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_validations_total",
			Help:      "Count of contracted item-change validations by result.",
		}, []string{"result"}))
		AuditRunsTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_runs_total",
			Help:      "Count of integrity audit runs by result.",
		}, []string{"result"}))
		AuditIssuesTotal = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_issues_total",
			Help:      "Total number of discrepancies reported by the integrity auditor.",
		}))
		AuditFixesTotal = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_fixes_total",
			Help:      "Number of programs repaired by audit auto-fix.",
		}))
		AuditRunDuration = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_run_duration_seconds",
			Help:      "Integrity audit run duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}))
	})
}

// ObserveAuditRun records one completed audit run. Safe to call before
// registration; it then does nothing.
func ObserveAuditRun(hadIssues bool, issues int, elapsed time.Duration) {
	if AuditRunsTotal == nil {
		return
	}
	result := "clean"
	if hadIssues {
		result = "issues"
	}
	AuditRunsTotal.WithLabelValues(result).Inc()
	AuditIssuesTotal.Add(float64(issues))
	AuditRunDuration.Observe(elapsed.Seconds())
}

// ObserveContractValidation records one contracted-change validation outcome.
func ObserveContractValidation(rejected bool) {
	if ContractValidationsTotal == nil {
		return
	}
	result := "accepted"
	if rejected {
		result = "rejected"
	}
	ContractValidationsTotal.WithLabelValues(result).Inc()
}

// ObserveAuditFix records one program repaired by audit auto-fix. Safe to
// call before registration; it then does nothing.
func ObserveAuditFix() {
	if AuditFixesTotal == nil {
		return
	}
	AuditFixesTotal.Inc()
}
