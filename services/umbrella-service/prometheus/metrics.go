package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the business metrics of the umbrella engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RelationshipsCreated prometheus.Counter
	Transitions          *prometheus.CounterVec
	TransitionRejects    *prometheus.CounterVec
	Signatures           *prometheus.CounterVec
	AgreementsEffective  prometheus.Counter
	SharesCalculated     prometheus.Counter
	ShareAmountTotal     prometheus.Counter
	SharesPaid           prometheus.Counter
	RollupComputations   *prometheus.CounterVec
	DbOperationDuration  *prometheus.HistogramVec
}

// NewMetrics registers the engine metrics on reg, prefixing every name
func NewMetrics(prefix string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RelationshipsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_relationships_created_total",
			Help: "Total number of umbrella relationships created",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_transitions_total",
			Help: "Total number of applied state machine transitions",
		}, []string{"from", "to", "action"}),
		TransitionRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_transition_rejects_total",
			Help: "Total number of rejected state machine transitions",
		}, []string{"reason"}),
		Signatures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_agreement_signatures_total",
			Help: "Total number of agreement signatures by party",
		}, []string{"party"}),
		AgreementsEffective: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_agreements_effective_total",
			Help: "Total number of agreements that reached signature quorum",
		}),
		SharesCalculated: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_revenue_shares_calculated_total",
			Help: "Total number of revenue shares calculated",
		}),
		ShareAmountTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_revenue_share_amount_total",
			Help: "Sum of calculated revenue share amounts",
		}),
		SharesPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_revenue_shares_paid_total",
			Help: "Total number of revenue shares marked paid",
		}),
		RollupComputations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_rollup_computations_total",
			Help: "Total number of analytics rollups computed by period",
		}, []string{"period"}),
		DbOperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation_type"}),
	}
}

// TrackDBOperation returns a function that records the duration of a database operation
func (m *Metrics) TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		if m == nil {
			return
		}
		m.DbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

func (m *Metrics) RecordRelationshipCreated() {
	if m == nil {
		return
	}
	m.RelationshipsCreated.Inc()
}

func (m *Metrics) RecordTransition(from, to, action string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to, action).Inc()
}

func (m *Metrics) RecordTransitionReject(reason string) {
	if m == nil {
		return
	}
	m.TransitionRejects.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordSignature(party string) {
	if m == nil {
		return
	}
	m.Signatures.WithLabelValues(party).Inc()
}

func (m *Metrics) RecordAgreementEffective() {
	if m == nil {
		return
	}
	m.AgreementsEffective.Inc()
}

// RecordShareCalculated counts a new share and adds its amount
func (m *Metrics) RecordShareCalculated(amount float64) {
	if m == nil {
		return
	}
	m.SharesCalculated.Inc()
	m.ShareAmountTotal.Add(amount)
}

func (m *Metrics) RecordSharePaid() {
	if m == nil {
		return
	}
	m.SharesPaid.Inc()
}

func (m *Metrics) RecordRollupComputation(period string) {
	if m == nil {
		return
	}
	m.RollupComputations.WithLabelValues(period).Inc()
}
