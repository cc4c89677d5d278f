// Package metrics holds the Prometheus instruments for the trading core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing, so unit tests can run without touching the
// default registry.
type Metrics struct {
	PapersIssued     prometheus.Counter
	PapersListed     prometheus.Counter
	PapersPurchased  prometheus.Counter
	PapersRedeemed   prometheus.Counter
	ListingsRejected prometheus.Counter
	Settlements      prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		PapersIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "papernet_papers_issued_total",
			Help: "Total number of commercial paper instruments issued",
		}),
		PapersListed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "papernet_papers_listed_total",
			Help: "Total number of papers placed on a market",
		}),
		PapersPurchased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "papernet_papers_purchased_total",
			Help: "Total number of settled purchases",
		}),
		PapersRedeemed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "papernet_papers_redeemed_total",
			Help: "Total number of papers redeemed at maturity",
		}),
		ListingsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "papernet_listings_rejected_total",
			Help: "Total number of papers rejected from list requests",
		}),
		Settlements: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "papernet_settlement_amount",
			Help:    "Settlement amounts of completed purchases",
			Buckets: prometheus.ExponentialBuckets(1000, 10, 8),
		}),
	}
}

// AddPapersIssued records n issued instruments.
func (m *Metrics) AddPapersIssued(n int) {
	if m == nil {
		return
	}
	m.PapersIssued.Add(float64(n))
}

// AddPapersListed records n accepted listings.
func (m *Metrics) AddPapersListed(n int) {
	if m == nil {
		return
	}
	m.PapersListed.Add(float64(n))
}

// AddListingsRejected records n rejected list items.
func (m *Metrics) AddListingsRejected(n int) {
	if m == nil {
		return
	}
	m.ListingsRejected.Add(float64(n))
}

// IncrementPapersPurchased records one settled purchase of the given amount.
func (m *Metrics) IncrementPapersPurchased(settlement float64) {
	if m == nil {
		return
	}
	m.PapersPurchased.Inc()
	m.Settlements.Observe(settlement)
}

// IncrementPapersRedeemed records one redemption.
func (m *Metrics) IncrementPapersRedeemed() {
	if m == nil {
		return
	}
	m.PapersRedeemed.Inc()
}
