package index

import "github.com/prometheus/client_golang/prometheus"

// SearchOutcomes counts indexed-search results by outcome: "indexed",
// "no_match" or "full_scan".
var SearchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dirdb",
	Subsystem: "index",
	Name:      "search_outcomes",
}, []string{"outcome"})

// ReindexRecords counts records processed by the reindex passes.
var ReindexRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dirdb",
	Subsystem: "index",
	Name:      "reindex_records",
}, []string{"pass"})

// RegisterMetrics registers the engine's collectors.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(SearchOutcomes, ReindexRecords)
}
