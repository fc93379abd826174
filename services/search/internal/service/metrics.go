package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts service operations by outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_operations_total",
			Help: "Total number of search service operations",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration observes service operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_operation_duration_seconds",
			Help:    "Duration of search service operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"operation"},
	)

	// SearchResults observes how many results a query returned.
	SearchResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_results_count",
			Help:    "Number of results returned per query",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
		[]string{"operation"},
	)

	// IndexedProducts tracks the number of products held by the engine.
	IndexedProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "search_indexed_products",
		Help: "Number of products currently indexed",
	})

	// GraphEdges tracks the number of relation edges held by the engine.
	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "search_graph_edges",
		Help: "Number of relation edges in the recommendation graph",
	})

	// ReindexedProducts counts products pulled from the catalog during reindex.
	ReindexedProducts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_reindex_products_total",
			Help: "Total number of catalog products processed by reindex",
		},
		[]string{"status"},
	)
)
