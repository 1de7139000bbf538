package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	discoveryStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmgnscan_discovery_stops_total",
		Help: "Completed page discoveries by stop reason",
	}, []string{"reason"})

	discoveredPages = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gmgnscan_discovered_pages",
		Help:    "Pages discovered per walk",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
	})

	pageFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmgnscan_page_fetches_total",
		Help: "Fan-out page fetches by outcome",
	}, []string{"outcome"})

	workersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gmgnscan_fetch_workers_busy",
		Help: "Fan-out workers currently fetching a page",
	})
)
