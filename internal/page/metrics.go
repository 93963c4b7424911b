package page

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pageFetchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_product_fetches_total",
			Help: "Total number of product fetches issued by detail pages",
		},
	)

	staleResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_stale_responses_total",
			Help: "Responses discarded because a newer request superseded them",
		},
		[]string{"kind"},
	)

	redirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_page_redirects_total",
			Help: "Navigations issued by the page without a user action",
		},
		[]string{"reason"},
	)

	reviewSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_review_submissions_total",
			Help: "Review submissions by outcome",
		},
		[]string{"outcome"},
	)

	commandsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_page_commands_in_flight",
			Help: "Page commands currently waiting on a collaborator",
		},
	)
)
