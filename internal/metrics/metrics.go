package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "market_books_total", Help: "Count of market books ingested"},
		[]string{"market_type"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"side", "trigger"},
	)
	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_rejected_total", Help: "Orders blocked by risk limits"},
		[]string{"side"},
	)
	AmendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "order_amends_total", Help: "Price amendments sent"},
	)
	CancelsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "order_cancels_total", Help: "Cancellations sent"},
	)
	OrderUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_updates_total", Help: "Order status notifications received"},
		[]string{"status"},
	)
	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trade_exits_total", Help: "Exit orders by trigger"},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(BooksTotal, OrdersTotal, OrdersRejected, AmendsTotal, CancelsTotal, OrderUpdatesTotal, ExitsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
