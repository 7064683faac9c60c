package monitor

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Order lifecycle events
const (
	OrderCreated   = "created"
	OrderPaid      = "paid"
	OrderFailed    = "failed"
	OrderCancelled = "cancelled"
	OrderRefunded  = "refunded"
	OrderRejected  = "rejected"
)

// MetricsCollector marketplace metrics. A nil collector records nothing, so
// services and tests can run without one.
type MetricsCollector struct {
	registry *prometheus.Registry

	// business
	orderTotal       *prometheus.CounterVec
	orderRevenue     prometheus.Counter
	stockRejections  prometheus.Counter
	promoValidations *prometheus.CounterVec
	moderationTotal  *prometheus.CounterVec
	escalationTotal  prometheus.Counter
	userLoginTotal   *prometheus.CounterVec
	sweptOrders      prometheus.Counter

	// http
	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// queue
	queueMessageTotal *prometheus.CounterVec

	// resources
	dbConnections  *prometheus.GaugeVec
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
}

// NewMetricsCollector creates a collector on its own registry
func NewMetricsCollector(namespace string) *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,
		orderTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_events_total",
			Help:      "Order lifecycle events by type",
		}, []string{"event"}),
		orderRevenue: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_revenue_total",
			Help:      "Sum of completed payment amounts",
		}),
		stockRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_rejections_total",
			Help:      "Checkouts rejected for insufficient stock",
		}),
		promoValidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_validations_total",
			Help:      "Promo code validations by outcome",
		}, []string{"valid"}),
		moderationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_actions_total",
			Help:      "Moderation actions by type",
		}, []string{"action"}),
		escalationTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trader_escalations_total",
			Help:      "Trader accounts disabled by the violation threshold",
		}),
		userLoginTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_login_total",
			Help:      "Login attempts by outcome",
		}, []string{"status"}),
		sweptOrders: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_payments_swept_total",
			Help:      "Abandoned payments cancelled by the sweeper",
		}),
		httpRequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		queueMessageTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_total",
			Help:      "Queue messages by topic and outcome",
		}, []string{"topic", "status"}),
		dbConnections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections",
			Help:      "Database pool connections by state",
		}, []string{"state"}),
		memoryUsage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Heap bytes allocated",
		}),
		goroutineCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Number of goroutines",
		}),
	}
}

// Handler serves the collector's registry
func (mc *MetricsCollector) Handler() http.Handler {
	if mc == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}

// RecordOrderEvent counts one order lifecycle event
func (mc *MetricsCollector) RecordOrderEvent(event string) {
	if mc == nil {
		return
	}
	mc.orderTotal.WithLabelValues(event).Inc()
}

// RecordRevenue adds a completed payment amount
func (mc *MetricsCollector) RecordRevenue(amount float64) {
	if mc == nil || amount <= 0 {
		return
	}
	mc.orderRevenue.Add(amount)
}

// RecordStockRejection counts a checkout refused for stock
func (mc *MetricsCollector) RecordStockRejection() {
	if mc == nil {
		return
	}
	mc.stockRejections.Inc()
}

// RecordPromoValidation counts a promo validation outcome
func (mc *MetricsCollector) RecordPromoValidation(valid bool) {
	if mc == nil {
		return
	}
	mc.promoValidations.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// RecordModeration counts a moderation action
func (mc *MetricsCollector) RecordModeration(action string) {
	if mc == nil {
		return
	}
	mc.moderationTotal.WithLabelValues(action).Inc()
}

// RecordEscalation counts an automatic account disable
func (mc *MetricsCollector) RecordEscalation() {
	if mc == nil {
		return
	}
	mc.escalationTotal.Inc()
}

// RecordUserLogin counts a login attempt
func (mc *MetricsCollector) RecordUserLogin(status string) {
	if mc == nil {
		return
	}
	mc.userLoginTotal.WithLabelValues(status).Inc()
}

// RecordSwept counts orders cancelled by the expiry sweeper
func (mc *MetricsCollector) RecordSwept(n int) {
	if mc == nil || n <= 0 {
		return
	}
	mc.sweptOrders.Add(float64(n))
}

// RecordHTTPRequest records one served request
func (mc *MetricsCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.httpRequestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordQueueMessage counts a handled queue message
func (mc *MetricsCollector) RecordQueueMessage(topic, status string) {
	if mc == nil {
		return
	}
	mc.queueMessageTotal.WithLabelValues(topic, status).Inc()
}

// UpdateDBConnections copies pool statistics into gauges
func (mc *MetricsCollector) UpdateDBConnections(stats sql.DBStats) {
	if mc == nil {
		return
	}
	mc.dbConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	mc.dbConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	mc.dbConnections.WithLabelValues("idle").Set(float64(stats.Idle))
}

// UpdateSystemMetrics samples runtime statistics
func (mc *MetricsCollector) UpdateSystemMetrics() {
	if mc == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.memoryUsage.Set(float64(m.Alloc))
	mc.goroutineCount.Set(float64(runtime.NumGoroutine()))
}

// StartSystemMetricsCollection samples runtime and pool statistics until ctx is done
func (mc *MetricsCollector) StartSystemMetricsCollection(ctx context.Context, db *sql.DB, interval time.Duration) {
	if mc == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateSystemMetrics()
			if db != nil {
				mc.UpdateDBConnections(db.Stats())
			}
		}
	}
}
