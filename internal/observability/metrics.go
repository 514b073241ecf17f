package observability

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/dataplex/internal/protocol/session"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataplex",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"station", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dataplex",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"station", "method", "path", "status"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataplex",
			Subsystem: "pakbus",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames discarded by the session engine.",
		},
		[]string{"station", "reason"},
	)
	hellosAnswered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataplex",
			Subsystem: "pakbus",
			Name:      "hellos_answered_total",
			Help:      "Unsolicited Hello commands answered while waiting.",
		},
		[]string{"station"},
	)
	waitExtensions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataplex",
			Subsystem: "pakbus",
			Name:      "wait_extensions_total",
			Help:      "Please Wait messages that extended a transaction deadline.",
		},
		[]string{"station"},
	)
	transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataplex",
			Subsystem: "pakbus",
			Name:      "transactions_total",
			Help:      "Finished transactions by request type and outcome.",
		},
		[]string{"station", "msg_type", "state"},
	)
	transactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dataplex",
			Subsystem: "pakbus",
			Name:      "transaction_duration_seconds",
			Help:      "Time from request to response or give-up.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"station", "msg_type"},
	)
	readingsRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataplex",
			Subsystem: "relay",
			Name:      "readings_total",
			Help:      "Readings handed to the sinks.",
		},
		[]string{"station"},
	)
	sinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataplex",
			Subsystem: "relay",
			Name:      "sink_errors_total",
			Help:      "Readings at least one sink failed to accept.",
		},
		[]string{"station"},
	)
	pollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataplex",
			Subsystem: "relay",
			Name:      "poll_errors_total",
			Help:      "Field reads that failed during a poll.",
		},
		[]string{"station", "field"},
	)
	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataplex",
			Subsystem: "relay",
			Name:      "reconnects_total",
			Help:      "Attempts to reopen the datalogger session.",
		},
		[]string{"station"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			framesDropped, hellosAnswered, waitExtensions, transactions, transactionDuration,
			readingsRelayed, sinkErrors, pollErrors, reconnects,
		)
	})
}

func RecordHTTPRequest(station, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(station, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(station, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordReading(station string, sinkErr error) {
	RegisterMetrics()
	readingsRelayed.WithLabelValues(station).Inc()
	if sinkErr != nil {
		sinkErrors.WithLabelValues(station).Inc()
	}
}

func RecordPollError(station, field string) {
	RegisterMetrics()
	pollErrors.WithLabelValues(station, field).Inc()
}

func RecordReconnect(station string) {
	RegisterMetrics()
	reconnects.WithLabelValues(station).Inc()
}

// SessionObserver feeds session engine events into the pakbus metrics.
type SessionObserver struct {
	station string
}

var _ session.Observer = SessionObserver{}

func NewSessionObserver(station string) SessionObserver {
	RegisterMetrics()
	return SessionObserver{station: station}
}

func (o SessionObserver) FrameDropped(reason string) {
	framesDropped.WithLabelValues(o.station, reason).Inc()
}

func (o SessionObserver) HelloAnswered() {
	hellosAnswered.WithLabelValues(o.station).Inc()
}

func (o SessionObserver) WaitExtended(time.Duration) {
	waitExtensions.WithLabelValues(o.station).Inc()
}

func (o SessionObserver) TransactionDone(msgType uint8, state session.State, elapsed time.Duration) {
	label := fmt.Sprintf("0x%02x", msgType)
	transactions.WithLabelValues(o.station, label, state.String()).Inc()
	transactionDuration.WithLabelValues(o.station, label).Observe(elapsed.Seconds())
}
