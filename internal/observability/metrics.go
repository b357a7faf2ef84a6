package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sdkMessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "sdk",
			Name:      "messages_sent_total",
			Help:      "Messages handed to the peer transport.",
		},
		[]string{"type"},
	)
	sdkMessagesQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "sdk",
			Name:      "messages_queued_total",
			Help:      "Messages buffered while the peer was not ready.",
		},
		[]string{"type"},
	)
	sdkInboundDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "sdk",
			Name:      "inbound_dropped_total",
			Help:      "Inbound peer events dropped before dispatch.",
		},
		[]string{"reason"},
	)
	sdkSendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "sdk",
			Name:      "send_failures_total",
			Help:      "Outbound messages the peer transport refused.",
		},
		[]string{"type"},
	)
	sdkTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "sdk",
			Name:      "state_transitions_total",
			Help:      "Handshake state transitions by target state.",
		},
		[]string{"state"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "framelink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	launcherActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "launcher",
			Name:      "actions_total",
			Help:      "api_call actions executed by the launcher.",
		},
		[]string{"node", "action", "success"},
	)
	launcherActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "framelink",
			Subsystem: "launcher",
			Name:      "action_duration_seconds",
			Help:      "api_call action duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "action", "success"},
	)
	launcherAuth = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framelink",
			Subsystem: "launcher",
			Name:      "authentications_total",
			Help:      "authenticate messages handled by the launcher.",
		},
		[]string{"node", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sdkMessagesSent, sdkMessagesQueued, sdkInboundDropped, sdkSendFailures, sdkTransitions,
			httpRequests, httpDuration,
			launcherActions, launcherActionDuration, launcherAuth,
		)
	})
}

func RecordSDKSend(msgType string) {
	RegisterMetrics()
	sdkMessagesSent.WithLabelValues(msgType).Inc()
}

func RecordSDKQueued(msgType string) {
	RegisterMetrics()
	sdkMessagesQueued.WithLabelValues(msgType).Inc()
}

func RecordSDKDropped(reason string) {
	RegisterMetrics()
	sdkInboundDropped.WithLabelValues(reason).Inc()
}

func RecordSDKSendFailure(msgType string) {
	RegisterMetrics()
	sdkSendFailures.WithLabelValues(msgType).Inc()
}

func RecordSDKTransition(state string) {
	RegisterMetrics()
	sdkTransitions.WithLabelValues(state).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordLauncherAction(node, action string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	launcherActions.WithLabelValues(node, action, successLabel).Inc()
	launcherActionDuration.WithLabelValues(node, action, successLabel).Observe(duration.Seconds())
}

func RecordLauncherAuth(node, outcome string) {
	RegisterMetrics()
	launcherAuth.WithLabelValues(node, outcome).Inc()
}
