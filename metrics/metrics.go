// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to the rtnetlink transaction driver.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: requests, replies, dumps.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionDuration tracks the latency of a full execute() cycle: send,
	// then receive until DONE/ERROR/non-MULTI. It does NOT include the time
	// spent decoding replies into typed entities.
	TransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "rtnl_transaction_duration_seconds",
			Help: "rtnetlink request/response latency distribution (seconds)",
			Buckets: []float64{
				0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
				0.1, 0.25, 0.5, 1, 2.5, 5, 10,
			},
		},
		[]string{"msg_type"})

	// DumpMessageCount tracks how many payload messages a transaction
	// collected. It is recorded for every NLM_F_DUMP request and for any
	// other transaction that collected more than one message.
	DumpMessageCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rtnl_dump_messages_total",
			Help:    "number of messages collected per dump transaction",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		},
	)

	// ErrorTotal counts transaction failures by kind: "wrong_sender_pid",
	// "netlink_error", "decode", "socket".
	ErrorTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtnl_error_total",
			Help: "The total number of rtnetlink transaction errors, by kind.",
		}, []string{"kind"})

	// RequestTotal counts requests sent, by the netlink message type carried
	// in the request header (RTM_NEWLINK, RTM_GETROUTE, ...).
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtnl_request_total",
			Help: "The total number of rtnetlink requests sent, by message type.",
		}, []string{"msg_type"})
)

// init prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in rtnl.metrics are registered.")
}
