package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/m-lab/rtnl/metrics"
)

func TestMetricsRecordObservations(t *testing.T) {
	metrics.RequestTotal.WithLabelValues("RTM_GETLINK").Inc()
	metrics.ErrorTotal.WithLabelValues("netlink_error").Inc()
	metrics.TransactionDuration.WithLabelValues("RTM_GETLINK").Observe(0.001)
	metrics.DumpMessageCount.Observe(4)

	if got := testutil.ToFloat64(metrics.RequestTotal.WithLabelValues("RTM_GETLINK")); got < 1 {
		t.Errorf("RequestTotal = %v, want >= 1", got)
	}
	if got := testutil.ToFloat64(metrics.ErrorTotal.WithLabelValues("netlink_error")); got < 1 {
		t.Errorf("ErrorTotal = %v, want >= 1", got)
	}
}
