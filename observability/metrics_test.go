package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFundMetricsCountContributionOutcomes(t *testing.T) {
	m := Metrics()
	before := testutil.ToFloat64(m.contributions.WithLabelValues("accepted"))
	m.RecordContribution("accepted")
	m.RecordContribution("accepted")
	if got := testutil.ToFloat64(m.contributions.WithLabelValues("accepted")); got != before+2 {
		t.Fatalf("expected accepted counter %v, got %v", before+2, got)
	}
	rejectedBefore := testutil.ToFloat64(m.contributions.WithLabelValues("below_minimum"))
	m.RecordContribution("below_minimum")
	if got := testutil.ToFloat64(m.contributions.WithLabelValues("below_minimum")); got != rejectedBefore+1 {
		t.Fatalf("expected below_minimum counter %v, got %v", rejectedBefore+1, got)
	}
}

func TestFundMetricsCountWithdrawalOutcomes(t *testing.T) {
	m := Metrics()
	before := testutil.ToFloat64(m.withdrawals.WithLabelValues("settled"))
	m.RecordWithdrawal("settled")
	if got := testutil.ToFloat64(m.withdrawals.WithLabelValues("settled")); got != before+1 {
		t.Fatalf("expected settled counter %v, got %v", before+1, got)
	}
}

func TestFundMetricsObserveOracleQuery(t *testing.T) {
	m := Metrics()
	m.ObserveOracleQuery(25 * time.Millisecond)
	if got := testutil.CollectAndCount(m.oracleLatency); got != 1 {
		t.Fatalf("expected a single histogram series, got %d", got)
	}
}

func TestMetricsReturnsSingleton(t *testing.T) {
	if Metrics() != Metrics() {
		t.Fatal("expected a process-wide metrics registry")
	}
}
