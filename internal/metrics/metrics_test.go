package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordGatewayCall(t *testing.T) {
	op := "test_list_notifications"
	beforeOK := testutil.ToFloat64(GatewayRequests.WithLabelValues(op, "success"))
	beforeErr := testutil.ToFloat64(GatewayRequests.WithLabelValues(op, "error"))

	RecordGatewayCall(op, 10*time.Millisecond, nil)
	RecordGatewayCall(op, 20*time.Millisecond, errors.New("boom"))
	RecordGatewayCall(op, 5*time.Millisecond, nil)

	if got := testutil.ToFloat64(GatewayRequests.WithLabelValues(op, "success")) - beforeOK; got != 2 {
		t.Errorf("success delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(GatewayRequests.WithLabelValues(op, "error")) - beforeErr; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

func TestRecordPoll(t *testing.T) {
	before := testutil.ToFloat64(SyncPolls.WithLabelValues("test", "dropped"))
	RecordPoll("test", "dropped")
	if got := testutil.ToFloat64(SyncPolls.WithLabelValues("test", "dropped")) - before; got != 1 {
		t.Errorf("dropped delta = %v, want 1", got)
	}
}

func TestUnreadGauge(t *testing.T) {
	UnreadNotifications.Set(7)
	if got := testutil.ToFloat64(UnreadNotifications); got != 7 {
		t.Errorf("unread gauge = %v, want 7", got)
	}
}

func TestCollectorsLint(t *testing.T) {
	problems, err := testutil.CollectAndLint(GatewayRequests)
	if err != nil {
		t.Fatalf("CollectAndLint: %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint %s: %s", p.Metric, p.Text)
	}
}
