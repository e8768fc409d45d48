package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDispatch(t *testing.T) {
	before := testutil.ToFloat64(NotificationsDispatched.WithLabelValues("series_finale", "email", "failed"))
	RecordDispatch("series_finale", "email", "failed")
	after := testutil.ToFloat64(NotificationsDispatched.WithLabelValues("series_finale", "email", "failed"))
	if after != before+1 {
		t.Errorf("dispatch counter = %v, want %v", after, before+1)
	}
}

func TestRecordMetadataRequest(t *testing.T) {
	before := testutil.ToFloat64(MetadataRequests.WithLabelValues("success"))
	RecordMetadataRequest("success", 25*time.Millisecond)
	after := testutil.ToFloat64(MetadataRequests.WithLabelValues("success"))
	if after != before+1 {
		t.Errorf("metadata counter = %v, want %v", after, before+1)
	}
}
