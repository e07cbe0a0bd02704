package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-realtime/internal/feed"
	"transit-realtime/internal/pipeline"
	"transit-realtime/internal/publisher"
	"transit-realtime/internal/realtime"
	"transit-realtime/internal/store"
)

var (
	_ feed.FetchMetrics          = (*Collector)(nil)
	_ pipeline.PipelineMetrics   = (*Collector)(nil)
	_ store.StoreMetrics         = (*Collector)(nil)
	_ publisher.PublisherMetrics = (*Collector)(nil)
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector(30*time.Second, 0)

	c.FetchObserve(realtime.KindVehiclePosition, 10*time.Millisecond, false)
	c.FetchObserve(realtime.KindVehiclePosition, 10*time.Millisecond, true)
	c.DecodeObserve(realtime.KindAlert, 0, errors.New("bad"))
	c.DecodeObserve(realtime.KindTripUpdate, 12, nil)
	c.FallbackInc(realtime.KindAlert)
	c.SnapshotPublished(&realtime.FeedSnapshot{Generation: 4, Simulated: true})
	c.SubscribersSet(3)
	c.SinkErrInc("postgres")
	c.NATSSetConnected(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.FetchFailures.WithLabelValues("VEHICLE_POSITION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DecodeErrors.WithLabelValues("ALERT")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.DecodedRecords.WithLabelValues("TRIP_UPDATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Fallbacks.WithLabelValues("ALERT")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.Generation))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Simulated))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Subscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SinkErrors.WithLabelValues("postgres")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))
	assert.Equal(t, 30.0, testutil.ToFloat64(c.PollInterval))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(time.Second, time.Second)
	c.TickObserve("poll", time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "transit_rt_tick_duration_seconds_count{mode=\"poll\"} 1")
}
