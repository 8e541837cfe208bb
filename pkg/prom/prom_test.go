package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndObserve(t *testing.T) {
	require.NoError(t, Create("test-host", "test", "trains"))

	ObserveReservation("success", 0.004)
	ObserveReservation("success", 0.002)
	ObserveReservation("exhausted", 0.001)
	IncReservationRetry()
	IncCapacityUpdate("rejected")
	ObserveConfirmation("confirmed", 1.5)

	outcomes := MetricCollectionCounterVec[SystemReservations+MetricReservationOutcomes]
	assert.Equal(t, float64(2), testutil.ToFloat64(outcomes.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(outcomes.WithLabelValues("exhausted")))

	retries := MetricCollectionCounters[SystemReservations+MetricReservationRetries]
	assert.Equal(t, float64(1), testutil.ToFloat64(retries))

	capacity := MetricCollectionCounterVec[SystemInventory+MetricCapacityUpdates]
	assert.Equal(t, float64(1), testutil.ToFloat64(capacity.WithLabelValues("rejected")))

	deliveries := MetricCollectionCounterVec[SystemConfirmation+MetricConfirmationDeliveryRes]
	assert.Equal(t, float64(1), testutil.ToFloat64(deliveries.WithLabelValues("confirmed")))
}

func TestTrackInFlight(t *testing.T) {
	if !MetricSystemEnabled {
		require.NoError(t, Create("test-host", "test", "trains"))
	}
	inFlight := MetricCollectionGaugeVec[SystemReservations+MetricInFlight]
	require.NotNil(t, inFlight)

	doneA := TrackInFlight("reserve")
	doneB := TrackInFlight("reserve")
	doneC := TrackInFlight("update_capacity")
	assert.Equal(t, float64(2), testutil.ToFloat64(inFlight.WithLabelValues("reserve")))
	assert.Equal(t, float64(1), testutil.ToFloat64(inFlight.WithLabelValues("update_capacity")))

	doneA()
	doneC()
	assert.Equal(t, float64(1), testutil.ToFloat64(inFlight.WithLabelValues("reserve")))
	assert.Equal(t, float64(0), testutil.ToFloat64(inFlight.WithLabelValues("update_capacity")))

	doneB()
	assert.Equal(t, float64(0), testutil.ToFloat64(inFlight.WithLabelValues("reserve")))
}

func TestCreateMetric_UnknownType(t *testing.T) {
	err := CreateMetric("summary", SystemReservations, "x")
	assert.Error(t, err)
}
