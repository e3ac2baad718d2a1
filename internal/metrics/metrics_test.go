package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/linux-automation/tacd/internal/broker"
	"github.com/linux-automation/tacd/internal/topic"
)

func TestClassOf(t *testing.T) {
	require.Equal(t, "dut", classOf("/v1/dut/powered"))
	require.Equal(t, "tac", classOf("/v1/tac/display/content"))
	require.Equal(t, "", classOf("/v1/"))
}

func TestInstrumentCountsPublishesByClass(t *testing.T) {
	PublishTotal.Reset()

	logger := logrus.StandardLogger()
	b := broker.New(logger)
	top := topic.New[int](logger, "test/metrics/dut")
	top.Publish(0)
	broker.RegisterJSON(b, "/v1/dut/metrictest", top, true, nil)

	// One retained-value delivery on subscribe plus two publishes.
	Instrument(b)

	top.Publish(1)
	top.Publish(2)

	require.InDelta(t, 3.0, testutil.ToFloat64(PublishTotal.WithLabelValues("dut")), 0.001)
}
