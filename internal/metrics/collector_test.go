package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.detectorInvocationsTotal)
	assert.NotNil(t, collector.gpuPoolCapacity)
	assert.NotNil(t, collector.oomTripsTotal)
	assert.NotNil(t, collector.coverageGateTotal)
	assert.NotNil(t, collector.vlRequestsTotal)
	assert.NotNil(t, collector.jobsTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordHTTPRequest("POST", "/analyze", 202, 50*time.Millisecond)
	c.RecordHTTPRequest("GET", "/status/v1", 200, 5*time.Millisecond)

	assert.Greater(t, testutil.CollectAndCount(c.httpRequestsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(c.httpRequestDuration), 0)
}

func TestCollector_RecordDetectorInvocation(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordDetectorInvocation("objects_coarse", "ok", 2*time.Second)
	c.RecordDetectorInvocation("superres", "oom", 1500*time.Millisecond)

	assert.Greater(t, testutil.CollectAndCount(c.detectorInvocationsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(c.detectorDuration), 0)
}

func TestCollector_RecordGPUPoolSnapshot(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordGPUPoolSnapshot("default", PoolSnapshot{Capacity: 4, InFlight: 2, Waiting: 1, Rejected: 0})
	c.RecordGPUAcquireWait("default", 10*time.Millisecond)

	assert.Greater(t, testutil.CollectAndCount(c.gpuPoolCapacity), 0)
	assert.Greater(t, testutil.CollectAndCount(c.gpuAcquireWait), 0)
}

func TestCollector_RecordOOMAndFallback(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordOOMTrip("vid-1")
	c.RecordFallbackLevel("vid-1", 2)
	c.RecordFallbackTransition("disable_superres", "oom")

	assert.Greater(t, testutil.CollectAndCount(c.oomTripsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(c.fallbackLevel), 0)
	assert.Greater(t, testutil.CollectAndCount(c.fallbackStepHits), 0)
}

func TestCollector_RecordCoverage(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordCoverageGate(true)
	c.RecordCoverageGate(false)
	c.RecordCoveragePct("vid-1", "frames_analyzed", 99.4)

	assert.Greater(t, testutil.CollectAndCount(c.coverageGateTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(c.coveragePctByField), 0)
}

func TestCollector_RecordVLRequest(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordVLRequest("qwen-vl", "success", 800*time.Millisecond)

	assert.Greater(t, testutil.CollectAndCount(c.vlRequestsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(c.vlRequestDuration), 0)
}

func TestCollector_RecordJobTerminalAndQueueLength(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordJobTerminal("completed", 42*time.Second)
	c.SetQueueLength(3)

	assert.Greater(t, testutil.CollectAndCount(c.jobsTotal), 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.jobsQueueLength))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			c.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
			c.RecordDetectorInvocation("faces", "ok", time.Millisecond)
			c.RecordOOMTrip("vid-concurrent")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Greater(t, testutil.CollectAndCount(c.httpRequestsTotal), 0)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(301))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(0))
}
