package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.ElectionsTotal == nil || r.NodeState == nil || r.ReplicaUpdatesTotal == nil || r.TransportRequestsTotal == nil {
		t.Error("Metric families not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestSetNodeState(t *testing.T) {
	r := NewRegistry()

	r.SetNodeState("election")
	r.SetNodeState("normal")

	if v := gaugeValue(t, r.NodeState.WithLabelValues("normal")); v != 1 {
		t.Errorf("normal = %v, want 1", v)
	}
	if v := gaugeValue(t, r.NodeState.WithLabelValues("election")); v != 0 {
		t.Errorf("election = %v, want 0", v)
	}
}

func TestSetNodeRole(t *testing.T) {
	r := NewRegistry()

	r.SetNodeRole("coordinator")
	if v := gaugeValue(t, r.NodeRole.WithLabelValues("coordinator")); v != 1 {
		t.Errorf("coordinator = %v, want 1", v)
	}

	r.SetNodeRole("slave")
	if v := gaugeValue(t, r.NodeRole.WithLabelValues("coordinator")); v != 0 {
		t.Errorf("coordinator after switch = %v, want 0", v)
	}
	if v := gaugeValue(t, r.NodeRole.WithLabelValues("slave")); v != 1 {
		t.Errorf("slave = %v, want 1", v)
	}
}

func TestRecordActivation(t *testing.T) {
	r := NewRegistry()

	r.RecordActivation("won", 150*time.Millisecond)
	r.RecordActivation("won", 50*time.Millisecond)
	r.RecordActivation("quorum_lost", time.Second)

	if v := counterValue(t, r.ElectionsTotal.WithLabelValues("won")); v != 2 {
		t.Errorf("won = %v, want 2", v)
	}
	if v := counterValue(t, r.ElectionsTotal.WithLabelValues("quorum_lost")); v != 1 {
		t.Errorf("quorum_lost = %v, want 1", v)
	}

	var metric dto.Metric
	if err := r.MergeContinueDuration.Write(&metric); err != nil {
		t.Fatalf("Failed to write histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("Sample count = %v, want 2 (failures are not timed)", metric.Histogram.GetSampleCount())
	}
	if sum := metric.Histogram.GetSampleSum(); sum < 0.19 || sum > 0.21 {
		t.Errorf("Sample sum = %v, want ~0.2", sum)
	}
}

func TestUpdateGroupMetrics(t *testing.T) {
	r := NewRegistry()
	r.UpdateGroupMetrics(4, 3, 3)

	if v := gaugeValue(t, r.Generation); v != 4 {
		t.Errorf("generation = %v, want 4", v)
	}
	if v := gaugeValue(t, r.GroupSize); v != 3 {
		t.Errorf("group size = %v, want 3", v)
	}
	if v := gaugeValue(t, r.MaxKnownSize); v != 3 {
		t.Errorf("max known = %v, want 3", v)
	}
}

func TestRecordReplicaSync(t *testing.T) {
	r := NewRegistry()
	r.RecordReplicaSync(nil)
	r.RecordReplicaSync(errors.New("unreachable"))
	r.RecordReplicaSync(errors.New("unreachable"))

	if v := counterValue(t, r.ReplicaSyncsTotal.WithLabelValues("success")); v != 1 {
		t.Errorf("success = %v, want 1", v)
	}
	if v := counterValue(t, r.ReplicaSyncsTotal.WithLabelValues("error")); v != 2 {
		t.Errorf("error = %v, want 2", v)
	}
}

func TestConcurrentTransportRequests(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RecordTransportRequest("node.accept", "ok", time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if v := counterValue(t, r.TransportRequestsTotal.WithLabelValues("node.accept", "ok")); v != 1000 {
		t.Errorf("Counter = %v, want 1000", v)
	}
}

func TestMetricNaming(t *testing.T) {
	r := NewRegistry()
	r.SetNodeState("inactive")
	r.RecordRecovery("timeout")

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("No metrics registered")
	}
	for _, m := range families {
		if !strings.HasPrefix(m.GetName(), "pubsub_") {
			t.Errorf("Metric %s does not have pubsub_ prefix", m.GetName())
		}
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.RecordInvitation("accepted")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`pubsub_cluster_invitations_total{result="accepted"} 1`,
		"pubsub_uptime_seconds",
		"pubsub_goroutines",
		"pubsub_start_time_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Scrape output missing %q", want)
		}
	}
}

func TestRuntimeCollectorsServed(t *testing.T) {
	r := NewRegistry()
	r.GetPrometheusRegistry().MustRegister(collectors.NewGoCollector())

	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("Expected Go runtime metrics next to pubsub_ metrics")
	}
}
