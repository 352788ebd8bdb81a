package monitor

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// MetricSpec describes one synthetic series and its plausible range.
type MetricSpec struct {
	ServiceName string
	MetricName  string
	Type        MetricType
	Min         float64
	Max         float64
}

// DefaultCatalogue covers the analytics services deployed per org.
func DefaultCatalogue() []MetricSpec {
	return []MetricSpec{
		{ServiceName: "yolo-detection", MetricName: "inference_latency_ms", Type: MetricGauge, Min: 8, Max: 60},
		{ServiceName: "yolo-detection", MetricName: "gpu_utilization_percent", Type: MetricGauge, Min: 20, Max: 98},
		{ServiceName: "yolo-detection", MetricName: "frames_processed_total", Type: MetricCounter, Min: 1000, Max: 50000},
		{ServiceName: "face-service", MetricName: "inference_latency_ms", Type: MetricGauge, Min: 15, Max: 120},
		{ServiceName: "face-service", MetricName: "faces_detected_total", Type: MetricCounter, Min: 0, Max: 5000},
		{ServiceName: "reid-service", MetricName: "inference_latency_ms", Type: MetricGauge, Min: 10, Max: 90},
		{ServiceName: "reid-service", MetricName: "gallery_size", Type: MetricGauge, Min: 100, Max: 20000},
		{ServiceName: "fusion", MetricName: "queue_depth", Type: MetricGauge, Min: 0, Max: 500},
		{ServiceName: "fusion", MetricName: "queue_saturation_duration_seconds", Type: MetricGauge, Min: 0, Max: 60},
		{ServiceName: "mediamtx", MetricName: "active_streams", Type: MetricGauge, Min: 0, Max: 64},
		{ServiceName: "mediamtx", MetricName: "bytes_received_total", Type: MetricCounter, Min: 1e6, Max: 1e9},
	}
}

// SyntheticSource emits one randomized sample per catalogue entry.
type SyntheticSource struct {
	mu        sync.Mutex
	rng       *rand.Rand
	catalogue []MetricSpec
}

func NewSyntheticSource(catalogue []MetricSpec, rng *rand.Rand) *SyntheticSource {
	if len(catalogue) == 0 {
		catalogue = DefaultCatalogue()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &SyntheticSource{rng: rng, catalogue: catalogue}
}

func (s *SyntheticSource) Collect(_ context.Context, orgID string, now time.Time) ([]Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]Metric, 0, len(s.catalogue))
	for _, spec := range s.catalogue {
		batch = append(batch, Metric{
			OrgID:       orgID,
			ServiceName: spec.ServiceName,
			MetricName:  spec.MetricName,
			Value:       spec.Min + s.rng.Float64()*(spec.Max-spec.Min),
			Type:        spec.Type,
			Labels:      map[string]string{"source": "synthetic"},
			Timestamp:   now,
		})
	}
	return batch, nil
}

// StaticSource returns a fixed batch on every cycle.
type StaticSource []Metric

func (s StaticSource) Collect(_ context.Context, orgID string, now time.Time) ([]Metric, error) {
	batch := make([]Metric, len(s))
	copy(batch, s)
	for i := range batch {
		batch[i].OrgID = orgID
		batch[i].Timestamp = now
	}
	return batch, nil
}
