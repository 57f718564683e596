package analysis

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MockProvider simulates the prediction service with randomized output.
type MockProvider struct {
	latency time.Duration
	now     func() time.Time

	mu   sync.Mutex
	rand *rand.Rand
}

// NewMockProvider creates a mock provider that answers after latency.
func NewMockProvider(latency time.Duration, seed int64) *MockProvider {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockProvider{
		latency: latency,
		now:     time.Now,
		rand:    rand.New(rand.NewSource(seed)),
	}
}

// Analyze waits for the simulated latency and returns 1 to 5 alerts.
func (m *MockProvider) Analyze(ctx context.Context, recordCount int) (*Result, error) {
	if recordCount <= 0 {
		return nil, fmt.Errorf("record count must be positive, got %d", recordCount)
	}

	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	detectedAt := m.now().UTC()
	numAlerts := m.rand.Intn(5) + 1
	alerts := make([]Alert, 0, numAlerts)
	for i := 0; i < numAlerts; i++ {
		probability := 0.7 + m.rand.Float64()*0.3
		model := ModelGBDT
		if m.rand.Float64() > 0.5 {
			model = ModelRandomForest
		}
		alerts = append(alerts, Alert{
			TurbineID:   fmt.Sprintf("WT-%03d", m.rand.Intn(recordCount)+1),
			Probability: probability,
			Model:       model,
			Timestamp:   detectedAt,
			Severity:    ClassifySeverity(probability),
		})
	}

	return &Result{
		Alerts: alerts,
		Metrics: ModelPair[ModelMetrics]{
			RF: ModelMetrics{
				Accuracy:  0.92 + m.rand.Float64()*0.05,
				Precision: 0.88 + m.rand.Float64()*0.08,
				Recall:    0.85 + m.rand.Float64()*0.1,
				F1:        0.87 + m.rand.Float64()*0.08,
				ROCAUC:    0.94 + m.rand.Float64()*0.05,
			},
			GBDT: ModelMetrics{
				Accuracy:  0.93 + m.rand.Float64()*0.04,
				Precision: 0.89 + m.rand.Float64()*0.07,
				Recall:    0.86 + m.rand.Float64()*0.09,
				F1:        0.88 + m.rand.Float64()*0.07,
				ROCAUC:    0.95 + m.rand.Float64()*0.04,
			},
		},
		ConfusionMatrix: ModelPair[ConfusionMatrix]{
			RF:   ConfusionMatrix{TP: 145, FP: 12, TN: 823, FN: 20},
			GBDT: ConfusionMatrix{TP: 148, FP: 10, TN: 825, FN: 17},
		},
	}, nil
}
