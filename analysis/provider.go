package analysis

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Provider is the prediction service behind an ingestion. Calls may take
// arbitrarily long; callers bound them through ctx.
type Provider interface {
	Analyze(ctx context.Context, recordCount int) (*Result, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, recordCount int) (*Result, error)

func (f ProviderFunc) Analyze(ctx context.Context, recordCount int) (*Result, error) {
	return f(ctx, recordCount)
}

// Severity of a maintenance alert
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// HighSeverityThreshold is the probability from which an alert is high priority.
const HighSeverityThreshold = 0.8

// ClassifySeverity derives the severity of an alert from its failure probability.
func ClassifySeverity(probability float64) Severity {
	if probability >= HighSeverityThreshold {
		return SeverityHigh
	}
	return SeverityMedium
}

// Model variants producing predictions
const (
	ModelRandomForest = "Random Forest"
	ModelGBDT         = "GBDT"
)

// Alert is a single turbine flagged for maintenance.
type Alert struct {
	TurbineID   string    `json:"turbine_id"`
	Probability float64   `json:"probability"`
	Model       string    `json:"model"`
	Timestamp   time.Time `json:"timestamp"`
	Severity    Severity  `json:"severity"`
}

// ModelMetrics summarizes the quality of one model variant.
type ModelMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	ROCAUC    float64 `json:"roc_auc"`
}

// ConfusionMatrix of one model variant
type ConfusionMatrix struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

// ModelPair holds one value per supported model variant.
type ModelPair[T any] struct {
	RF   T `json:"rf"`
	GBDT T `json:"gbdt"`
}

// Result is what a Provider returns for an ingestion. It is display data and
// is never modified after creation.
type Result struct {
	Alerts          []Alert                    `json:"alerts"`
	Metrics         ModelPair[ModelMetrics]    `json:"metrics"`
	ConfusionMatrix ModelPair[ConfusionMatrix] `json:"confusion_matrix"`
}

// Validate checks the shape a provider must honor.
func (r *Result) Validate() error {
	if r == nil {
		return fmt.Errorf("provider returned no result")
	}
	for i, a := range r.Alerts {
		if a.TurbineID == "" {
			return fmt.Errorf("alert %d: missing turbine id", i)
		}
		if math.IsNaN(a.Probability) || a.Probability < 0 || a.Probability > 1 {
			return fmt.Errorf("alert %d: probability %v outside [0,1]", i, a.Probability)
		}
		if a.Severity != SeverityHigh && a.Severity != SeverityMedium {
			return fmt.Errorf("alert %d: unknown severity %q", i, a.Severity)
		}
	}
	for name, cm := range map[string]ConfusionMatrix{"rf": r.ConfusionMatrix.RF, "gbdt": r.ConfusionMatrix.GBDT} {
		if cm.TP < 0 || cm.FP < 0 || cm.TN < 0 || cm.FN < 0 {
			return fmt.Errorf("confusion matrix %s has negative counts", name)
		}
	}
	return nil
}

// HighSeverityCount returns the number of high priority alerts.
func (r *Result) HighSeverityCount() int {
	n := 0
	for _, a := range r.Alerts {
		if a.Severity == SeverityHigh {
			n++
		}
	}
	return n
}
