package analysis

import "time"

// Turbine is one row of a regression run.
type Turbine struct {
	ID                     string  `json:"id"`
	PredictedDaysToFailure int     `json:"predicted_days_to_failure"`
	CurrentStatus          string  `json:"current_status"` // Normal, Monitor, Warning, Critical
	RiskScore              int     `json:"risk_score"`     // 0-100
	PredictedDowntime      float64 `json:"predicted_downtime"`
}

// RiskSummary aggregates a fleet of turbines for the results dashboard.
type RiskSummary struct {
	Turbines             int     `json:"turbines"`
	AvgDaysToFailure     float64 `json:"avg_days_to_failure"`
	AvgRiskScore         float64 `json:"avg_risk_score"`
	AtRiskCount          int     `json:"at_risk_count"` // Critical or Warning
	AvgPredictedDowntime float64 `json:"avg_predicted_downtime"`
}

// Summarize computes the fleet averages. An empty fleet yields zeros.
func Summarize(turbines []Turbine) RiskSummary {
	s := RiskSummary{Turbines: len(turbines)}
	if len(turbines) == 0 {
		return s
	}

	var days, risk, downtime float64
	for _, t := range turbines {
		days += float64(t.PredictedDaysToFailure)
		risk += float64(t.RiskScore)
		downtime += t.PredictedDowntime
		if t.CurrentStatus == "Critical" || t.CurrentStatus == "Warning" {
			s.AtRiskCount++
		}
	}
	n := float64(len(turbines))
	s.AvgDaysToFailure = days / n
	s.AvgRiskScore = risk / n
	s.AvgPredictedDowntime = downtime / n
	return s
}

// RiskBand buckets a risk score: high from 75, elevated from 50.
func RiskBand(score int) string {
	switch {
	case score >= 75:
		return "high"
	case score >= 50:
		return "elevated"
	default:
		return "low"
	}
}

// Regression is a bundled regression run shown before any upload.
type Regression struct {
	FileName string      `json:"file_name"`
	Records  int         `json:"records"`
	Turbines []Turbine   `json:"turbines"`
	Alerts   []Alert     `json:"alerts"`
	Summary  RiskSummary `json:"summary"`
}

// SampleRegression returns the results of the wind turbine maintenance test data set.
func SampleRegression(now time.Time) Regression {
	turbines := []Turbine{
		{"T01", 12, "Warning", 82, 4.5},
		{"T02", 45, "Normal", 23, 2.1},
		{"T03", 67, "Normal", 15, 1.8},
		{"T04", 89, "Normal", 8, 1.2},
		{"T05", 34, "Monitor", 45, 3.2},
		{"T06", 78, "Normal", 12, 1.5},
		{"T07", 56, "Normal", 18, 2.0},
		{"T08", 8, "Critical", 89, 5.8},
		{"T09", 42, "Normal", 28, 2.4},
		{"T10", 15, "Warning", 81, 4.2},
		{"T11", 71, "Normal", 14, 1.7},
		{"T12", 93, "Normal", 6, 1.0},
		{"T13", 22, "Warning", 76, 3.9},
		{"T14", 61, "Normal", 19, 2.2},
		{"T15", 38, "Monitor", 52, 3.5},
	}

	alert := func(id string, p float64) Alert {
		return Alert{TurbineID: id, Probability: p, Model: ModelRandomForest, Timestamp: now, Severity: ClassifySeverity(p)}
	}

	return Regression{
		FileName: "wind_turbine_maintenance_test_data.csv",
		Records:  35040,
		Turbines: turbines,
		Alerts: []Alert{
			alert("T08", 0.89),
			alert("T13", 0.76),
			alert("T01", 0.82),
			alert("T10", 0.81),
		},
		Summary: Summarize(turbines),
	}
}
