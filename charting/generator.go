package charting

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"turbinelens/analysis"
	"turbinelens/emissions"
)

// ErrNoData is returned when there is nothing worth plotting.
var ErrNoData = errors.New("no data to chart")

var zoneColors = map[emissions.Zone]drawing.Color{
	emissions.Green:  drawing.ColorFromHex("22c55e"),
	emissions.Orange: drawing.ColorFromHex("f59e0b"),
	emissions.Red:    drawing.ColorFromHex("ef4444"),
}

var severityColors = map[analysis.Severity]drawing.Color{
	analysis.SeverityHigh:   drawing.ColorFromHex("ef4444"),
	analysis.SeverityMedium: drawing.ColorFromHex("f59e0b"),
}

// Generator handles chart image creation
type Generator struct {
	Width  int
	Height int
}

func NewGenerator() *Generator {
	return &Generator{Width: 800, Height: 400}
}

func (g *Generator) background() chart.Style {
	return chart.Style{
		Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
	}
}

// GenerateBreakdown renders each source's weighted contribution (gCO2/kWh)
// as a bar, colored by the zone its own factor falls in. Sources with no
// positive contribution are left out.
func (g *Generator) GenerateBreakdown(breakdown []emissions.Contribution) ([]byte, error) {
	var bars []chart.Value
	for _, c := range breakdown {
		if c.Weighted <= 0 {
			continue
		}
		color := zoneColors[emissions.Classify(c.Factor)]
		bars = append(bars, chart.Value{
			Label: c.Source.String(),
			Value: c.Weighted,
			Style: chart.Style{FillColor: color, StrokeColor: color},
		})
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	graph := chart.BarChart{
		Title:      "Contribution to carbon intensity (gCO2/kWh)",
		Width:      g.Width,
		Height:     g.Height,
		BarWidth:   60,
		Background: g.background(),
		Bars:       bars,
	}
	return render(graph)
}

// GenerateAlertChart renders alert probabilities per turbine, colored by severity
func (g *Generator) GenerateAlertChart(alerts []analysis.Alert) ([]byte, error) {
	if len(alerts) == 0 {
		return nil, ErrNoData
	}

	bars := make([]chart.Value, 0, len(alerts))
	for _, a := range alerts {
		color, ok := severityColors[a.Severity]
		if !ok {
			color = chart.ColorBlue
		}
		bars = append(bars, chart.Value{
			Label: a.TurbineID,
			Value: a.Probability * 100,
			Style: chart.Style{FillColor: color, StrokeColor: color},
		})
	}

	graph := chart.BarChart{
		Title:      "Failure probability (%)",
		Width:      g.Width,
		Height:     g.Height,
		BarWidth:   50,
		Background: g.background(),
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Bars: bars,
	}
	return render(graph)
}

// GenerateRiskScatter plots risk score against predicted days to failure
func (g *Generator) GenerateRiskScatter(turbines []analysis.Turbine) ([]byte, error) {
	if len(turbines) < 2 {
		return nil, ErrNoData
	}

	series := map[string]*chart.ContinuousSeries{}
	order := []string{"low", "elevated", "high"}
	colors := map[string]drawing.Color{
		"low":      drawing.ColorFromHex("22c55e"),
		"elevated": drawing.ColorFromHex("f59e0b"),
		"high":     drawing.ColorFromHex("ef4444"),
	}
	for _, band := range order {
		series[band] = &chart.ContinuousSeries{
			Name: band,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    5,
				DotColor:    colors[band],
			},
		}
	}

	for _, t := range turbines {
		s := series[analysis.RiskBand(t.RiskScore)]
		s.XValues = append(s.XValues, float64(t.PredictedDaysToFailure))
		s.YValues = append(s.YValues, float64(t.RiskScore))
	}

	var plotted []chart.Series
	for _, band := range order {
		if len(series[band].XValues) > 0 {
			plotted = append(plotted, *series[band])
		}
	}

	graph := chart.Chart{
		Width:      g.Width,
		Height:     g.Height,
		Background: g.background(),
		XAxis: chart.XAxis{
			Name: "Predicted days to failure",
		},
		YAxis: chart.YAxis{
			Name:  "Risk score",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: plotted,
	}
	graph.Elements = []chart.Renderable{
		chart.Legend(&graph),
	}
	return render(graph)
}

type renderer interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

func render(c renderer) ([]byte, error) {
	buffer := bytes.NewBuffer([]byte{})
	if err := c.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buffer.Bytes(), nil
}
