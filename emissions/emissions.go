package emissions

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Source is one of the fixed energy sources of a mix.
type Source int

const (
	Solar Source = iota
	Wind
	Hydro
	Nuclear
	Biomass
	Gas
	Oil
	Coal

	numSources
)

var sourceNames = [numSources]string{
	"solar", "wind", "hydro", "nuclear", "biomass", "gas", "oil", "coal",
}

// CO2 emission factors (gCO2/kWh), IPCC/NREL medians
var emissionFactors = [numSources]float64{
	Solar:   45,
	Wind:    12,
	Hydro:   24,
	Nuclear: 12,
	Biomass: 230,
	Gas:     490,
	Oil:     650,
	Coal:    820,
}

// Zone thresholds in gCO2/kWh. Comparisons are strict, so a boundary value
// belongs to the lower zone.
const (
	GreenMax  = 150.0
	OrangeMax = 350.0
)

func (s Source) String() string {
	if s < 0 || s >= numSources {
		return fmt.Sprintf("source(%d)", int(s))
	}
	return sourceNames[s]
}

// Factor returns the emission factor of s in gCO2/kWh.
func (s Source) Factor() float64 {
	if s < 0 || s >= numSources {
		return 0
	}
	return emissionFactors[s]
}

// Sources returns all sources in declaration order.
func Sources() []Source {
	out := make([]Source, numSources)
	for i := range out {
		out[i] = Source(i)
	}
	return out
}

// ParseSource maps a lowercase source name to its Source.
func ParseSource(name string) (Source, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range sourceNames {
		if n == key {
			return Source(i), nil
		}
	}
	return 0, fmt.Errorf("unknown energy source %q", name)
}

// Factors returns the emission factor table keyed by source name.
func Factors() map[string]float64 {
	out := make(map[string]float64, numSources)
	for i, n := range sourceNames {
		out[n] = emissionFactors[i]
	}
	return out
}

// Mix holds the percentage share of every source. The array shape keeps the
// set of sources closed; shares are neither clamped nor normalized.
type Mix [numSources]float64

// DefaultMix is the demo mix the dashboard starts with.
func DefaultMix() Mix {
	return Mix{
		Solar:   30,
		Wind:    25,
		Hydro:   10,
		Nuclear: 10,
		Biomass: 5,
		Gas:     15,
		Oil:     2,
		Coal:    3,
	}
}

// MixFromMap builds a Mix from named shares. Sources missing from m stay at 0.
func MixFromMap(m map[string]float64) (Mix, error) {
	var mix Mix
	for name, pct := range m {
		s, err := ParseSource(name)
		if err != nil {
			return Mix{}, err
		}
		mix[s] = pct
	}
	return mix, nil
}

// Set updates the share of a single source.
func (m *Mix) Set(s Source, pct float64) {
	if s < 0 || s >= numSources {
		return
	}
	m[s] = pct
}

// Get returns the share of s.
func (m Mix) Get(s Source) float64 {
	if s < 0 || s >= numSources {
		return 0
	}
	return m[s]
}

// Total returns the sum of all shares. A sum that overflows is 0.
func (m Mix) Total() float64 {
	var sum float64
	for _, pct := range m {
		sum += pct
	}
	return finite(sum)
}

// SumWarning returns a warning when the shares do not add up to 100%.
// An unbalanced mix is still valid input.
func (m Mix) SumWarning() string {
	total := m.Total()
	if total == 100 {
		return ""
	}
	return fmt.Sprintf("total is %s%% (should equal 100%%)", FormatPercent(total))
}

// ToMap returns the shares keyed by source name.
func (m Mix) ToMap() map[string]float64 {
	out := make(map[string]float64, numSources)
	for i, pct := range m {
		out[sourceNames[i]] = pct
	}
	return out
}

func (m Mix) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

func (m *Mix) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mix, err := MixFromMap(raw)
	if err != nil {
		return err
	}
	*m = mix
	return nil
}

func (m Mix) MarshalYAML() (interface{}, error) {
	return m.ToMap(), nil
}

func (m *Mix) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw map[string]float64
	if err := unmarshal(&raw); err != nil {
		return err
	}
	mix, err := MixFromMap(raw)
	if err != nil {
		return err
	}
	*m = mix
	return nil
}

// Zone is the qualitative classification of an emission intensity.
type Zone int

const (
	Green Zone = iota
	Orange
	Red
)

func (z Zone) String() string {
	switch z {
	case Red:
		return "Red"
	case Orange:
		return "Orange"
	default:
		return "Green"
	}
}

// Label is the display text of the zone badge.
func (z Zone) Label() string {
	return z.String() + " Zone"
}

// Color is the display variant of the zone.
func (z Zone) Color() string {
	switch z {
	case Red:
		return "destructive"
	case Orange:
		return "warning"
	default:
		return "success"
	}
}

func (z Zone) MarshalJSON() ([]byte, error) {
	return json.Marshal(z.String())
}

func (z *Zone) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, candidate := range []Zone{Green, Orange, Red} {
		if strings.EqualFold(name, candidate.String()) {
			*z = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown zone %q", name)
}

// Classify maps an intensity to its zone. First match wins.
func Classify(intensity float64) Zone {
	if intensity > OrangeMax {
		return Red
	}
	if intensity > GreenMax {
		return Orange
	}
	return Green
}

// Contribution is the weighted share of a single source.
type Contribution struct {
	Source   Source  `json:"-"`
	Name     string  `json:"source"`
	Share    float64 `json:"percentage"`
	Factor   float64 `json:"factor"`
	Weighted float64 `json:"weighted"`
}

// Metrics is the full projection of a mix. It is recomputed on every input change.
type Metrics struct {
	Intensity      float64        `json:"intensity"`
	Zone           Zone           `json:"zone"`
	Breakdown      []Contribution `json:"breakdown"`
	TotalEmissions float64        `json:"total_emissions"` // tCO2
	CarbonCost     float64        `json:"carbon_cost"`     // thousands of currency units
}

// RoundedIntensity is the intensity as displayed, rounded to the nearest integer.
func (m Metrics) RoundedIntensity() int64 {
	return int64(math.Round(m.Intensity))
}

func weighted(m Mix, s Source) float64 {
	return finite((m[s] / 100) * emissionFactors[s])
}

// Intensity returns the weighted emission intensity of m in gCO2/kWh.
func Intensity(m Mix) float64 {
	var sum float64
	for _, s := range Sources() {
		sum += weighted(m, s)
	}
	return finite(sum)
}

// Breakdown returns every source's contribution sorted by weighted
// contribution, highest first. Ties keep declaration order.
func Breakdown(m Mix) []Contribution {
	out := make([]Contribution, 0, numSources)
	for _, s := range Sources() {
		out = append(out, Contribution{
			Source:   s,
			Name:     s.String(),
			Share:    m[s],
			Factor:   emissionFactors[s],
			Weighted: weighted(m, s),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weighted > out[j].Weighted
	})
	return out
}

// Compute derives intensity, zone, breakdown and annual totals from a mix,
// the annual consumption in MWh and the carbon price per tonne.
// It never fails: non-finite results collapse to 0.
func Compute(m Mix, annualConsumptionMWh, carbonPrice float64) Metrics {
	intensity := Intensity(m)
	totalEmissions := finite(intensity * annualConsumptionMWh / 1000)
	return Metrics{
		Intensity:      intensity,
		Zone:           Classify(intensity),
		Breakdown:      Breakdown(m),
		TotalEmissions: totalEmissions,
		CarbonCost:     finite(totalEmissions * carbonPrice / 1000),
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
