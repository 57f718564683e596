package emissions

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

const oneDecimal = "#,###.#"

// FormatIntensity renders an intensity the way the dashboard shows it: a whole number.
func FormatIntensity(v float64) string {
	return humanize.Comma(int64(math.Round(finite(v))))
}

// FormatTonnes renders a mass in tonnes with one decimal.
func FormatTonnes(v float64) string {
	return humanize.FormatFloat(oneDecimal, finite(v))
}

// FormatCost renders a cost already scaled to thousands, e.g. "107.0k".
func FormatCost(v float64) string {
	return humanize.FormatFloat(oneDecimal, finite(v)) + "k"
}

// FormatPercent renders a share, dropping a trailing ".0".
func FormatPercent(v float64) string {
	return strings.TrimSuffix(humanize.FormatFloat(oneDecimal, finite(v)), ".0")
}
