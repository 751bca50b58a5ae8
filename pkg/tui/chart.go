package tui

import (
	"math"
	"strings"
)

// Block characters for eighth-cell bar precision.
var barBlocks = [9]rune{' ', '▏', '▎', '▍', '▌', '▋', '▊', '▉', '█'}

// Sparkline levels, lowest to highest.
var sparkBlocks = [8]rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// bar renders ratio (0..1) as a horizontal bar exactly width cells wide.
func bar(ratio float64, width int) string {
	if width <= 0 {
		return ""
	}
	ratio = math.Max(0, math.Min(1, ratio))

	units := int(math.Round(ratio * float64(width*8)))
	full, part := units/8, units%8

	var b strings.Builder
	b.WriteString(strings.Repeat(string(barBlocks[8]), full))
	cells := full
	if part > 0 {
		b.WriteRune(barBlocks[part])
		cells++
	}
	b.WriteString(strings.Repeat(" ", width-cells))
	return b.String()
}

// sparkline renders the last width values scaled between their min and
// max. A flat series sits at mid height.
func sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var b strings.Builder
	for _, v := range values {
		idx := 3
		if hi > lo {
			idx = int(math.Round((v - lo) / (hi - lo) * 7))
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}
