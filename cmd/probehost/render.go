package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/GriffinCanCode/probehost/internal/batch"
	"github.com/GriffinCanCode/probehost/internal/runtime/output"
)

const barWidth = 20

// renderOutput formats one plugin's result for the terminal.
func renderOutput(out batch.PluginOutput) string {
	var sb strings.Builder
	sb.WriteString(Styles.Header.Render(out.DisplayName))
	sb.WriteString(" ")
	sb.WriteString(Styles.Dim.Render("(" + out.ProviderID + ")"))
	sb.WriteString("\n")

	if len(out.Lines) == 0 {
		sb.WriteString("  " + Styles.Dim.Render("no data") + "\n")
		return sb.String()
	}

	width := 0
	for _, l := range out.Lines {
		width = max(width, len(l.Title()))
	}
	for _, l := range out.Lines {
		label := fmt.Sprintf("%-*s", width, l.Title())
		sb.WriteString("  " + Styles.Dim.Render(label) + "  " + renderLine(l, out.Failed()) + "\n")
	}
	return sb.String()
}

func renderLine(l output.Line, failed bool) string {
	switch v := l.(type) {
	case output.Text:
		return colored(Styles.Plain, v.Color).Render(v.Value)
	case output.Progress:
		return colored(Styles.Plain, v.Color).Render(progressBar(v.Value, v.Max)) + " " + progressValue(v)
	case output.Badge:
		if failed {
			return Styles.Error.Render(v.Text)
		}
		return colored(Styles.Badge, v.Color).Render("[" + v.Text + "]")
	default:
		return ""
	}
}

func progressBar(value, maxValue float64) string {
	filled := 0
	if maxValue > 0 {
		ratio := math.Min(math.Max(value/maxValue, 0), 1)
		filled = int(math.Round(ratio * barWidth))
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

func progressValue(p output.Progress) string {
	switch p.Unit {
	case output.UnitPercent:
		return trimFloat(p.Value) + "%"
	case output.UnitDollars:
		return fmt.Sprintf("$%.2f / $%.2f", p.Value, p.Max)
	default:
		return trimFloat(p.Value) + " / " + trimFloat(p.Max)
	}
}

func trimFloat(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}
