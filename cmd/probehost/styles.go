package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Styles defines the visual styles used across CLI output.
var Styles = initStyles()

type styles struct {
	Plain   lipgloss.Style
	Header  lipgloss.Style
	Key     lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Badge   lipgloss.Style
}

func initStyles() styles {
	// Respect NO_COLOR (https://no-color.org/)
	if os.Getenv("NO_COLOR") != "" {
		return styles{
			Plain:   lipgloss.NewStyle(),
			Header:  lipgloss.NewStyle(),
			Key:     lipgloss.NewStyle(),
			Dim:     lipgloss.NewStyle(),
			Success: lipgloss.NewStyle(),
			Warning: lipgloss.NewStyle(),
			Error:   lipgloss.NewStyle(),
			Badge:   lipgloss.NewStyle(),
		}
	}

	return styles{
		Plain:   lipgloss.NewStyle(),
		Header:  lipgloss.NewStyle().Bold(true),
		Key:     lipgloss.NewStyle().Foreground(lipgloss.Color("6")), // Cyan
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")), // Gray
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")), // Green
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")), // Yellow
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")), // Red
		Badge:   lipgloss.NewStyle().Bold(true),
	}
}

// colored applies a plugin supplied color on top of base.
func colored(base lipgloss.Style, color string) lipgloss.Style {
	if color == "" || os.Getenv("NO_COLOR") != "" {
		return base
	}
	return base.Foreground(lipgloss.Color(color))
}
