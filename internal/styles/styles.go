// Package styles holds the lipgloss palette shared by the CLI and the
// interactive console.
package styles

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors meet WCAG AA contrast on both black and dark surfaces.
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	PausedColor    = lipgloss.Color("#60A5FA") // Blue

	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	Title    = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)
	Label    = lipgloss.NewStyle().Foreground(MutedColor).Width(14)
	HelpKey  = lipgloss.NewStyle().Bold(true).Foreground(SecondaryColor)
	HelpBar  = lipgloss.NewStyle().Foreground(MutedColor).MarginTop(1)
	Panel    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(BorderColor).Padding(0, 1)
	Prompt   = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor)
	Badge    = lipgloss.NewStyle().Bold(true).Foreground(TextColor).Padding(0, 1)
	ErrorMsg = lipgloss.NewStyle().Bold(true).Foreground(ErrorColor)
)

// Pressure levels for ratio colouring.
const (
	WarnRatio = 0.75
	HighRatio = 0.90
)

// StateBadge renders RUNNING or PAUSED as a coloured badge.
func StateBadge(paused bool) string {
	if paused {
		return Badge.Background(PausedColor).Render("PAUSED")
	}
	return Badge.Background(SecondaryColor).Render("RUNNING")
}

// Ratio renders a usage ratio as a percentage coloured against threshold.
// A threshold of zero colours only by the fixed pressure levels.
func Ratio(ratio, threshold float64) string {
	text := fmt.Sprintf("%.1f%%", ratio*100)
	switch {
	case threshold > 0 && ratio > threshold, ratio >= HighRatio:
		return Error.Render(text)
	case ratio >= WarnRatio:
		return Warning.Render(text)
	default:
		return Secondary.Render(text)
	}
}

// Gauge renders a fixed-width bar for ratio, e.g. "[#####.....]".
func Gauge(ratio, threshold float64, width int) string {
	if width < 1 {
		width = 1
	}
	ratio = min(max(ratio, 0), 1)
	filled := int(ratio*float64(width) + 0.5)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", width-filled)

	style := Secondary
	switch {
	case threshold > 0 && ratio > threshold, ratio >= HighRatio:
		style = Error
	case ratio >= WarnRatio:
		style = Warning
	}
	return "[" + style.Render(bar) + "]"
}

// Holds renders active hold names, or a muted "none".
func Holds(active []string) string {
	if len(active) == 0 {
		return Muted.Render("none")
	}
	return Warning.Render(strings.Join(active, ", "))
}

// Limit renders the population limit marker.
func Limit(over bool) string {
	if over {
		return Error.Render("OVER LIMIT")
	}
	return Secondary.Render("OK")
}

// Row renders a label/value pair.
func Row(label, value string) string {
	return Label.Render(label) + " " + value
}
