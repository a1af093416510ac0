package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/MrWong99/dawvox/internal/config"
	"github.com/MrWong99/dawvox/internal/dispatch"
)

var (
	accent = lipgloss.Color("#00afaf")
	dim    = lipgloss.Color("#6e7681")
	warn   = lipgloss.Color("#d7af00")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(dim).Width(14)
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(warn)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// renderSummary returns the startup box shown before the pipeline starts.
func renderSummary(cfg *config.Config, path string) string {
	if path == "" {
		path = "(built-in defaults)"
	}
	mode := string(cfg.Mode())
	if cfg.Mode() == dispatch.ModeLive {
		mode = warnStyle.Render("LIVE")
	}

	var phrases []string
	for _, p := range cfg.WakeWord.Phrases {
		if p.Role != "cancel" {
			phrases = append(phrases, p.Text)
		}
	}

	rows := [][2]string{
		{"Config", path},
		{"Mode", mode},
		{"Source", providerLabel(cfg.Providers.Source, cfg.Audio.Device)},
		{"Audio", fmt.Sprintf("%d Hz, %d ch, %v frames", cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.FrameDuration())},
		{"Wake words", truncate(strings.Join(phrases, ", "), 48)},
		{"STT", providerLabel(cfg.Providers.STT, cfg.Providers.STT.Model)},
		{"Language", cfg.STT.Language},
		{"Feedback", feedbackLabel(cfg)},
		{"Journal", string(cfg.Journal.Backend)},
	}
	if cfg.Diagnostics.ListenAddr != "" {
		rows = append(rows, [2]string{"Diagnostics", cfg.Diagnostics.ListenAddr})
	}

	lines := []string{titleStyle.Render("dawvox " + version)}
	for _, r := range rows {
		lines = append(lines, labelStyle.Render(r[0])+r[1])
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func providerLabel(e config.ProviderEntry, detail string) string {
	if e.Name == "" {
		return "(not configured)"
	}
	if detail != "" {
		return e.Name + " / " + detail
	}
	return e.Name
}

func feedbackLabel(cfg *config.Config) string {
	if !cfg.Feedback.Enabled {
		return "log only"
	}
	return fmt.Sprintf("%s (%s)", cfg.Providers.TTS.Name, cfg.Feedback.Language)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// renderTable renders rows under headers.
func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(dim)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
