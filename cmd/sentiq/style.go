package main

import (
	"github.com/charmbracelet/lipgloss"

	"sentiq/internal/domain"
	"sentiq/internal/news"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

func signalStyle(t domain.SignalType) lipgloss.Style {
	switch t {
	case domain.SignalBuy:
		return gainStyle.Bold(true)
	case domain.SignalSell:
		return lossStyle.Bold(true)
	default:
		return dimStyle
	}
}

func sentimentStyle(label string) lipgloss.Style {
	switch label {
	case news.Bullish:
		return gainStyle
	case news.Bearish:
		return lossStyle
	default:
		return dimStyle
	}
}

func returnStyle(f float64) lipgloss.Style {
	if f < 0 {
		return lossStyle
	}
	return gainStyle
}
