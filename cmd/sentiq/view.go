package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sentiq/internal/engine"
	"sentiq/internal/report"
)

// rowsModel is a scrollable view over the rows of one backtest.
type rowsModel struct {
	res      *engine.Result
	viewport viewport.Model
	width    int
	ready    bool
}

func viewRows(res *engine.Result) error {
	p := tea.NewProgram(rowsModel{res: res}, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

func (m rowsModel) Init() tea.Cmd { return nil }

func (m rowsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "g", "home":
			m.viewport.GotoTop()
			return m, nil
		case "G", "end":
			m.viewport.GotoBottom()
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		vpHeight := max(msg.Height-3, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.viewport.SetContent(m.renderRows())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m rowsModel) View() string {
	if !m.ready {
		return "loading..."
	}
	run := m.res.Run
	header := headerStyle.Width(m.width).Render(fmt.Sprintf(" %s  %s  Sharpe %.2f  MaxDD %s  Return %s",
		run.Symbol, run.Classifier, run.Summary.Sharpe,
		report.FormatPct(run.Summary.MaxDrawdown), report.FormatPct(run.Summary.TotalReturn)))
	cols := dimStyle.Render(fmt.Sprintf("%-10s %9s %8s %5s %6s %6s %9s %9s %8s %-6s",
		"DATE", "RETURN", "VOL", "PRED", "CONF", "POS", "STRAT", "EQUITY", "DD", "REGIME"))
	footer := lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8")).Width(m.width).
		Render(fmt.Sprintf(" q quit  g/G top/bottom  pgup/pgdn scroll  %3.0f%%", m.viewport.ScrollPercent()*100))
	return header + "\n" + cols + "\n" + m.viewport.View() + "\n" + footer
}

func (m rowsModel) renderRows() string {
	var b strings.Builder
	for _, r := range m.res.Backtest.Rows {
		vol := "-"
		if v, ok := r.Volatility.Get(); ok {
			vol = fmt.Sprintf("%.4f", v)
		}
		line := fmt.Sprintf("%-10s %s %8s %5d %6.2f %6.2f %s %9.4f %8s %-6s",
			r.Time.Format("2006-01-02"),
			returnStyle(r.Return).Render(fmt.Sprintf("%9.4f", r.Return)),
			vol,
			r.Label,
			r.Confidence,
			r.PositionSize,
			returnStyle(r.StrategyReturn).Render(fmt.Sprintf("%9.4f", r.StrategyReturn)),
			r.CumStrategy,
			report.FormatPct(r.Drawdown),
			r.Regime,
		)
		if r.Stopped {
			line = dimStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
