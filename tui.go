package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voiceops/clipboard"
	"voiceops/metrics"
	"voiceops/orchestrator"
	"voiceops/recording"
)

// TUI message types
type RecordingStartedMsg struct{}
type RecordingTickMsg struct{ Elapsed int }
type SubmittingMsg struct{}
type TranscribedMsg struct{ Text string }
type FailedMsg struct{ Message string }
type IdleMsg struct{}
type ClearedMsg struct{}
type MetricsMsg struct{ Summary metrics.Summary }
type HealthMsg struct{ Err error }
type CopiedMsg struct{ Err error }
type frameMsg time.Time
type healthTickMsg struct{}

const healthInterval = 15 * time.Second

// controller is the part of the orchestrator the TUI drives.
type controller interface {
	OnStartPressed(ctx context.Context) error
	OnStopPressed(ctx context.Context)
	Last() (orchestrator.Outcome, bool)
}

type tuiModel struct {
	ctx     context.Context
	ctrl    controller
	health  func(context.Context) error
	copyFn  func(string) error
	apiLine string
	devLine string
	hotkey  bool

	phase    orchestrator.Phase
	elapsed  int
	frame    int
	count    int
	text     string
	hasText  bool
	errText  string
	summary  metrics.Summary
	haveSum  bool
	healthy  bool
	checked  bool
	copyNote string

	width, height int
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle     = helpStyle.Bold(true)
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	busyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1).Width(22)
	cardValue    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	cardErrValue = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("160"))
)

func newTUIModel(ctx context.Context, ctrl controller, health func(context.Context) error, apiLine, devLine string) tuiModel {
	return tuiModel{
		ctx:     ctx,
		ctrl:    ctrl,
		health:  health,
		copyFn:  clipboard.Copy,
		apiLine: apiLine,
		devLine: devLine,
	}
}

func NewTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
}

func frameTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(frameTick(), m.checkHealth())
}

func (m tuiModel) checkHealth() tea.Cmd {
	if m.health == nil {
		return nil
	}
	ctx, health := m.ctx, m.health
	return func() tea.Msg {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return HealthMsg{Err: health(cctx)}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case frameMsg:
		m.frame++
		return m, frameTick()

	case healthTickMsg:
		return m, m.checkHealth()

	case HealthMsg:
		m.checked = true
		m.healthy = msg.Err == nil
		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg { return healthTickMsg{} })

	case RecordingStartedMsg:
		m.phase = orchestrator.Recording
		m.elapsed = 0

	case RecordingTickMsg:
		if m.phase == orchestrator.Recording {
			m.elapsed = msg.Elapsed
		}

	case SubmittingMsg:
		m.phase = orchestrator.Submitting

	case IdleMsg:
		m.phase = orchestrator.Idle
		m.elapsed = 0

	case ClearedMsg:
		m.text, m.hasText, m.errText, m.copyNote = "", false, "", ""

	case TranscribedMsg:
		m.count++
		m.text, m.hasText, m.errText = msg.Text, true, ""

	case FailedMsg:
		m.text, m.hasText, m.errText = "", false, msg.Message

	case MetricsMsg:
		m.summary, m.haveSum = msg.Summary, true

	case CopiedMsg:
		switch {
		case msg.Err == nil:
			m.copyNote = "[✓ copied]"
		case errors.Is(msg.Err, clipboard.ErrEmpty):
			m.copyNote = "[nothing to copy]"
		default:
			m.copyNote = "[copy failed]"
		}
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case " ", "r":
		ctx, ctrl := m.ctx, m.ctrl
		switch m.phase {
		case orchestrator.Idle:
			return m, func() tea.Msg {
				// Failures reach the model through the sink.
				ctrl.OnStartPressed(ctx)
				return nil
			}
		case orchestrator.Recording:
			return m, func() tea.Msg {
				ctrl.OnStopPressed(ctx)
				return nil
			}
		}

	case "c":
		out, ok := m.ctrl.Last()
		if !ok || !out.OK {
			return m, func() tea.Msg { return CopiedMsg{Err: clipboard.ErrEmpty} }
		}
		copyFn := m.copyFn
		return m, func() tea.Msg { return CopiedMsg{Err: copyFn(out.Text)} }
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("voiceops") + " " + dimStyle.Render(version) + "\n")
	b.WriteString(dimStyle.Render(m.apiLine) + "  " + m.healthBadge() + "\n")
	if m.devLine != "" {
		b.WriteString(dimStyle.Render(m.devLine) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(m.statusLine() + "\n\n")

	wrapWidth := max(m.width-2, 10)
	switch {
	case m.errText != "":
		for _, line := range wrapText(m.errText, wrapWidth) {
			b.WriteString(errStyle.Render(line) + "\n")
		}
	case m.hasText:
		b.WriteString(dimStyle.Render(fmt.Sprintf("Transcription (#%d)", m.count)) + "\n")
		text := m.text
		if text == "" {
			text = "(empty transcript)"
		}
		lines := wrapText(text, wrapWidth)
		for i, line := range lines {
			b.WriteString(textStyle.Render(line))
			if i == len(lines)-1 && m.copyNote != "" {
				b.WriteString(" " + okStyle.Render(m.copyNote))
			}
			b.WriteString("\n")
		}
	default:
		b.WriteString(dimStyle.Render("No transcription yet") + "\n")
	}
	b.WriteString("\n")

	b.WriteString(m.metricCards() + "\n\n")

	b.WriteString(keyStyle.Render("space") + helpStyle.Render(" record/stop  ") +
		keyStyle.Render("c") + helpStyle.Render(" copy  ") +
		keyStyle.Render("q") + helpStyle.Render(" quit"))
	if m.hotkey {
		b.WriteString("\n" + keyStyle.Render("ctrl+shift+space") + helpStyle.Render(" anywhere: tap to toggle, hold to talk"))
	}

	return lipgloss.NewStyle().MaxWidth(m.width).MaxHeight(m.height).Render(b.String())
}

func (m tuiModel) healthBadge() string {
	switch {
	case !m.checked:
		return dimStyle.Render("○ checking")
	case m.healthy:
		return okStyle.Render("● healthy")
	}
	return errStyle.Render("● unreachable")
}

func (m tuiModel) statusLine() string {
	clock := recording.FormatElapsed(m.elapsed)
	switch m.phase {
	case orchestrator.Recording:
		dot := "●"
		if m.frame%4 >= 2 {
			dot = " "
		}
		return recStyle.Render(dot + " REC " + clock)
	case orchestrator.Submitting:
		spin := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		return busyStyle.Render(spin[m.frame%len(spin)] + " Processing...")
	}
	return dimStyle.Render("○ READY " + clock)
}

func (m tuiModel) metricCards() string {
	s := m.summary
	avg := "—"
	success, failed, total := "—", "—", "—"
	if m.haveSum {
		success = fmt.Sprint(s.Requests.Success)
		failed = fmt.Sprint(s.Requests.Error)
		total = fmt.Sprint(s.Total())
		if s.AvgProcessing.Known {
			avg = s.AvgProcessing.String() + "s"
		}
	}

	card := func(title, value string, style lipgloss.Style) string {
		return cardStyle.Render(dimStyle.Render(title) + "\n" + style.Render(value))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		card("Success / Errors", success+" / "+cardErrValue.Render(failed), cardValue),
		card("Avg Processing", avg, cardValue),
		card("Total Requests", total, cardValue),
	)
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len([]rune(line))+1+len([]rune(w)) > width {
				lines = append(lines, line)
				line = w
				continue
			}
			line += " " + w
		}
		lines = append(lines, line)
	}
	return lines
}

// teaSink forwards orchestrator events to the Bubble Tea program.
type teaSink struct {
	send func(tea.Msg)
}

func (s teaSink) RecordingStarted()       { s.send(RecordingStartedMsg{}) }
func (s teaSink) RecordingTick(n int)     { s.send(RecordingTickMsg{Elapsed: n}) }
func (s teaSink) Submitting()             { s.send(SubmittingMsg{}) }
func (s teaSink) Transcribed(text string) { s.send(TranscribedMsg{Text: text}) }
func (s teaSink) Failed(message string)   { s.send(FailedMsg{Message: message}) }
func (s teaSink) Idle()                   { s.send(IdleMsg{}) }
func (s teaSink) Cleared()                { s.send(ClearedMsg{}) }
