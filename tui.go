package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type tickMsg time.Time

// actions are what the keyboard can trigger. controller implements them.
type actions interface {
	Toggle()
	Reset()
	Copy()
	OpenSource(n int)
}

type tuiModel struct {
	act           actions
	hotkeyLabel   string
	stage         stage
	frame         int
	duration      float64
	level         float64
	peak          float64
	width, height int
	deviceLine    string
	status        string
	statusErr     bool
	queries       int
	result        *queryResult
}

const meterWidth = 32

var (
	meterColors = []string{"42", "42", "76", "112", "148", "184", "220", "214", "208", "202", "196"}
	meterStyles []lipgloss.Style

	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	quoteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Italic(true)
	answerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func init() {
	for _, c := range meterColors {
		meterStyles = append(meterStyles, lipgloss.NewStyle().Foreground(lipgloss.Color(c)))
	}
}

func newTUIModel(act actions, hotkeyLabel string) tuiModel {
	return tuiModel{act: act, hotkeyLabel: hotkeyLabel}
}

func tuiTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

// do runs fn off the update loop. The controller may block on network calls
// and sends its own messages back.
func do(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ":
			return m, do(m.act.Toggle)
		case "r":
			return m, do(m.act.Reset)
		case "c":
			return m, do(m.act.Copy)
		case "o":
			return m, do(func() { m.act.OpenSource(0) })
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			n := int(msg.String()[0] - '1')
			return m, do(func() { m.act.OpenSource(n) })
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case RecordingStartMsg:
		m.stage = stageRecording
		m.duration = 0
		m.level = 0
		m.peak = 0
		m.status = ""

	case RecordingStopMsg:
		if m.stage == stageRecording {
			m.stage = stageIdle
		}
		m.level = 0

	case RecordingTickMsg:
		m.duration = msg.Duration

	case AudioLevelMsg:
		if m.stage == stageRecording {
			m.level = m.level*0.6 + msg.Level*0.4
			m.peak = max(m.peak, msg.Level)
		}

	case StageMsg:
		m.stage = msg.Stage

	case ResultMsg:
		m.stage = stageIdle
		if msg.Result.Err != nil {
			m.status = msg.Result.Err.Error()
			m.statusErr = true
			break
		}
		m.queries++
		res := msg.Result
		m.result = &res
		m.status = ""

	case StatusMsg:
		m.status = msg.Text
		m.statusErr = msg.Err

	case DeviceLineMsg:
		m.deviceLine = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var left []string
	left = append(left, m.statusLine())
	left = append(left, renderMeter(m.level, m.stage == stageRecording))
	if m.stage == stageRecording && m.duration > 1.0 && m.peak < 0.02 {
		left = append(left, errStyle.Render("⚠ no voice detected"))
	}
	if m.deviceLine != "" {
		left = append(left, dimStyle.Render(m.deviceLine))
	}
	if m.status != "" {
		style := okStyle
		if m.statusErr {
			style = errStyle
		}
		for _, line := range wrapText(m.status, meterWidth+4) {
			left = append(left, style.Render(line))
		}
	}
	left = append(left, "")
	left = append(left, keyStyle.Render("space")+helpStyle.Render(" record  ")+keyStyle.Render("r")+helpStyle.Render(" reset"))
	if m.hotkeyLabel != "" {
		left = append(left, keyStyle.Render(m.hotkeyLabel)+helpStyle.Render(" anywhere"))
	}
	left = append(left, keyStyle.Render("c")+helpStyle.Render(" copy  ")+keyStyle.Render("o")+helpStyle.Render(" open  ")+keyStyle.Render("q")+helpStyle.Render(" quit"))
	left = append(left, helpStyle.Render("voxdoc "+version))

	const leftWidth = meterWidth + 6
	leftPanel := lipgloss.NewStyle().
		Width(leftWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(strings.Join(left, "\n"))

	rightWidth := max(m.width-leftWidth-1, 20)
	rightPanel := lipgloss.NewStyle().
		Width(rightWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(m.answerPanel(rightWidth - 2))

	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

func (m tuiModel) statusLine() string {
	switch m.stage {
	case stageRecording:
		return recStyle.Render(fmt.Sprintf("● REC %.1fs", m.duration))
	case stageTranscribing, stageAnswering:
		return busyStyle.Render(spinner[m.frame%len(spinner)] + " " + m.stage.String() + "...")
	}
	return dimStyle.Render("○ READY")
}

func (m tuiModel) answerPanel(width int) string {
	width = max(width, 10)
	if m.result == nil {
		return dimStyle.Render("Ask a question about your documents.")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Answer (#%d)", m.queries)))
	b.WriteString("\n\n")
	for _, line := range wrapText("“"+m.result.Question+"”", width) {
		b.WriteString(quoteStyle.Render(line) + "\n")
	}
	b.WriteString("\n")
	for _, para := range strings.Split(m.result.Answer.Text, "\n") {
		for _, line := range wrapText(para, width) {
			b.WriteString(answerStyle.Render(line) + "\n")
		}
	}

	if len(m.result.Answer.Sources) > 0 {
		b.WriteString("\n" + titleStyle.Render("Sources") + "\n")
		for i, s := range m.result.Answer.Sources {
			if i >= 9 {
				break
			}
			line := fmt.Sprintf("%d. %s (%.0f%%)", i+1, s.Filename, s.Score*100)
			b.WriteString(sourceStyle.Render(line) + "\n")
		}
	}
	if t := m.result.Answer.Elapsed(); t > 0 {
		b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("answered in %.1fs", t.Seconds())))
	}
	return b.String()
}

// renderMeter draws the input level as a bar. RMS levels are small, so the
// scale tops out at 0.25.
func renderMeter(level float64, recording bool) string {
	filled := 0
	if recording {
		filled = min(int(level/0.25*meterWidth+0.5), meterWidth)
	}
	var b strings.Builder
	for i := range meterWidth {
		if i >= filled {
			b.WriteString(dimStyle.Render("·"))
			continue
		}
		idx := i * (len(meterStyles) - 1) / (meterWidth - 1)
		b.WriteString(meterStyles[idx].Render("█"))
	}
	return b.String()
}

func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for _, word := range strings.Fields(text) {
		n := len(lines)
		if n > 0 && len([]rune(lines[n-1]))+1+len([]rune(word)) <= width {
			lines[n-1] += " " + word
			continue
		}
		lines = append(lines, word)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
