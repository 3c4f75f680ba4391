package ui

import (
	"io"
	"strings"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	readyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type (
	progressMsg    int
	labelMsg       string
	hideLoadingMsg struct{}
	showSurfaceMsg struct{}
	stallNoticeMsg struct{}
)

// model is the loading screen.
type model struct {
	spinner     spinner.Model
	bar         progressbar.Model
	title       string
	label       string
	percent     int
	loading     bool
	ready       bool
	stalled     bool
	interrupted bool
}

func newModel(title string) *model {
	return &model{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithWidth(40)),
		title:   title,
		loading: true,
	}
}

func (m *model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.interrupted = !m.ready
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(60, msg.Width-8))

	case progressMsg:
		m.percent = max(0, min(100, int(msg)))

	case labelMsg:
		m.label = string(msg)

	case hideLoadingMsg:
		m.loading = false

	case stallNoticeMsg:
		m.stalled = true

	case showSurfaceMsg:
		m.ready = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Loader"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("\n\n")

	if m.loading {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(m.bar.ViewAs(float64(m.percent) / 100))
		b.WriteString("\n")
		if m.label != "" {
			b.WriteString(labelStyle.Render(m.label))
			b.WriteString("\n")
		}
	}

	if m.ready {
		b.WriteString(readyStyle.Render("Ready"))
		b.WriteString("\n")
	} else if m.stalled {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(StallNotice))
		b.WriteString("\n")
	}

	if !m.ready {
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("q quit"))
	}

	return b.String()
}

// Terminal is a Display that draws the loading screen in a terminal.
// The program exits once the surface is shown, handing the terminal to
// the hosted module.
type Terminal struct {
	program *tea.Program
}

// NewTerminal creates a terminal display titled with the artifact name.
func NewTerminal(title string, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		program: tea.NewProgram(newModel(title), tea.WithInput(in), tea.WithOutput(out)),
	}
}

// Run draws until the surface is shown or the user quits. It reports
// whether the user quit before the module became ready.
func (t *Terminal) Run() (interrupted bool, err error) {
	final, err := t.program.Run()
	if err != nil {
		return false, err
	}
	if m, ok := final.(*model); ok {
		return m.interrupted, nil
	}
	return false, nil
}

// Quit stops the program without waiting for the surface.
func (t *Terminal) Quit() {
	t.program.Quit()
}

func (t *Terminal) SetProgress(percent int) { t.program.Send(progressMsg(percent)) }

func (t *Terminal) SetLabel(text string) { t.program.Send(labelMsg(text)) }

func (t *Terminal) HideLoading() { t.program.Send(hideLoadingMsg{}) }

func (t *Terminal) ShowSurface() { t.program.Send(showSurfaceMsg{}) }

func (t *Terminal) ShowStallNotice() { t.program.Send(stallNoticeMsg{}) }
