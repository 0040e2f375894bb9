// Package app is the terminal dashboard: an input form for a simulation
// request, live upload and run status, and a chart of the returned series.
package app

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tejusbharadwaj/simdash/internal/controller"
	"github.com/tejusbharadwaj/simdash/internal/models"
)

var (
	panelBorder     = lipgloss.Color("#2D6A80")
	accentPrimary   = lipgloss.Color("#50E3C2")
	accentSecondary = lipgloss.Color("#F6AE2D")
	mutedText       = lipgloss.Color("#8CA1AE")
	warningText     = lipgloss.Color("#FF6B6B")
)

var (
	headerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(accentPrimary)

	statusStyle = lipgloss.NewStyle().
			Foreground(accentSecondary).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(warningText).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedText).
			Width(16)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(accentPrimary).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(panelBorder).
			Padding(0, 1)

	chartStyle = lipgloss.NewStyle().
			Foreground(accentPrimary)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedText)
)

const (
	sparkGlyphs   = "▁▂▃▄▅▆▇█"
	minChartWidth = 10
	panelPadding  = 6
)

// RunController is the part of the run controller the dashboard drives.
type RunController interface {
	State() controller.RunState
	Changed() <-chan struct{}
	Submit(req models.SimulationRequest) error
	Reset() error
	Cancel() error
}

type stateChangedMsg struct{}

type submitResultMsg struct {
	err error
}

type field int

const (
	fieldBuildingModel field = iota
	fieldWeather
	fieldLength
	fieldWidth
	fieldHeight
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Building model",
	"Weather file",
	"Length (m)",
	"Width (m)",
	"Height (m)",
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	ctrl RunController

	inputs  []textinput.Model
	focus   field
	spinner spinner.Model
	bar     progress.Model

	state      controller.RunState
	formError  string
	submitting bool
	width      int
}

// NewModel builds the dashboard around ctrl.
func NewModel(ctrl RunController) Model {
	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		in := textinput.New()
		in.Prompt = "> "
		in.CharLimit = 1024
		in.Width = 48
		inputs[i] = in
	}
	inputs[fieldBuildingModel].Placeholder = "./model.idf (optional)"
	inputs[fieldWeather].Placeholder = "./weather.epw"
	for _, f := range []field{fieldLength, fieldWidth, fieldHeight} {
		inputs[f].Placeholder = "0"
		inputs[f].CharLimit = 16
		inputs[f].Width = 12
	}
	inputs[fieldBuildingModel].Focus()

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = lipgloss.NewStyle().Foreground(accentSecondary)

	return Model{
		ctrl:    ctrl,
		inputs:  inputs,
		spinner: spin,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		state:   ctrl.State(),
	}
}

// Init starts listening for run state changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChangeCmd(m.ctrl.Changed()))
}

func waitForChangeCmd(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changes
		return stateChangedMsg{}
	}
}

// submitCmd reads the input files and hands the request to the controller.
// File reads happen off the update loop.
func submitCmd(ctrl RunController, paths [2]string, dims models.Dimensions) tea.Cmd {
	return func() tea.Msg {
		req := models.SimulationRequest{Dimensions: dims}
		if paths[0] != "" {
			model, err := models.LoadFile(paths[0])
			if err != nil {
				return submitResultMsg{err: err}
			}
			req.BuildingModel = model
		}
		if paths[1] != "" {
			weather, err := models.LoadFile(paths[1])
			if err != nil {
				return submitResultMsg{err: err}
			}
			req.Weather = weather
		}
		return submitResultMsg{err: ctrl.Submit(req)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = clampInt(msg.Width-panelPadding-8, minChartWidth, 80)
		return m, nil

	case stateChangedMsg:
		wasActive := isActive(m.state)
		m.state = m.ctrl.State()
		cmds := []tea.Cmd{waitForChangeCmd(m.ctrl.Changed())}
		if !wasActive && isActive(m.state) {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case submitResultMsg:
		m.submitting = false
		if msg.err != nil {
			m.formError = msg.err.Error()
		} else {
			m.formError = ""
		}
		return m, nil

	case spinner.TickMsg:
		if !isActive(m.state) {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			m.setFocus((m.focus + 1) % fieldCount)
			return m, nil
		case "shift+tab", "up":
			m.setFocus((m.focus + fieldCount - 1) % fieldCount)
			return m, nil
		case "enter":
			return m.submit()
		case "ctrl+r":
			if err := m.ctrl.Reset(); err != nil {
				m.formError = err.Error()
				return m, nil
			}
			m.formError = ""
			m.clearForm()
			return m, nil
		case "ctrl+x":
			if err := m.ctrl.Cancel(); err != nil {
				m.formError = err.Error()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	switch phase := m.state.Phase(); {
	case phase.Terminal():
		m.formError = "press ctrl+r to start a new run"
		return m, nil
	case phase != controller.PhaseIdle:
		m.formError = "a run is already in progress"
		return m, nil
	}

	dims, err := m.dimensions()
	if err != nil {
		m.formError = err.Error()
		return m, nil
	}
	m.formError = ""

	paths := [2]string{
		strings.TrimSpace(m.inputs[fieldBuildingModel].Value()),
		strings.TrimSpace(m.inputs[fieldWeather].Value()),
	}
	m.submitting = true
	return m, submitCmd(m.ctrl, paths, dims)
}

// clearForm empties every input and returns focus to the first one.
func (m *Model) clearForm() {
	for i := range m.inputs {
		m.inputs[i].Reset()
	}
	m.setFocus(fieldBuildingModel)
}

// dimensions parses the three dimension fields. Blank fields read as zero,
// meaning not provided.
func (m Model) dimensions() (models.Dimensions, error) {
	var values [3]float64
	for i, f := range []field{fieldLength, fieldWidth, fieldHeight} {
		raw := strings.TrimSpace(m.inputs[f].Value())
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return models.Dimensions{}, &controller.ValidationError{Reason: controller.ReasonPositiveDimensions}
		}
		values[i] = v
	}
	return models.Dimensions{Length: values[0], Width: values[1], Height: values[2]}, nil
}

func (m *Model) setFocus(f field) {
	m.inputs[m.focus].Blur()
	m.focus = f
	m.inputs[m.focus].Focus()
}

func (m Model) View() string {
	parts := []string{
		headerStyle.Render("Building Energy Simulation"),
		renderPanel("Inputs", m.renderForm()),
	}
	if m.formError != "" {
		parts = append(parts, errorStyle.Render(m.formError))
	}
	parts = append(parts, m.renderStatus())

	if done, ok := m.state.(controller.Completed); ok {
		parts = append(parts, renderPanel("Results", renderSeries(done.Series, m.chartWidth())))
	}

	parts = append(parts, helpStyle.Render("tab/shift+tab move | enter run | ctrl+x stop polling | ctrl+r reset | esc quit"))
	return strings.Join(parts, "\n")
}

func (m Model) renderForm() string {
	rows := make([]string, 0, fieldCount)
	for i := range m.inputs {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			labelStyle.Render(fieldLabels[i]),
			m.inputs[i].View(),
		))
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderStatus() string {
	switch s := m.state.(type) {
	case controller.Uploading:
		return statusStyle.Render(m.spinner.View()+" Uploading inputs") + "\n" +
			m.bar.ViewAs(float64(s.Progress)/100)
	case controller.Running:
		return statusStyle.Render(fmt.Sprintf("%s Simulation running (run %s)", m.spinner.View(), s.RunID))
	case controller.Completed:
		return statusStyle.Render(fmt.Sprintf("* Run %s completed with %d samples", s.RunID, len(s.Series)))
	case controller.Failed:
		return errorStyle.Render("Error: " + s.Err)
	default:
		return statusStyle.Render("* Ready")
	}
}

func (m Model) chartWidth() int {
	if m.width <= 0 {
		return 60
	}
	return maxInt(minChartWidth, m.width-panelPadding)
}

// renderSeries draws the series as a one-line sparkline with its range and
// first and last timestamps.
func renderSeries(series []models.Sample, width int) string {
	if len(series) == 0 {
		return "No samples."
	}

	values := make([]float64, len(series))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, s := range series {
		values[i] = s.Value
		lo = math.Min(lo, s.Value)
		hi = math.Max(hi, s.Value)
	}

	lines := []string{
		chartStyle.Render(sparkline(values, width)),
		fmt.Sprintf("%s .. %s", series[0].Time, series[len(series)-1].Time),
		fmt.Sprintf("min %.2f  max %.2f  last %.2f", lo, hi, series[len(series)-1].Value),
	}
	return strings.Join(lines, "\n")
}

// sparkline renders values in at most width cells. Longer inputs are
// averaged into buckets.
func sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	values = downsample(values, width)

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	glyphs := []rune(sparkGlyphs)
	var b strings.Builder
	for _, v := range values {
		idx := 0
		if hi > lo {
			idx = int(math.Round((v - lo) / (hi - lo) * float64(len(glyphs)-1)))
		}
		b.WriteRune(glyphs[clampInt(idx, 0, len(glyphs)-1)])
	}
	return b.String()
}

func downsample(values []float64, width int) []float64 {
	if len(values) <= width {
		return values
	}
	out := make([]float64, width)
	for i := range out {
		start := i * len(values) / width
		end := (i + 1) * len(values) / width
		var sum float64
		for _, v := range values[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}

func renderPanel(title, body string) string {
	return panelStyle.Render(panelTitleStyle.Render(title) + "\n" + body)
}

func isActive(s controller.RunState) bool {
	phase := s.Phase()
	return phase == controller.PhaseUploading || phase == controller.PhaseRunning
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
