package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mkock/gameboot"
	"github.com/mkock/gameboot/internal/ui"
)

// refreshInterval is how often the loading screen redraws the overlay.
const refreshInterval = 50 * time.Millisecond

const logo = `
   █▀▀ ▄▀▄ █▄ ▄█ █▀▀ █▄▄ █▀█ █▀█ ▀█▀
   █▄█ █▀█ █ ▀ █ ██▄ █▄█ █▄█ █▄█  █
`

var (
	logoStyle      = ui.TitleStyle.MarginBottom(1)
	countStyle     = ui.DetailStyle.Italic(false)
	containerStyle = ui.ContainerStyle.Padding(1, 2)
)

// loadingModel is the bubbletea model for the loading screen. The progress bar is the UI manager's overlay, which the
// boot sequence and the scene loader both report to.
type loadingModel struct {
	spinner spinner.Model
	ui      *ui.Manager

	stage int
	unit  string
	done  int
	total int

	ready    bool
	booted   bool
	finished bool

	updates chan loadingUpdate
}

type loadingUpdate struct {
	stage    int
	unit     string
	done     int
	total    int
	booted   bool
	finished bool
}

type updateMsg loadingUpdate

type refreshMsg struct{}

func newLoadingModel(mgr *ui.Manager) *loadingModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = ui.SpinnerStyle

	return &loadingModel{
		spinner: s,
		ui:      mgr,
		updates: make(chan loadingUpdate, 16),
	}
}

func (m *loadingModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForUpdate(),
		m.refresh(),
	)
}

func (m *loadingModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return updateMsg(<-m.updates)
	}
}

func (m *loadingModel) refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m *loadingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		return m, nil

	case refreshMsg:
		if m.finished {
			return m, nil
		}
		return m, m.refresh()

	case updateMsg:
		if msg.finished {
			m.finished = true
			return m, tea.Quit
		}
		if msg.booted {
			m.booted = true
			return m, m.waitForUpdate()
		}
		m.stage = msg.stage
		if msg.unit != "" {
			m.unit = msg.unit
		}
		m.done = msg.done
		m.total = msg.total
		return m, m.waitForUpdate()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *loadingModel) View() string {
	if !m.ready || m.finished {
		return ""
	}

	var b strings.Builder
	b.WriteString(logoStyle.Render(logo))
	b.WriteString("\n")
	b.WriteString(m.spinner.View())
	b.WriteString(" ")

	switch {
	case m.booted:
		b.WriteString(countStyle.Render("systems ready"))
	default:
		label := m.unit
		if label == "" {
			label = "Starting"
		}
		b.WriteString(countStyle.Render(fmt.Sprintf("stage %d · %s %d / %d", m.stage, label, m.done, m.total)))
	}

	if m.ui != nil {
		if overlay := m.ui.Render(); overlay != "" {
			b.WriteString("\n")
			b.WriteString(overlay)
		}
	}
	return containerStyle.Render(b.String())
}

// sendUpdate drops the update if the channel is full.
func (m *loadingModel) sendUpdate(u loadingUpdate) {
	select {
	case m.updates <- u:
	default:
	}
}

// LoadingDisplay runs the loading screen until Stop is called. It is a gameboot.Observer: it follows the boot stages,
// and keeps drawing the overlay after the sequence completes so the first scene load stays visible.
type LoadingDisplay struct {
	program *tea.Program
	model   *loadingModel
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
}

// Verify that LoadingDisplay satisfies the Observer interface.
var _ gameboot.Observer = (*LoadingDisplay)(nil)

// NewLoadingDisplay starts the loading screen on w, drawing the overlay of mgr.
func NewLoadingDisplay(w io.Writer, mgr *ui.Manager) *LoadingDisplay {
	model := newLoadingModel(mgr)
	program := tea.NewProgram(
		model,
		tea.WithOutput(w),
		tea.WithoutSignalHandler(),
	)

	d := &LoadingDisplay{
		program: program,
		model:   model,
		done:    make(chan struct{}),
	}
	go func() {
		_, _ = program.Run()
		close(d.done)
	}()
	return d
}

func (d *LoadingDisplay) send(u loadingUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.stopped {
		d.model.sendUpdate(u)
	}
}

// StageStarted implements gameboot.Observer.
func (d *LoadingDisplay) StageStarted(stage, _ int) {
	d.send(loadingUpdate{stage: stage})
}

// UnitCompleted implements gameboot.Observer.
func (d *LoadingDisplay) UnitCompleted(p gameboot.Progress) {
	d.send(loadingUpdate{stage: p.Stage, unit: p.Unit, done: p.Done, total: p.Total})
}

// StageCompleted implements gameboot.Observer.
func (d *LoadingDisplay) StageCompleted(int) {}

// SequenceCompleted implements gameboot.Observer.
func (d *LoadingDisplay) SequenceCompleted() {
	d.send(loadingUpdate{booted: true})
}

// SequenceFailed implements gameboot.Observer.
func (d *LoadingDisplay) SequenceFailed(error) {
	d.Stop()
}

// Stop closes the loading screen.
func (d *LoadingDisplay) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.model.sendUpdate(loadingUpdate{finished: true})
	select {
	case <-d.done:
	case <-time.After(500 * time.Millisecond):
		d.program.Kill()
	}
}

// textObserver prints progress as plain lines, for terminals without the loading screen.
type textObserver struct {
	w io.Writer
}

// StageStarted implements gameboot.Observer.
func (o textObserver) StageStarted(stage, units int) {
	fmt.Fprintf(o.w, "stage %d: %d units\n", stage, units)
}

// UnitCompleted implements gameboot.Observer.
func (o textObserver) UnitCompleted(p gameboot.Progress) {
	fmt.Fprintf(o.w, "  %-20s %3.0f%%\n", p.Unit, p.Percent()*100)
}

// StageCompleted implements gameboot.Observer.
func (o textObserver) StageCompleted(int) {}

// SequenceCompleted implements gameboot.Observer.
func (o textObserver) SequenceCompleted() {
	fmt.Fprintln(o.w, "boot complete")
}

// SequenceFailed implements gameboot.Observer.
func (o textObserver) SequenceFailed(err error) {
	fmt.Fprintf(o.w, "boot failed: %v\n", err)
}
