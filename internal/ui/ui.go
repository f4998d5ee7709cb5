// Package ui owns the loading overlay and renders it for the terminal.
package ui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/mkock/gameboot"
	"go.uber.org/zap"
)

// Colors
var (
	PrimaryColor   = lipgloss.Color("#7D56F4")
	SecondaryColor = lipgloss.Color("#FF79C6")
	DimColor       = lipgloss.Color("#6272A4")
)

// Styles shared by everything that draws loading feedback.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)

	DetailStyle = lipgloss.NewStyle().
			Foreground(DimColor).
			Italic(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)

	ContainerStyle = lipgloss.NewStyle().
			Padding(0, 2)
)

// DefaultBarWidth is the width of the progress bar in cells.
const DefaultBarWidth = 40

// Manager owns the overlay.
type Manager struct {
	mu          sync.Mutex
	overlay     *Overlay
	bar         progress.Model
	initialized bool
	logger      *zap.Logger
}

// New returns a Manager with a hidden overlay.
func New(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		overlay: &Overlay{},
		logger:  logger.Named("ui"),
	}
}

// Initialize sets up the progress bar and returns the Manager.
func (m *Manager) Initialize() *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return m
	}
	m.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(DefaultBarWidth),
		progress.WithoutPercentage(),
	)
	m.initialized = true
	m.logger.Debug("ui initialized")
	return m
}

// Overlay returns the loading overlay. Other systems update it to report progress.
func (m *Manager) Overlay() *Overlay {
	return m.overlay
}

// Render draws the overlay. A hidden overlay renders as an empty string.
func (m *Manager) Render() string {
	st := m.overlay.State()
	if !st.Visible {
		return ""
	}

	m.mu.Lock()
	bar := m.bar
	initialized := m.initialized
	m.mu.Unlock()

	var b strings.Builder
	b.WriteString(TitleStyle.Render(st.Title))
	b.WriteString("\n")
	if initialized {
		b.WriteString(bar.ViewAs(st.Percent))
		b.WriteString("\n")
	}
	b.WriteString(DetailStyle.Render(fmt.Sprintf("%s %3.0f%%", st.Detail, st.Percent*100)))
	return ContainerStyle.Render(b.String())
}

// Observer returns a gameboot.Observer that shows boot progress on the overlay, and hides it once the sequence has
// completed or failed.
func (m *Manager) Observer(title string) gameboot.Observer {
	return gameboot.ObserverFunc{
		OnStageStart: func(int, int) {
			if !m.overlay.State().Visible {
				m.overlay.Show(title)
			}
		},
		OnUnit: func(p gameboot.Progress) {
			m.overlay.SetProgress(p.Percent(), p.Unit)
		},
		OnComplete: func() {
			m.overlay.Hide()
		},
		OnFail: func(error) {
			m.overlay.Hide()
		},
	}
}
