package browse

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobsync/internal/model"
)

// LoadFunc loads the postings to browse.
type LoadFunc func(ctx context.Context) ([]model.Posting, error)

type loadDoneMsg struct {
	postings []model.Posting
	err      error
}

type loaderModel struct {
	label   string
	loadFn  LoadFunc
	spinner spinner.Model
	result  []model.Posting
	err     error
	done    bool
}

func newLoaderModel(label string, loadFn LoadFunc) loaderModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	return loaderModel{label: label, loadFn: loadFn, spinner: s}
}

func (m loaderModel) Init() tea.Cmd {
	return tea.Batch(m.doLoad(), m.spinner.Tick)
}

func (m loaderModel) doLoad() tea.Cmd {
	loadFn := m.loadFn
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		postings, err := loadFn(ctx)
		return loadDoneMsg{postings: postings, err: err}
	}
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadDoneMsg:
		m.result = msg.postings
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.err = fmt.Errorf("cancelled")
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m loaderModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s Loading %s postings...\n", m.spinner.View(), m.label)
}

// RunLoader shows a spinner while loading postings. It renders inline (no alt screen).
func RunLoader(label string, loadFn LoadFunc) ([]model.Posting, error) {
	p := tea.NewProgram(newLoaderModel(label, loadFn))
	result, err := p.Run()
	if err != nil {
		return nil, err
	}
	final := result.(loaderModel)
	return final.result, final.err
}
