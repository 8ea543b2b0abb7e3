// Package browse is an interactive terminal browser over stored postings.
package browse

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobsync/internal/deadline"
	"github.com/amishk599/jobsync/internal/model"
)

// Store is the write surface the browser needs for the f/h/a toggles.
type Store interface {
	UpdateMetadata(ctx context.Context, id int64, u model.MetadataUpdate) (model.Posting, error)
}

// Lines per posting in the list view (title + subtitle + blank separator).
const itemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

const (
	paneAll = iota
	paneFavorites
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	descDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	descHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	descBodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// postingUpdatedMsg is sent when an async metadata update completes.
type postingUpdatedMsg struct {
	posting model.Posting
	err     error
}

type browseModel struct {
	store         Store
	postings      []model.Posting // visible (not hidden), newest first
	leftViewport  viewport.Model
	rightViewport viewport.Model
	activePane    int
	leftCursor    int
	rightCursor   int
	width         int
	height        int
	ready         bool
	statusErr     string

	view            viewState
	detail          model.Posting
	detailViewport  viewport.Model
	showDescription bool

	wantQuit bool
}

func newBrowseModel(store Store, postings []model.Posting) browseModel {
	visible := make([]model.Posting, 0, len(postings))
	for _, p := range postings {
		if !p.IsHidden {
			visible = append(visible, p)
		}
	}
	return browseModel{store: store, postings: visible}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case postingUpdatedMsg:
		if msg.err != nil {
			m.statusErr = fmt.Sprintf("update failed: %v", msg.err)
			return m, nil
		}
		m.statusErr = ""
		m.applyUpdate(msg.posting)
		if m.view == viewDetail {
			if msg.posting.IsHidden {
				m.view = viewList
			} else {
				m.detail = msg.posting
				m.detailViewport.SetContent(m.renderDetail())
			}
		}
		m.recalcContent()
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m browseModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	case "f", "h", "a", "o":
		p, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.action(msg.String(), p)
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == paneAll {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m browseModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "r":
		if m.detail.Description != "" {
			m.showDescription = !m.showDescription
			m.detailViewport.SetContent(m.renderDetail())
			m.detailViewport.SetYOffset(0)
		}
		return m, nil
	case "f", "h", "a", "o":
		return m, m.action(msg.String(), m.detail)
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

// action maps a toggle key to a command. "o" opens the posting in a browser.
func (m browseModel) action(key string, p model.Posting) tea.Cmd {
	var u model.MetadataUpdate
	switch key {
	case "o":
		openURL(p.URL)
		return nil
	case "f":
		v := !p.IsFavorite
		u.IsFavorite = &v
	case "h":
		v := true
		u.IsHidden = &v
	case "a":
		v := !p.Applied
		u.Applied = &v
	}
	return m.updateCmd(p.ID, u)
}

func (m browseModel) updateCmd(id int64, u model.MetadataUpdate) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p, err := store.UpdateMetadata(ctx, id, u)
		return postingUpdatedMsg{posting: p, err: err}
	}
}

// applyUpdate replaces the posting, or drops it once hidden. The slice is
// rebuilt so earlier model copies keep their own view.
func (m *browseModel) applyUpdate(p model.Posting) {
	next := make([]model.Posting, 0, len(m.postings))
	for _, cur := range m.postings {
		switch {
		case cur.ID != p.ID:
			next = append(next, cur)
		case !p.IsHidden:
			next = append(next, p)
		}
	}
	m.postings = next
	m.leftCursor = clamp(m.leftCursor, 0, max(len(m.postings)-1, 0))
	m.rightCursor = clamp(m.rightCursor, 0, max(len(m.favorites())-1, 0))
}

func (m browseModel) favorites() []model.Posting {
	var out []model.Posting
	for _, p := range m.postings {
		if p.IsFavorite {
			out = append(out, p)
		}
	}
	return out
}

func (m browseModel) activePostings() []model.Posting {
	if m.activePane == paneAll {
		return m.postings
	}
	return m.favorites()
}

func (m browseModel) activeCursor() int {
	if m.activePane == paneAll {
		return m.leftCursor
	}
	return m.rightCursor
}

func (m browseModel) selected() (model.Posting, bool) {
	postings := m.activePostings()
	cursor := m.activeCursor()
	if cursor < 0 || cursor >= len(postings) {
		return model.Posting{}, false
	}
	return postings[cursor], true
}

func (m *browseModel) moveCursor(delta int) {
	if m.activePane == paneAll {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.postings)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.favorites())-1, 0))
	}
}

func (m *browseModel) ensureCursorVisible() {
	vp := &m.leftViewport
	cursor := m.leftCursor
	if m.activePane == paneFavorites {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	cursorTop := cursor * itemHeight
	cursorBottom := cursorTop + itemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m browseModel) openDetailView() (tea.Model, tea.Cmd) {
	p, ok := m.selected()
	if !ok {
		return m, nil
	}
	m.view = viewDetail
	m.detail = p
	m.showDescription = false
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())
	return m, nil
}

func (m *browseModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *browseModel) recalcContent() {
	m.leftViewport.SetContent(renderPostings(m.postings, m.leftCursor, m.activePane == paneAll))
	m.rightViewport.SetContent(renderPostings(m.favorites(), m.rightCursor, m.activePane == paneFavorites))
}

func (m browseModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m browseModel) viewList() string {
	paneWidth := m.leftViewport.Width
	favorites := m.favorites()

	leftHeader := fmt.Sprintf(" Postings (%d)", len(m.postings))
	rightHeader := fmt.Sprintf(" Favorites (%d)", len(favorites))

	leftHeaderRendered := inactiveHeaderStyle.Render(leftHeader)
	rightHeaderRendered := inactiveHeaderStyle.Render(rightHeader)
	leftBorder := inactiveBorderStyle.Width(paneWidth)
	rightBorder := inactiveBorderStyle.Width(paneWidth)
	if m.activePane == paneAll {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
	} else {
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)
	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		leftBorder.Render(m.leftViewport.View()), " ", rightBorder.Render(m.rightViewport.View()))

	statusText := " ←/→/Tab switch  ↑/↓ cursor  Enter detail  f favorite  a applied  h hide  o open  q quit"
	if m.statusErr != "" {
		statusText = " " + m.statusErr
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m browseModel) viewDetail() string {
	title := detailTitleStyle.Render("Posting Details")
	content := activeBorderStyle.Width(m.width - 2).Render(m.detailViewport.View())

	statusText := " o open  f favorite  a applied  h hide  esc/backspace back  ↑/↓ scroll  q quit"
	if m.detail.Description != "" {
		statusText = " o open  r desc  f favorite  a applied  h hide  esc back  ↑/↓ scroll  q quit"
	}
	if m.statusErr != "" {
		statusText = " " + m.statusErr
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func (m browseModel) renderDetail() string {
	p := m.detail
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Title", p.Title)
	addField("Company", p.Company)
	addField("Location", p.Location)
	addField("Source", string(p.Source))
	addField("Status", string(p.Status))
	addField("Keyword", p.MatchedKeyword)
	addField("Employment", p.EmploymentType)

	b.WriteByte('\n')
	addField("Deadline", p.Deadline)
	addField("Published", p.PublishedAt)
	addField("First Seen", fmtTime(&p.FirstSeenAt))
	if p.LastCheckedAt != nil {
		addField("Last Seen", fmtTime(p.LastCheckedAt))
	}
	if p.ExpireAt != nil {
		addField("Expires", fmtTime(p.ExpireAt))
	}

	b.WriteByte('\n')
	addField("Favorite", yesNo(p.IsFavorite))
	applied := yesNo(p.Applied)
	if p.AppliedAt != nil {
		applied += " (" + fmtTime(p.AppliedAt) + ")"
	}
	addField("Applied", applied)
	addField("Notes", p.Notes)

	b.WriteByte('\n')
	addField("URL", p.URL)

	wrapWidth := max(m.width-8, 20)
	divider := func(label string) string {
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		return descDividerStyle.Render(label + fill)
	}
	if p.Summary != "" {
		b.WriteByte('\n')
		b.WriteString(divider("── Summary ") + "\n\n")
		b.WriteString(detailValueStyle.Render(wordWrap(p.Summary, wrapWidth)) + "\n")
	}

	if m.statusErr != "" {
		b.WriteByte('\n')
		b.WriteString(errorStyle.Render("⚠ "+m.statusErr) + "\n")
	}

	if p.Description != "" {
		b.WriteByte('\n')
		if m.showDescription {
			b.WriteString(divider("── Description ") + "\n\n")
			b.WriteString(descBodyStyle.Render(wordWrap(p.Description, wrapWidth)) + "\n")
		} else {
			b.WriteString(descHintStyle.Render("  press r to read the description") + "\n")
		}
	}

	return b.String()
}

func renderPostings(postings []model.Posting, cursor int, isActive bool) string {
	if len(postings) == 0 {
		return "  (no postings)"
	}

	var b strings.Builder
	for i, p := range postings {
		titleSt := titleStyle
		subtitleSt := subtitleStyle
		prefix := "  "
		if isActive && i == cursor {
			titleSt = selectedTitleStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		marks := ""
		if p.IsFavorite {
			marks += "★ "
		}
		if p.Applied {
			marks += "✓ "
		}
		b.WriteString(prefix)
		b.WriteString(titleSt.Render(marks + p.Title))
		b.WriteByte('\n')

		due := p.Deadline
		if due == "" {
			due = "no deadline"
		}
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %s · %s", p.Company, p.Source, due)))
		b.WriteByte('\n')

		if i < len(postings)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func fmtTime(t *time.Time) string {
	return t.In(deadline.Oslo).Format("2006-01-02 15:04")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the split-pane browser over postings, newest first as given.
// Returns wantQuit=true if the user pressed q/ctrl+c, false if they pressed
// esc to return to the picker.
func Run(store Store, postings []model.Posting) (bool, error) {
	p := tea.NewProgram(newBrowseModel(store, postings), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	final := result.(browseModel)
	return final.wantQuit, nil
}
