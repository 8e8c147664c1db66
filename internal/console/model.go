package console

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MCT-Salman/invocca/pkg/dialog"
	"github.com/MCT-Salman/invocca/pkg/form"
	"github.com/MCT-Salman/invocca/pkg/listview"
	"github.com/MCT-Salman/invocca/pkg/notify"
	"github.com/MCT-Salman/invocca/pkg/query"
	"github.com/MCT-Salman/invocca/pkg/screen"
	"github.com/MCT-Salman/invocca/pkg/types"
)

const toastTTL = 4 * time.Second

type (
	loadedMsg struct {
		page int
		err  error
	}
	submittedMsg struct {
		page int
		err  error
	}
	changeMsg     types.Change
	feedClosedMsg struct{}
	dashboardMsg  struct {
		data types.Dashboard
		err  error
	}
)

type toast struct {
	notify.Notification
	until time.Time
}

// Model is the console's bubbletea model.
type Model struct {
	ctx       context.Context
	pages     []page
	active    int
	cache     *query.Cache
	queue     *notify.Queue
	dashboard *query.Binding[types.Dashboard]
	changes   <-chan types.Change
	who       string
	boundary  *screen.Boundary

	showDashboard bool
	dashData      *types.Dashboard
	dashErr       error

	width   int
	focus   int
	busy    bool
	toasts  []toast
	spinner spinner.Model
	input   textinput.Model
	styles  styles
	now     func() time.Time
}

type styles struct {
	list     listview.Styles
	tab      lipgloss.Style
	tabOn    lipgloss.Style
	title    lipgloss.Style
	label    lipgloss.Style
	fieldErr lipgloss.Style
	help     lipgloss.Style
	dialog   lipgloss.Style
	toast    map[notify.Level]lipgloss.Style
}

func defaultStyles() styles {
	base := listview.DefaultStyles()
	toastBox := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	return styles{
		list:     base,
		tab:      lipgloss.NewStyle().Padding(0, 2).Foreground(lipgloss.Color("#9ca3af")),
		tabOn:    lipgloss.NewStyle().Padding(0, 2).Bold(true).Underline(true).Foreground(lipgloss.Color("#8BC34A")),
		title:    lipgloss.NewStyle().Bold(true).MarginBottom(1),
		label:    lipgloss.NewStyle().Width(28),
		fieldErr: base.Error,
		help:     base.Muted,
		dialog:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		toast: map[notify.Level]lipgloss.Style{
			notify.LevelSuccess: toastBox.Foreground(lipgloss.Color("#8BC34A")),
			notify.LevelInfo:    toastBox.Foreground(lipgloss.Color("#60a5fa")),
			notify.LevelWarning: toastBox.Foreground(lipgloss.Color("#f59e0b")),
			notify.LevelError:   toastBox.Foreground(lipgloss.Color("#e53935")),
		},
	}
}

func newModel(ctx context.Context, pages []page, cache *query.Cache, queue *notify.Queue,
	dashboard *query.Binding[types.Dashboard], changes <-chan types.Change, who string) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	in := textinput.New()
	in.Prompt = "> "
	in.CharLimit = 500
	return Model{
		ctx:       ctx,
		pages:     pages,
		cache:     cache,
		queue:     queue,
		dashboard: dashboard,
		changes:   changes,
		who:       who,
		boundary:  &screen.Boundary{},
		spinner:   sp,
		input:     in,
		styles:    defaultStyles(),
		width:     100,
		now:       time.Now,
	}
}

// Init mounts the first page and starts the change feed listener.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if len(m.pages) > 0 {
		m.pages[m.active].Mount(m.ctx)
		cmds = append(cmds, m.load(m.active, false))
	}
	if m.changes != nil {
		cmds = append(cmds, waitForChange(m.changes))
	}
	return tea.Batch(cmds...)
}

func (m Model) current() page {
	if len(m.pages) == 0 {
		return nil
	}
	return m.pages[m.active]
}

func (m Model) load(idx int, reload bool) tea.Cmd {
	p := m.pages[idx]
	return func() tea.Msg {
		var err error
		if reload {
			err = p.Reload()
		} else {
			err = p.Load()
		}
		return loadedMsg{page: idx, err: err}
	}
}

func (m Model) retry(idx int) tea.Cmd {
	p := m.pages[idx]
	return func() tea.Msg {
		return loadedMsg{page: idx, err: p.Retry()}
	}
}

func (m Model) fetchDashboard() tea.Cmd {
	b, ctx := m.dashboard, m.ctx
	return func() tea.Msg {
		data, err := b.Fetch(ctx)
		return dashboardMsg{data: data, err: err}
	}
}

func waitForChange(ch <-chan types.Change) tea.Cmd {
	return func() tea.Msg {
		change, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return changeMsg(change)
	}
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	m.collectToasts()

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case loadedMsg:
		m.busy = false

	case submittedMsg:
		m.busy = false
		if msg.err == nil || msg.page != m.active {
			break
		}
		// The dialog stays open; show the first field error next to its
		// input.
		if f := m.current().Form(); f != nil {
			m.focusFirstError(f)
		}

	case dashboardMsg:
		m.busy = false
		m.dashErr = msg.err
		if msg.err == nil {
			data := msg.data
			m.dashData = &data
		}

	case changeMsg:
		cmds = append(cmds, m.applyChange(types.Change(msg)), waitForChange(m.changes))

	case feedClosedMsg:
		m.queue.Notify(notify.Notification{Level: notify.LevelWarning, Title: "Live updates",
			Message: "change feed disconnected; press r to refresh"})

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKey(msg))
	}

	m.collectToasts()
	return m, tea.Batch(cmds...)
}

// applyChange marks the cached lists for the changed resource stale and
// reloads the visible page when it is one of them.
func (m *Model) applyChange(ch types.Change) tea.Cmd {
	m.cache.InvalidatePrefix(query.Key{ch.Resource})
	m.cache.Invalidate(query.Key{"dashboard"})
	if ch.Resource == types.ResourceInvitations {
		m.cache.InvalidatePrefix(query.Key{types.ResourceEvents})
	}

	if m.showDashboard {
		return m.fetchDashboard()
	}
	p := m.current()
	if p == nil || !p.Stale() || p.Mode() != dialog.ModeNone {
		return nil
	}
	return m.load(m.active, false)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if key == "ctrl+c" {
		return tea.Quit
	}
	p := m.current()
	if p == nil {
		if key == "q" {
			return tea.Quit
		}
		return nil
	}

	switch p.Mode() {
	case dialog.ModeCreate, dialog.ModeEdit:
		return m.handleFormKey(p, msg)
	case dialog.ModeDelete:
		switch key {
		case "y", "enter":
			if m.busy {
				return nil
			}
			m.busy = true
			idx := m.active
			return func() tea.Msg { return submittedMsg{page: idx, err: p.ConfirmDelete()} }
		case "n", "esc":
			p.Close()
		}
		return nil
	case dialog.ModeView:
		if key == "esc" || key == "enter" || key == "q" {
			p.Close()
		}
		return nil
	}

	if m.showDashboard {
		switch key {
		case "g", "esc":
			m.showDashboard = false
		case "r":
			m.cache.Invalidate(query.Key{"dashboard"})
			m.busy = true
			return m.fetchDashboard()
		case "q":
			return tea.Quit
		}
		return nil
	}

	switch key {
	case "q":
		return tea.Quit
	case "tab", "right":
		return m.switchPage((m.active + 1) % len(m.pages))
	case "shift+tab", "left":
		return m.switchPage((m.active - 1 + len(m.pages)) % len(m.pages))
	case "up", "k":
		p.Move(-1)
	case "down", "j":
		p.Move(1)
	case "n", "pgdown":
		p.NextPage()
	case "p", "pgup":
		p.PrevPage()
	case "g":
		m.showDashboard = true
		m.busy = true
		return m.fetchDashboard()
	case "r":
		m.busy = true
		if p.Failed() {
			return m.retry(m.active)
		}
		return m.load(m.active, true)
	case "c":
		p.OpenCreate()
		return m.focusField(p.Form(), 0)
	case "t":
		if !p.CanToggle() || m.busy || p.Pending() {
			return nil
		}
		m.busy = true
		idx := m.active
		return func() tea.Msg { return submittedMsg{page: idx, err: p.Toggle()} }
	case "e", "v", "d":
		if err := p.Invoke(key); err != nil {
			return nil
		}
		if f := p.Form(); f != nil {
			return m.focusField(f, 0)
		}
	}
	return nil
}

func (m *Model) handleFormKey(p page, msg tea.KeyMsg) tea.Cmd {
	f := p.Form()
	if f == nil {
		p.Close()
		return nil
	}
	fields := f.Schema().Fields()

	switch msg.String() {
	case "esc":
		p.Close()
		return nil
	case "tab", "down":
		m.commitInput(f)
		return m.focusField(f, (m.focus+1)%len(fields))
	case "shift+tab", "up":
		m.commitInput(f)
		return m.focusField(f, (m.focus-1+len(fields))%len(fields))
	case "enter":
		m.commitInput(f)
		if m.busy || p.Pending() {
			return nil
		}
		m.busy = true
		idx := m.active
		return func() tea.Msg { return submittedMsg{page: idx, err: p.Submit()} }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) commitInput(f *form.State) {
	fields := f.Schema().Fields()
	if m.focus < len(fields) {
		f.Set(fields[m.focus].Name, m.input.Value())
	}
}

func (m *Model) focusField(f *form.State, idx int) tea.Cmd {
	if f == nil {
		return nil
	}
	fields := f.Schema().Fields()
	if len(fields) == 0 {
		return nil
	}
	m.focus = max(0, min(idx, len(fields)-1))
	field := fields[m.focus]
	m.input.SetValue(f.Value(field.Name))
	m.input.Placeholder = placeholder(field)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) focusFirstError(f *form.State) {
	first, ok := f.Errors().First()
	if !ok {
		return
	}
	for i, field := range f.Schema().Fields() {
		if field.Name == first.Field {
			m.focusField(f, i)
			return
		}
	}
}

func (m *Model) switchPage(idx int) tea.Cmd {
	if idx == m.active {
		return nil
	}
	m.pages[m.active].Unmount()
	m.active = idx
	m.pages[idx].Mount(m.ctx)
	m.busy = true
	return m.load(idx, false)
}

func (m *Model) collectToasts() {
	now := m.now()
	for _, n := range m.queue.Drain() {
		m.toasts = append(m.toasts, toast{Notification: n, until: now.Add(toastTTL)})
	}
	live := m.toasts[:0]
	for _, t := range m.toasts {
		if now.Before(t.until) {
			live = append(live, t)
		}
	}
	m.toasts = live
}

// View renders the console.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	p := m.current()
	switch {
	case p == nil:
		b.WriteString(m.styles.help.Render("No pages available for this role."))
	case m.showDashboard:
		b.WriteString(m.renderDashboard())
	default:
		b.WriteString(m.renderPage(p))
	}

	if m.busy {
		b.WriteString("\n" + m.spinner.View() + " working…")
	}
	for _, t := range m.toasts {
		style := m.styles.toast[t.Level]
		b.WriteString("\n" + style.Render(fmt.Sprintf("[%s] %s", t.Title, t.Message)))
	}
	b.WriteString("\n" + m.styles.help.Render(m.helpLine(p)))
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, len(m.pages)+1)
	for i, p := range m.pages {
		style := m.styles.tab
		if i == m.active && !m.showDashboard {
			style = m.styles.tabOn
		}
		tabs = append(tabs, style.Render(p.Title()))
	}
	dash := m.styles.tab
	if m.showDashboard {
		dash = m.styles.tabOn
	}
	tabs = append(tabs, dash.Render("Dashboard"))
	row := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	if m.who != "" {
		row += m.styles.help.Render("  " + m.who)
	}
	return row
}

func (m Model) renderPage(p page) string {
	list := p.Render(m.width, m.styles.list)
	switch p.Mode() {
	case dialog.ModeCreate, dialog.ModeEdit:
		return lipgloss.JoinVertical(lipgloss.Left, list, m.renderForm(p))
	case dialog.ModeView:
		return lipgloss.JoinVertical(lipgloss.Left, list,
			m.styles.dialog.Render(m.styles.title.Render(p.Title()+": details")+"\n"+p.Detail()))
	case dialog.ModeDelete:
		return lipgloss.JoinVertical(lipgloss.Left, list,
			m.styles.dialog.Render("Delete this record? This cannot be undone. (y/n)"))
	}
	return list
}

func (m Model) renderForm(p page) string {
	f := p.Form()
	if f == nil {
		return ""
	}
	title := "New record"
	if p.Mode() == dialog.ModeEdit {
		title = "Edit record"
	}

	var b strings.Builder
	b.WriteString(m.styles.title.Render(p.Title() + ": " + title))
	b.WriteString("\n")
	errs := f.Errors()
	for i, field := range f.Schema().Fields() {
		label := field.Label
		if field.Required {
			label += " *"
		}
		value := f.Value(field.Name)
		if i == m.focus {
			value = m.input.View()
		}
		b.WriteString(m.styles.label.Render(label) + value + "\n")
		if msg := errs.Get(field.Name); msg != "" {
			b.WriteString(m.styles.label.Render("") + m.styles.fieldErr.Render(msg) + "\n")
		}
	}
	if f.Pending() {
		b.WriteString(m.spinner.View() + " saving…")
	}
	return m.styles.dialog.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderDashboard() string {
	return m.boundary.Render(func() string {
		switch {
		case m.dashErr != nil:
			return m.styles.list.Error.Render("Failed to load dashboard: "+m.dashErr.Error()) + "\n" +
				m.styles.help.Render("press r to retry")
		case m.dashData == nil:
			return m.styles.help.Render("Loading…")
		}
		d := m.dashData
		lines := []string{
			m.styles.title.Render("Dashboard"),
			fmt.Sprintf("Halls:        %d (%d active)", d.Halls, d.ActiveHalls),
			fmt.Sprintf("Invitations:  %d (%d guests)", d.Invitations, d.Guests),
			fmt.Sprintf("Open reports: %d", d.OpenReports),
			fmt.Sprintf("Ratings:      %d (avg %.1f)", d.Ratings, d.AverageRating),
			"Events:",
		}
		statuses := make([]string, 0, len(d.Events))
		for status := range d.Events {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			lines = append(lines, fmt.Sprintf("  %-10s %d", status, d.Events[status]))
		}
		return strings.Join(lines, "\n")
	}, screen.DefaultFallback)
}

func (m Model) helpLine(p page) string {
	if p == nil {
		return "q quit"
	}
	switch {
	case m.showDashboard:
		return "r refresh • g/esc back • q quit"
	case p.Mode() == dialog.ModeCreate || p.Mode() == dialog.ModeEdit:
		return "tab/shift+tab move • enter save • esc cancel"
	case p.Mode() == dialog.ModeDelete:
		return "y confirm • n cancel"
	case p.Mode() == dialog.ModeView:
		return "esc close"
	}
	help := "←/→ pages • ↑/↓ select • n/p page • c create • e edit • v view • d delete"
	if p.CanToggle() {
		help += " • t toggle"
	}
	return help + " • r refresh • g dashboard • q quit"
}

func placeholder(f form.Field) string {
	switch f.Kind {
	case form.KindTime:
		return "YYYY-MM-DD HH:MM"
	case form.KindBool:
		return "true / false"
	case form.KindEnum:
		return strings.Join(f.Options, " | ")
	}
	return f.Label
}
