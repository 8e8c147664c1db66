package listview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Styles are the lipgloss styles used by Render.
type Styles struct {
	Header       lipgloss.Style
	Cell         lipgloss.Style
	Selected     lipgloss.Style
	Border       lipgloss.Style
	Card         lipgloss.Style
	SelectedCard lipgloss.Style
	CardTitle    lipgloss.Style
	Muted        lipgloss.Style
	Error        lipgloss.Style
}

// DefaultStyles returns the console palette.
func DefaultStyles() Styles {
	accent := lipgloss.Color("#8BC34A")
	muted := lipgloss.Color("#6b7280")
	card := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1)
	return Styles{
		Header:       lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Cell:         lipgloss.NewStyle().Padding(0, 1),
		Selected:     lipgloss.NewStyle().Padding(0, 1).Foreground(accent).Bold(true),
		Border:       lipgloss.NewStyle().Foreground(muted),
		Card:         card,
		SelectedCard: card.BorderForeground(accent),
		CardTitle:    lipgloss.NewStyle().Bold(true),
		Muted:        lipgloss.NewStyle().Foreground(muted),
		Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true),
	}
}

// Render draws a frame.
func (l *List[T]) Render(f Frame[T], st Styles) string {
	switch f.Kind {
	case FrameLoading:
		return st.Muted.Render("Loading…")
	case FrameError:
		msg := "Failed to load"
		if f.Err != nil {
			msg += ": " + f.Err.Error()
		}
		return lipgloss.JoinVertical(lipgloss.Left, st.Error.Render(msg), st.Muted.Render("press r to retry"))
	case FrameEmpty:
		return st.Muted.Render(f.EmptyText)
	}

	var body string
	if f.Layout == LayoutTable {
		body = l.renderTable(f, st)
	} else {
		body = l.renderCards(f, st)
	}

	footer := fmt.Sprintf("Page %d/%d · %d records", f.Page+1, f.Pages, f.Total)
	if f.Refreshing {
		footer += " · refreshing"
	}
	lines := []string{body, st.Muted.Render(footer)}
	if hints := l.actionHints(); hints != "" {
		lines = append(lines, st.Muted.Render(hints))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (l *List[T]) renderTable(f Frame[T], st Styles) string {
	headers := make([]string, len(l.cfg.Columns))
	for i, c := range l.cfg.Columns {
		headers[i] = c.Title
	}
	rows := make([][]string, len(f.Rows))
	for i, r := range f.Rows {
		rows[i] = l.cells(r)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return st.Header
			case row == f.Cursor:
				return st.Selected
			default:
				return st.Cell
			}
		})
	return t.String()
}

func (l *List[T]) renderCards(f Frame[T], st Styles) string {
	cards := make([]string, len(f.Rows))
	for i, r := range f.Rows {
		cells := l.cells(r)
		title := ""
		if l.cfg.CardTitle != nil {
			title = l.cfg.CardTitle(r)
		} else if len(cells) > 0 {
			title = cells[0]
		}

		lines := []string{st.CardTitle.Render(title)}
		for j, c := range l.cfg.Columns {
			lines = append(lines, c.Title+": "+cells[j])
		}
		style := st.Card
		if i == f.Cursor {
			style = st.SelectedCard
		}
		cards[i] = style.Render(strings.Join(lines, "\n"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func (l *List[T]) cells(r T) []string {
	out := make([]string, len(l.cfg.Columns))
	for i, c := range l.cfg.Columns {
		out[i] = c.Value(r)
	}
	return out
}

func (l *List[T]) actionHints() string {
	hints := make([]string, 0, len(l.cfg.Actions))
	for _, a := range l.cfg.Actions {
		hints = append(hints, a.Key+" "+a.Label)
	}
	return strings.Join(hints, " · ")
}
