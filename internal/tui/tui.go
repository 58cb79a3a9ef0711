// Package tui is the terminal screen for items held back for manual review.
package tui

import (
	"context"
	"fmt"
	"inboxdigest/internal/core"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const excludeNote = "Excluded during review"

// ReviewStore is the part of the item store the review screen needs.
type ReviewStore interface {
	QueryPendingReview(ctx context.Context) ([]core.Item, error)
	SetSummary(ctx context.Context, id, summary string, status core.Status) error
	UpdateStatus(ctx context.Context, id string, status core.Status, note string) error
}

// Decision is the outcome recorded for one reviewed item.
type Decision struct {
	ItemID string
	Status core.Status
}

type itemsLoadedMsg struct {
	items []core.Item
	err   error
}

type decidedMsg struct {
	index    int
	decision Decision
	err      error
}

// model holds the state of the review screen.
type model struct {
	ctx         context.Context
	store       ReviewStore
	items       []core.Item
	decided     map[int]core.Status
	decisions   []Decision
	selectedIdx int
	width       int
	height      int
	loading     bool
	status      string
	err         error
	quitting    bool
}

func newModel(ctx context.Context, store ReviewStore) model {
	return model{
		ctx:     ctx,
		store:   store,
		decided: make(map[int]core.Status),
		loading: true,
	}
}

func (m model) Init() tea.Cmd {
	return m.loadItems
}

func (m model) loadItems() tea.Msg {
	items, err := m.store.QueryPendingReview(m.ctx)
	return itemsLoadedMsg{items: items, err: err}
}

// decide persists a decision. Approval keeps the stored summary and only
// moves the item to ready.
func (m model) decide(index int, status core.Status) tea.Cmd {
	item := m.items[index]
	return func() tea.Msg {
		var err error
		if status == core.StatusReady {
			err = m.store.SetSummary(m.ctx, item.ID, item.Summary, core.StatusReady)
		} else {
			err = m.store.UpdateStatus(m.ctx, item.ID, status, excludeNote)
		}
		return decidedMsg{index: index, decision: Decision{ItemID: item.ID, Status: status}, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case itemsLoadedMsg:
		m.loading = false
		m.items = msg.items
		m.err = msg.err

	case decidedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Failed to update %s: %v", msg.decision.ItemID, msg.err)
			break
		}
		m.decided[msg.index] = msg.decision.Status
		m.decisions = append(m.decisions, msg.decision)
		m.status = fmt.Sprintf("%s → %s", displayTitle(m.items[msg.index]), msg.decision.Status)
		m.selectNextOpen()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "down", "j":
			if m.selectedIdx < len(m.items)-1 {
				m.selectedIdx++
			}
		case "a", "enter":
			if m.canDecide() {
				return m, m.decide(m.selectedIdx, core.StatusReady)
			}
		case "x", "d":
			if m.canDecide() {
				return m, m.decide(m.selectedIdx, core.StatusExcluded)
			}
		}
	}

	return m, nil
}

func (m model) canDecide() bool {
	if m.loading || len(m.items) == 0 {
		return false
	}
	_, done := m.decided[m.selectedIdx]
	return !done
}

func (m *model) selectNextOpen() {
	for i := 1; i <= len(m.items); i++ {
		idx := (m.selectedIdx + i) % len(m.items)
		if _, done := m.decided[idx]; !done {
			m.selectedIdx = idx
			return
		}
	}
}

var (
	docStyle      = lipgloss.NewStyle().Margin(1, 2)
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m model) View() string {
	if m.quitting {
		return fmt.Sprintf("Reviewed %d item(s).\n", len(m.decisions))
	}
	if m.loading {
		return docStyle.Render("Loading items pending review...")
	}
	if m.err != nil {
		return docStyle.Render(errorStyle.Render(fmt.Sprintf("Failed to load items: %v", m.err)))
	}
	if len(m.items) == 0 {
		return docStyle.Render("Nothing is waiting for review.\n\n" + helpStyle.Render("[q] Quit"))
	}

	paneWidth := 40
	if m.width > 0 {
		paneWidth = max(m.width/2-5, 20)
	}

	var list strings.Builder
	list.WriteString(titleStyle.Render(fmt.Sprintf("Pending review (%d)", len(m.items))) + "\n\n")
	for i, item := range m.items {
		cursor := " "
		if i == m.selectedIdx {
			cursor = ">"
		}
		line := fmt.Sprintf("%s %s", cursor, core.Truncate(displayTitle(item), paneWidth-6))
		switch status, done := m.decided[i]; {
		case done:
			list.WriteString(doneStyle.Render(fmt.Sprintf("%s [%s]", line, status)))
		case i == m.selectedIdx:
			list.WriteString(selectedStyle.Render(line))
		default:
			list.WriteString(line)
		}
		list.WriteString("\n")
	}

	item := m.items[m.selectedIdx]
	var detail strings.Builder
	detail.WriteString(titleStyle.Render(displayTitle(item)) + "\n\n")
	if item.URL != "" {
		detail.WriteString(item.URL + "\n")
	}
	if len(item.Tags) > 0 {
		detail.WriteString("Tags: " + strings.Join(item.Tags, ", ") + "\n")
	}
	if item.HasConfidence {
		detail.WriteString(fmt.Sprintf("Confidence: %.2f\n", item.Confidence))
	}
	detail.WriteString(fmt.Sprintf("Sensitivity: %s\n\n", item.Sensitivity))
	if item.Summary != "" {
		detail.WriteString(item.Summary)
	} else {
		detail.WriteString("No summary.")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Width(paneWidth).Render(list.String()),
		paneStyle.Width(paneWidth).Render(detail.String()))

	footer := "\n" + helpStyle.Render("[↑/k] Up | [↓/j] Down | [a] Approve | [x] Exclude | [q] Quit")
	if m.status != "" {
		footer = "\n" + m.status + footer
	}
	return docStyle.Render(body + footer)
}

func displayTitle(item core.Item) string {
	switch {
	case strings.TrimSpace(item.Title) != "":
		return item.Title
	case item.URL != "":
		return item.URL
	}
	return item.ID
}

// Run starts the review screen and returns the decisions made before the
// user quit.
func Run(ctx context.Context, store ReviewStore) ([]Decision, error) {
	p := tea.NewProgram(newModel(ctx, store), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("error running review screen: %w", err)
	}
	return final.(model).decisions, nil
}
