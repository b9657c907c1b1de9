package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ashureev/castle-console/internal/domain"
	"github.com/ashureev/castle-console/internal/inbox"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const (
	rosterMinWidth = 32
	chromeLines    = 4 // header, toast, status bar, help
)

// View implements tea.Model.
func (model Model) View() string {
	if model.loggedOut {
		return model.notice + "\n"
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		model.renderRoster(),
		dividerStyle.Render(strings.Repeat("│\n", max(model.bodyHeight()-1, 0))+"│"),
		model.renderConversation(),
	)
	return lipgloss.JoinVertical(lipgloss.Left,
		model.renderHeader(),
		body,
		model.renderToast(),
		model.renderStatusBar(),
		model.help.ShortHelpView(model.keys.ShortHelp()),
	)
}

func (model Model) rosterWidth() int {
	return max(rosterMinWidth, model.width/3)
}

func (model Model) conversationWidth() int {
	return max(model.width-model.rosterWidth()-1, 20)
}

func (model Model) bodyHeight() int {
	return max(model.height-chromeLines, 3)
}

func (model Model) renderHeader() string {
	unread := 0
	for i := range model.snap.Roster {
		unread += model.snap.Roster[i].UnreadCount
	}
	title := fmt.Sprintf("Inbox  %d clients  %d unread  sort: %s", len(model.roster), unread, model.sortKey)
	if model.opts.Username != "" {
		title += "  @" + model.opts.Username
	}
	return headerStyle.Width(model.width).Render(title)
}

func (model Model) renderRoster() string {
	width := model.rosterWidth()
	height := model.bodyHeight()
	lines := make([]string, 0, height)

	if model.focus == FocusFilter || model.query.Value() != "" {
		lines = append(lines, model.query.View())
	}
	if len(model.roster) == 0 {
		lines = append(lines, mutedStyle.Render("No clients match."))
	}

	// Keep the cursor row visible.
	rows := height - len(lines)
	offset := 0
	if model.cursor >= rows {
		offset = model.cursor - rows + 1
	}
	now := time.Now()
	for i := offset; i < len(model.roster) && len(lines) < height; i++ {
		lines = append(lines, model.renderRosterRow(&model.roster[i], i == model.cursor, width, now))
	}
	return lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height).Render(strings.Join(lines, "\n"))
}

func (model Model) renderRosterRow(c *domain.Client, atCursor bool, width int, now time.Time) string {
	name := c.Name
	if name == "" {
		name = domain.FormatPhoneUS(c.Phone)
	}
	left := statusStyle(c.StatusID).Render("●") + " " + name
	right := ""
	if t := c.RecencyTime(); !t.IsZero() {
		right = mutedStyle.Render(humanize.RelTime(t, now, "ago", "from now"))
	}
	if c.UnreadCount > 0 {
		right += " " + badgeStyle.Render(fmt.Sprint(c.UnreadCount))
	}
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	row := left + strings.Repeat(" ", gap) + right

	switch {
	case slices.Contains(model.snap.Flashing, c.ID):
		row = flashStyle.Render(row)
	case atCursor:
		row = cursorStyle.Render(row)
	}
	if c.ID == model.snap.Selected {
		row = selectedStyle.Render(row)
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(row)
}

func (model Model) renderConversation() string {
	width := model.conversationWidth()
	height := model.bodyHeight()
	conv := model.snap.Conversation
	if model.snap.Selected == 0 {
		hint := "Select a client to view the conversation."
		if model.snap.Pending != 0 {
			hint = fmt.Sprintf("Waiting for client #%s to appear in the roster...", model.snap.Pending)
		}
		return lipgloss.NewStyle().Width(width).Height(height).Render(mutedStyle.Render(hint))
	}

	var title string
	for i := range model.snap.Roster {
		if c := &model.snap.Roster[i]; c.ID == model.snap.Selected {
			title = fmt.Sprintf("%s  %s", selectedStyle.Render(c.Name), mutedStyle.Render(domain.FormatPhoneUS(c.Phone)))
			if appt := c.Appointment(); appt != "" {
				title += mutedStyle.Render("  appt " + appt)
			}
		}
	}

	var lines []string
	switch {
	case conv.Loading && len(conv.Messages) == 0:
		lines = append(lines, mutedStyle.Render("Loading..."))
	case conv.Error != "":
		lines = append(lines, errorStyle.Render(conv.Error))
	}
	for _, day := range inbox.GroupByDay(conv.Messages, time.Now(), time.Local) {
		lines = append(lines, dayStyle.Width(width).Render("── "+day.Label+" ──"))
		for _, m := range day.Messages {
			lines = append(lines, renderMessage(m, width))
		}
	}

	// Newest messages stay in view.
	room := height - 2
	if len(lines) > room {
		lines = lines[len(lines)-room:]
	}
	content := strings.Join(lines, "\n")
	pane := lipgloss.NewStyle().Height(room).MaxHeight(room).Render(content)
	return lipgloss.NewStyle().Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, pane, model.compose.View()))
}

func renderMessage(m inbox.RenderedMessage, width int) string {
	style := roleStyles[m.Role]
	stamp := mutedStyle.Render(m.Clock)
	text := style.Width(width * 3 / 4).Render(m.Text)
	block := lipgloss.JoinVertical(lipgloss.Left, text, stamp)
	if m.Role == domain.RoleMe {
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, block)
	}
	return block
}

func (model Model) renderToast() string {
	t := model.snap.Toast
	if t == nil {
		return ""
	}
	text := t.Text
	if len(text) > 80 {
		text = text[:77] + "..."
	}
	return toastStyle.Render(fmt.Sprintf("New message from %s: %s  (g to open, x to dismiss)", t.Name, text))
}

func (model Model) renderStatusBar() string {
	parts := []string{}
	if model.opts.Realtime != nil {
		st := model.opts.Realtime()
		switch {
		case st.Connected:
			parts = append(parts, "live")
		case st.Attempts > 0:
			parts = append(parts, fmt.Sprintf("reconnecting (attempt %d)", st.Attempts))
		default:
			parts = append(parts, "offline")
		}
	}
	if !model.snap.LastRefresh.IsZero() {
		parts = append(parts, "refreshed "+humanize.Time(model.snap.LastRefresh))
	}
	if model.snap.RefreshError != "" {
		parts = append(parts, errorStyle.Render("refresh failed: "+model.snap.RefreshError))
	}
	if model.sending {
		parts = append(parts, "sending...")
	}
	if model.lastError != "" {
		parts = append(parts, errorStyle.Render(model.lastError))
	}
	return mutedStyle.Render(strings.Join(parts, " · "))
}
