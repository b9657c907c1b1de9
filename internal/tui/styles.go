package tui

import (
	"github.com/ashureev/castle-console/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e2e8f0")).Background(lipgloss.Color("#1e293b")).Padding(0, 1)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748b"))
	cursorStyle   = lipgloss.NewStyle().Background(lipgloss.Color("#334155"))
	selectedStyle = lipgloss.NewStyle().Bold(true)
	flashStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#78350f"))
	badgeStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#ef4444")).Padding(0, 1)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171"))
	toastStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#6366f1")).Padding(0, 1)
	dayStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8")).Align(lipgloss.Center)
	dividerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#334155"))

	roleStyles = map[domain.SenderRole]lipgloss.Style{
		domain.RoleMe:     lipgloss.NewStyle().Foreground(lipgloss.Color("#a5b4fc")),
		domain.RoleClient: lipgloss.NewStyle().Foreground(lipgloss.Color("#e2e8f0")),
		domain.RoleSystem: lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#94a3b8")),
	}
)

func statusStyle(id domain.ID) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(domain.StatusColor(id)))
}
