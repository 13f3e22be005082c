package cli

import (
	"fmt"
	"strings"
	"time"

	domain "edumarket-service/internal/domain/notification"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	colorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorWhite).
	Background(colorBlue).
	Padding(0, 1)

var toastStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorBorder)

var mutedStyle = lipgloss.NewStyle().
	Foreground(colorGray)

var unreadMarker = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorBlue).
	Render("●")

func priorityColor(p domain.Priority) lipgloss.TerminalColor {
	switch p {
	case domain.PriorityUrgent:
		return colorRed
	case domain.PriorityHigh:
		return colorYellow
	case domain.PriorityLow:
		return colorGray
	default:
		return colorGreen
	}
}

// RenderToast draws a desktop-style notification box
func RenderToast(n DesktopToast) string {
	title := lipgloss.NewStyle().Bold(true).Render(n.Title)
	body := n.Body
	style := toastStyle
	if n.Sticky {
		style = style.BorderForeground(colorRed)
		title += mutedStyle.Render("  (needs attention)")
	}
	return style.Render(title + "\n" + body)
}

// RenderHeader draws the status line shown above the list
func RenderHeader(userID, state string, unread int) string {
	return headerStyle.Render(fmt.Sprintf("notifications · %s · %d unread", userID, unread)) +
		" " + mutedStyle.Render(strings.ToLower(state))
}

// RenderList draws one line per notification
func RenderList(items []domain.Notification, now time.Time) string {
	if len(items) == 0 {
		return mutedStyle.Render("  no notifications")
	}
	var b strings.Builder
	for i, n := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		marker := " "
		if !n.IsRead {
			marker = unreadMarker
		}
		priority := lipgloss.NewStyle().Foreground(priorityColor(n.Priority)).Render(fmt.Sprintf("%-6s", n.Priority))
		fmt.Fprintf(&b, "%s %s %s %s %s",
			marker,
			priority,
			n.Title,
			mutedStyle.Render(age(now, n.CreatedAt)),
			mutedStyle.Render(n.ID),
		)
	}
	return b.String()
}

func age(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
