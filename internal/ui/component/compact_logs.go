package component

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-pnl/internal/logger"
	"github.com/rovshanmuradov/solana-pnl/internal/ui/style"
)

const logLines = 50

// CompactLogViewer shows the tail of the in-memory log buffer
type CompactLogViewer struct {
	buffer   *logger.LogBuffer
	viewport viewport.Model
	showDbg  bool
	visible  bool
	height   int

	container lipgloss.Style
	title     lipgloss.Style
	timestamp lipgloss.Style
	levels    map[string]lipgloss.Style
}

// NewCompactLogViewer creates a new compact log viewer
func NewCompactLogViewer(logBuffer *logger.LogBuffer) *CompactLogViewer {
	palette := style.DefaultPalette()

	return &CompactLogViewer{
		buffer:  logBuffer,
		visible: true,
		container: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.Info).
			Padding(0, 1),
		title: lipgloss.NewStyle().
			Foreground(palette.Info).
			Bold(true),
		timestamp: lipgloss.NewStyle().
			Foreground(palette.TextMuted),
		levels: map[string]lipgloss.Style{
			"error": lipgloss.NewStyle().Foreground(palette.Loss).Bold(true),
			"warn":  lipgloss.NewStyle().Foreground(palette.Warning).Bold(true),
			"info":  lipgloss.NewStyle().Foreground(palette.Info),
			"debug": lipgloss.NewStyle().Foreground(palette.TextMuted),
		},
		viewport: viewport.New(50, 4),
	}
}

// SetSize sets the component dimensions
func (clv *CompactLogViewer) SetSize(width, height int) {
	clv.height = height
	clv.container = clv.container.Width(max(width-4, 10))

	// рамка и заголовок
	clv.viewport.Width = max(width-6, 10)
	clv.viewport.Height = max(height-3, 2)
}

// Toggle shows or hides the viewer
func (clv *CompactLogViewer) Toggle() {
	clv.visible = !clv.visible
}

// IsVisible returns whether the log viewer is visible
func (clv *CompactLogViewer) IsVisible() bool {
	return clv.visible
}

// ShowDebug enables debug entries
func (clv *CompactLogViewer) ShowDebug(show bool) {
	clv.showDbg = show
}

// Height returns the rendered height, 0 when hidden
func (clv *CompactLogViewer) Height() int {
	if !clv.visible {
		return 0
	}
	return clv.height
}

// View renders the compact log viewer
func (clv *CompactLogViewer) View() string {
	if !clv.visible {
		return ""
	}
	clv.refresh()

	return clv.container.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		clv.title.Render("Logs [l]"),
		clv.viewport.View(),
	))
}

func (clv *CompactLogViewer) refresh() {
	if clv.buffer == nil {
		clv.viewport.SetContent("No log buffer available")
		return
	}

	var lines []string
	for _, entry := range clv.buffer.GetRecentLogs(logLines) {
		level := normalizeLevel(entry.Level)
		if level == "debug" && !clv.showDbg {
			continue
		}
		msgStyle, ok := clv.levels[level]
		if !ok {
			msgStyle = clv.levels["info"]
		}
		lines = append(lines, fmt.Sprintf("%s %s",
			clv.timestamp.Render(entry.Timestamp.Local().Format("15:04:05")),
			msgStyle.Render(entry.Message)))
	}

	if len(lines) == 0 {
		clv.viewport.SetContent("No logs yet")
		return
	}
	clv.viewport.SetContent(strings.Join(lines, "\n"))
	clv.viewport.GotoBottom()
}

func normalizeLevel(level string) string {
	switch l := strings.ToLower(level); l {
	case "warning":
		return "warn"
	case "dpanic", "panic", "fatal":
		return "error"
	default:
		return l
	}
}
