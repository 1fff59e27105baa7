package component

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
	"github.com/rovshanmuradov/solana-pnl/internal/ui/style"
)

// StatusHeader shows the wallet, the committed version and the total realized PnL
type StatusHeader struct {
	wallet      string
	version     int64
	totalPnL    float64
	lastRefresh time.Time
	stale       bool
	staleReason string
	busy        string // spinner frame while a refresh is running
	width       int
	palette     style.Palette
	container   lipgloss.Style
	title       lipgloss.Style
	muted       lipgloss.Style
}

// NewStatusHeader creates a new status header component
func NewStatusHeader() *StatusHeader {
	palette := style.DefaultPalette()

	return &StatusHeader{
		wallet:  "Unknown",
		palette: palette,
		container: lipgloss.NewStyle().
			Foreground(palette.Text).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.Primary).
			Padding(0, 2),
		title: lipgloss.NewStyle().
			Foreground(palette.Primary).
			Bold(true),
		muted: lipgloss.NewStyle().
			Foreground(palette.TextMuted),
	}
}

// SetWallet updates the wallet address display
func (sh *StatusHeader) SetWallet(wallet string) {
	if len(wallet) > 12 {
		sh.wallet = wallet[:6] + "..." + wallet[len(wallet)-4:]
	} else {
		sh.wallet = wallet
	}
}

// SetState updates version and total from the last committed snapshot
func (sh *StatusHeader) SetState(version int64, totalPnL float64, at time.Time) {
	sh.version = version
	sh.totalPnL = totalPnL
	sh.lastRefresh = at
}

// SetStale marks the shown data as outdated; an empty reason clears the mark
func (sh *StatusHeader) SetStale(reason string) {
	sh.stale = reason != ""
	sh.staleReason = reason
}

// IsStale reports whether the STALE badge is shown
func (sh *StatusHeader) IsStale() bool {
	return sh.stale
}

// SetBusy shows frame next to the title, "" hides it
func (sh *StatusHeader) SetBusy(frame string) {
	sh.busy = frame
}

// SetWidth sets the component width for responsive layout
func (sh *StatusHeader) SetWidth(width int) {
	sh.width = width
	if width > 4 {
		sh.container = sh.container.Width(width - 4)
	}
}

// View renders the status header
func (sh *StatusHeader) View() string {
	title := sh.title.Render("Solana PnL")
	if sh.busy != "" {
		title += " " + sh.busy
	}

	pnlStyle := lipgloss.NewStyle().Foreground(sh.palette.PnLColor(sh.totalPnL)).Bold(true)

	parts := []string{
		title,
		" | ",
		fmt.Sprintf("Wallet: %s", sh.wallet),
		" | ",
		sh.muted.Render(fmt.Sprintf("v%d", sh.version)),
		" | ",
		pnlStyle.Render("Realized: " + pnl.FormatUSD(sh.totalPnL)),
	}
	if !sh.lastRefresh.IsZero() {
		parts = append(parts, " | ", sh.muted.Render("updated "+sh.lastRefresh.Local().Format("15:04:05")))
	}
	if sh.stale {
		parts = append(parts, "  ", sh.palette.Badge("STALE", sh.palette.Warning))
	}

	content := lipgloss.JoinHorizontal(lipgloss.Left, parts...)
	if sh.stale && sh.staleReason != "" {
		reason := lipgloss.NewStyle().Foreground(sh.palette.Warning).Render(sh.staleReason)
		content = lipgloss.JoinVertical(lipgloss.Left, content, reason)
	}
	return sh.container.Render(content)
}
