package style

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Accent
	Yellow  = lipgloss.Color("#FFB500") // Warnings / stale
	Green   = lipgloss.Color("#2AFFAA") // Positive PnL
	Red     = lipgloss.Color("#FF5555") // Negative PnL / errors
	Blue    = lipgloss.Color("#3B82F6") // Info

	Base03 = lipgloss.Color("#1B1D23") // Background
	Base02 = lipgloss.Color("#262831") // Darker background
	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
	Base1  = lipgloss.Color("#B4BCC8") // Secondary text
)

// Palette provides a centralized color management
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Profit    lipgloss.Color
	Loss      lipgloss.Color
	Warning   lipgloss.Color
	Info      lipgloss.Color

	Background    lipgloss.Color
	BackgroundAlt lipgloss.Color
	Text          lipgloss.Color
	TextMuted     lipgloss.Color
	TextSecondary lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Secondary: Magenta,
		Profit:    Green,
		Loss:      Red,
		Warning:   Yellow,
		Info:      Blue,

		Background:    Base03,
		BackgroundAlt: Base02,
		Text:          Base2,
		TextMuted:     Base01,
		TextSecondary: Base1,
	}
}

// PnLColor picks profit, loss or neutral text color for v.
func (p Palette) PnLColor(v float64) lipgloss.Color {
	switch {
	case v > 0:
		return p.Profit
	case v < 0:
		return p.Loss
	default:
		return p.TextSecondary
	}
}

// Badge renders a bold inverted label.
func (p Palette) Badge(text string, bg lipgloss.Color) string {
	return lipgloss.NewStyle().
		Foreground(p.Background).
		Background(bg).
		Bold(true).
		Padding(0, 1).
		Render(text)
}
