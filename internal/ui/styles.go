// Package ui holds the lipgloss styles shared by the TUI views.
package ui

import "github.com/charmbracelet/lipgloss"

// Palette is the set of colors one theme uses.
type Palette struct {
	Accent  lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
	Faint   lipgloss.Color
	Error   lipgloss.Color
	Warning lipgloss.Color
	Success lipgloss.Color
	User    lipgloss.Color
	AI      lipgloss.Color
}

// Palettes for the two themes.
var (
	DarkPalette = Palette{
		Accent:  lipgloss.Color("#00FFFF"),
		Text:    lipgloss.Color("#FFFFFF"),
		Muted:   lipgloss.Color("#666666"),
		Faint:   lipgloss.Color("#444444"),
		Error:   lipgloss.Color("#FF0000"),
		Warning: lipgloss.Color("#FFFF00"),
		Success: lipgloss.Color("#00FF00"),
		User:    lipgloss.Color("#5FAFFF"),
		AI:      lipgloss.Color("#FF00FF"),
	}

	LightPalette = Palette{
		Accent:  lipgloss.Color("#005F87"),
		Text:    lipgloss.Color("#1C1C1C"),
		Muted:   lipgloss.Color("#6C6C6C"),
		Faint:   lipgloss.Color("#BCBCBC"),
		Error:   lipgloss.Color("#AF0000"),
		Warning: lipgloss.Color("#AF5F00"),
		Success: lipgloss.Color("#008700"),
		User:    lipgloss.Color("#005FAF"),
		AI:      lipgloss.Color("#870087"),
	}
)

// Styles are the rendered styles for one palette.
type Styles struct {
	Title            lipgloss.Style
	Subtitle         lipgloss.Style
	Tab              lipgloss.Style
	TabActive        lipgloss.Style
	Online           lipgloss.Style
	Offline          lipgloss.Style
	Warning          lipgloss.Style
	ErrorLabel       lipgloss.Style
	ErrorText        lipgloss.Style
	Timestamp        lipgloss.Style
	UserLabel        lipgloss.Style
	AILabel          lipgloss.Style
	Source           lipgloss.Style
	PanelTitle       lipgloss.Style
	PanelTitleActive lipgloss.Style
	Selected         lipgloss.Style
	Dim              lipgloss.Style
	FooterKey        lipgloss.Style
	FooterDesc       lipgloss.Style
	Divider          lipgloss.Style
	RecordingDot     lipgloss.Style
	IdleDot          lipgloss.Style
	Spinner          lipgloss.Style
}

// NewStyles builds the styles for p.
func NewStyles(p Palette) Styles {
	return Styles{
		Title:            lipgloss.NewStyle().Bold(true).Foreground(p.Accent),
		Subtitle:         lipgloss.NewStyle().Foreground(p.Muted),
		Tab:              lipgloss.NewStyle().Foreground(p.Muted).Padding(0, 1),
		TabActive:        lipgloss.NewStyle().Bold(true).Foreground(p.Accent).Underline(true).Padding(0, 1),
		Online:           lipgloss.NewStyle().Foreground(p.Success),
		Offline:          lipgloss.NewStyle().Foreground(p.Error),
		Warning:          lipgloss.NewStyle().Foreground(p.Warning),
		ErrorLabel:       lipgloss.NewStyle().Bold(true).Foreground(p.Error),
		ErrorText:        lipgloss.NewStyle().Foreground(p.Error),
		Timestamp:        lipgloss.NewStyle().Foreground(p.Muted),
		UserLabel:        lipgloss.NewStyle().Bold(true).Foreground(p.User),
		AILabel:          lipgloss.NewStyle().Bold(true).Foreground(p.AI),
		Source:           lipgloss.NewStyle().Foreground(p.Accent),
		PanelTitle:       lipgloss.NewStyle().Bold(true).Foreground(p.Text),
		PanelTitleActive: lipgloss.NewStyle().Bold(true).Foreground(p.Accent),
		Selected:         lipgloss.NewStyle().Bold(true).Foreground(p.Accent),
		Dim:              lipgloss.NewStyle().Foreground(p.Muted),
		FooterKey:        lipgloss.NewStyle().Bold(true).Foreground(p.Warning),
		FooterDesc:       lipgloss.NewStyle().Foreground(p.Muted),
		Divider:          lipgloss.NewStyle().Foreground(p.Faint),
		RecordingDot:     lipgloss.NewStyle().Bold(true).Foreground(p.Error),
		IdleDot:          lipgloss.NewStyle().Foreground(p.Muted),
		Spinner:          lipgloss.NewStyle().Foreground(p.AI),
	}
}

var (
	darkStyles  = NewStyles(DarkPalette)
	lightStyles = NewStyles(LightPalette)
)

// ForTheme returns the styles for a theme name. Unknown names get the dark
// theme.
func ForTheme(theme string) Styles {
	if theme == "light" {
		return lightStyles
	}
	return darkStyles
}
