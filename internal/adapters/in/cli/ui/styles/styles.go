// Package styles holds the palette and lipgloss styles of the courseimages
// CLI.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	ColorAccent = lipgloss.Color("#2dd4bf") // teal-400
	ColorAmber  = lipgloss.Color("#fbbf24")
	ColorRed    = lipgloss.Color("#f87171")
	ColorSky    = lipgloss.Color("#38bdf8")
	ColorText   = lipgloss.Color("#e2e8f0") // slate-200
	ColorFaint  = lipgloss.Color("#64748b") // slate-500
	ColorBorder = lipgloss.Color("#334155") // slate-700
	ColorInk    = lipgloss.Color("#020617") // slate-950
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	Faint = lipgloss.NewStyle().Foreground(ColorFaint)
	Label = lipgloss.NewStyle().Bold(true).Foreground(ColorText)

	bullet = lipgloss.NewStyle().Foreground(ColorAccent).PaddingLeft(2)
	hotkey = lipgloss.NewStyle().Foreground(ColorAccent)
)

// Level selects the color and Nerd Font glyph of a status line.
type Level int

const (
	Success Level = iota
	Info
	Warning
	Error
)

var levels = map[Level]struct {
	glyph string
	style lipgloss.Style
}{
	Success: {"\uf00c", lipgloss.NewStyle().Foreground(ColorAccent)},
	Info:    {"\uf05a", lipgloss.NewStyle().Foreground(ColorSky)},
	Warning: {"\uf071", lipgloss.NewStyle().Foreground(ColorAmber)},
	Error:   {"\uf00d", lipgloss.NewStyle().Foreground(ColorRed)},
}

// Status renders msg prefixed by the glyph of level.
func Status(level Level, msg string) string {
	l := levels[level]
	return l.style.Render(l.glyph + " " + msg)
}

// Field renders "label value" with the value dimmed.
func Field(label, value string) string {
	return Label.Render(label) + " " + Faint.Render(value)
}

// Bullet renders an indented list entry.
func Bullet(item string) string {
	return bullet.Render("\u25b8") + " " + lipgloss.NewStyle().Foreground(ColorText).Render(item)
}

// KeyHints renders key/description pairs on one line.
func KeyHints(pairs ...[2]string) string {
	out := ""
	for i, p := range pairs {
		if i > 0 {
			out += "  "
		}
		out += hotkey.Render(p[0]) + " " + Faint.Render(p[1])
	}
	return out
}
