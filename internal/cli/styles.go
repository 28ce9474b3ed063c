// pattern: Functional Core

package cli

import (
	"io"

	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Styles renders command output in a catppuccin flavor. Colors are dropped
// automatically when the writer is not a terminal.
type Styles struct {
	flavor   catppuccin.Flavor
	renderer *lipgloss.Renderer
}

func NewStyles(w io.Writer, themeName string) *Styles {
	return &Styles{flavor: flavorFromName(themeName), renderer: lipgloss.NewRenderer(w)}
}

func flavorFromName(name string) catppuccin.Flavor {
	switch name {
	case "latte":
		return catppuccin.Latte
	case "frappe":
		return catppuccin.Frappe
	case "macchiato":
		return catppuccin.Macchiato
	case "mocha":
		return catppuccin.Mocha
	default:
		return catppuccin.Mocha
	}
}

func (s *Styles) color(c catppuccin.Color) lipgloss.Color {
	return lipgloss.Color(c.Hex)
}

func (s *Styles) TitleStyle() lipgloss.Style {
	return s.renderer.NewStyle().
		Bold(true).
		Foreground(s.color(s.flavor.Mauve()))
}

func (s *Styles) MutedStyle() lipgloss.Style {
	return s.renderer.NewStyle().
		Foreground(s.color(s.flavor.Overlay0()))
}

func (s *Styles) AccentStyle() lipgloss.Style {
	return s.renderer.NewStyle().
		Foreground(s.color(s.flavor.Teal()))
}

func (s *Styles) WarnStyle() lipgloss.Style {
	return s.renderer.NewStyle().
		Foreground(s.color(s.flavor.Peach()))
}

func (s *Styles) ErrorStyle() lipgloss.Style {
	return s.renderer.NewStyle().
		Foreground(s.color(s.flavor.Red())).
		Bold(true)
}

// Table returns a bordered table with a styled header row.
func (s *Styles) Table(headers ...string) *table.Table {
	header := s.TitleStyle().Padding(0, 1)
	cell := s.renderer.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.renderer.NewStyle().Foreground(s.color(s.flavor.Surface1()))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
}
