package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Decorator styles console-facing strings.
//
// The active implementation is chosen once at startup by [SelectDecorator]
// and injected into the [Sink]; components never branch on terminal
// capability themselves.
type Decorator interface {
	// Title styles a banner title.
	Title(string) string
	// OK styles a success marker.
	OK(string) string
	// Fail styles a failure marker.
	Fail(string) string
}

// PlainDecorator passes strings through unchanged. Used for non-TTY
// destinations and log files.
type PlainDecorator struct{}

func (PlainDecorator) Title(s string) string { return s }
func (PlainDecorator) OK(s string) string    { return s }
func (PlainDecorator) Fail(s string) string  { return s }

// StyledDecorator renders titles and markers with lipgloss styles.
type StyledDecorator struct {
	title lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
}

// NewStyledDecorator returns a lipgloss-backed decorator.
func NewStyledDecorator() StyledDecorator {
	return StyledDecorator{
		title: lipgloss.NewStyle().Bold(true),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		fail:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

func (d StyledDecorator) Title(s string) string { return d.title.Render(s) }
func (d StyledDecorator) OK(s string) string    { return d.ok.Render(s) }
func (d StyledDecorator) Fail(s string) string  { return d.fail.Render(s) }

// SelectDecorator picks the styled decorator when w is a terminal and the
// plain one otherwise.
func SelectDecorator(w io.Writer) Decorator {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return NewStyledDecorator()
	}
	return PlainDecorator{}
}
