package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PrettyLogger prints the human-facing output of a command. Colors follow
// the writer's own color profile, so piped output stays plain.
type PrettyLogger struct {
	w      io.Writer
	styles prettyStyles
}

type prettyStyles struct {
	success lipgloss.Style
	info    lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	key     lipgloss.Style
	value   lipgloss.Style
	path    lipgloss.Style
}

func newPrettyStyles(r *lipgloss.Renderer) prettyStyles {
	return prettyStyles{
		success: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		info:    r.NewStyle().Foreground(lipgloss.Color("12")),
		warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		failure: r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		key:     r.NewStyle().Foreground(lipgloss.Color("8")),
		value:   r.NewStyle().Foreground(lipgloss.Color("14")).Bold(true),
		path:    r.NewStyle().Foreground(lipgloss.Color("6")).Italic(true),
	}
}

// NewPrettyLogger returns a PrettyLogger writing to stdout.
func NewPrettyLogger() *PrettyLogger {
	return newPrettyLogger(os.Stdout)
}

// WithWriter returns a PrettyLogger writing to w.
func (p *PrettyLogger) WithWriter(w io.Writer) *PrettyLogger {
	return newPrettyLogger(w)
}

func newPrettyLogger(w io.Writer) *PrettyLogger {
	return &PrettyLogger{w: w, styles: newPrettyStyles(lipgloss.NewRenderer(w))}
}

func (p *PrettyLogger) mark(style lipgloss.Style, symbol, message string) {
	if symbol == "" {
		fmt.Fprintln(p.w, style.Render(message))
		return
	}
	fmt.Fprintln(p.w, style.Render(symbol), style.Render(message))
}

func (p *PrettyLogger) Success(message string) { p.mark(p.styles.success, "✓", message) }

func (p *PrettyLogger) InfoPretty(message string) { p.mark(p.styles.info, "", message) }

func (p *PrettyLogger) WarnPretty(message string) { p.mark(p.styles.warning, "⚠", message) }

// ErrorPretty prints message followed by the cause, when there is one.
func (p *PrettyLogger) ErrorPretty(message string, err error) {
	if err != nil {
		message += ": " + err.Error()
	}
	p.mark(p.styles.failure, "✗", message)
}

// Field prints a labelled value.
func (p *PrettyLogger) Field(key string, value interface{}) {
	fmt.Fprintf(p.w, "%s: %s\n", p.styles.key.Render(key), p.styles.value.Render(fmt.Sprint(value)))
}

// Path prints a labelled file path.
func (p *PrettyLogger) Path(label, path string) {
	fmt.Fprintf(p.w, "%s: %s\n", p.styles.key.Render(label), p.styles.path.Render(path))
}

// List prints items indented under the previous line.
func (p *PrettyLogger) List(items []string) {
	for _, item := range items {
		fmt.Fprintf(p.w, "  %s\n", p.styles.path.Render(item))
	}
}

func (p *PrettyLogger) Divider() {
	fmt.Fprintln(p.w, p.styles.key.Render(strings.Repeat("─", 60)))
}
