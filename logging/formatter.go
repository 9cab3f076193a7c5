package logging

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

var (
	componentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	levelStyles    = map[logrus.Level]lipgloss.Style{
		logrus.DebugLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		logrus.WarnLevel:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		logrus.ErrorLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
)

// TextFormatter renders entries as a single human-readable line:
// time, [LEVEL], [component], caller, message and the sorted fields. An
// error field is always printed last.
type TextFormatter struct {
	Config FormatConfig
	// Color styles the level and component when the output is a terminal.
	Color bool
}

func levelLabel(l logrus.Level) string {
	if l == logrus.WarnLevel {
		return "WARN"
	}
	return strings.ToUpper(l.String())
}

func (f *TextFormatter) style(s lipgloss.Style, text string) string {
	if !f.Color {
		return text
	}
	return s.Render(text)
}

// Format implements logrus.Formatter.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	if !f.Config.DisableTimestamp {
		b.WriteString(entry.Time.Format(timestampFormat))
		b.WriteByte(' ')
	}

	label := "[" + levelLabel(entry.Level) + "]"
	if s, ok := levelStyles[entry.Level]; ok {
		label = f.style(s, label)
	}
	b.WriteString(label)

	if component, ok := entry.Data["component"]; ok && !f.Config.DisableComponent {
		fmt.Fprintf(&b, " [%s]", f.style(componentStyle, fmt.Sprint(component)))
	}

	if entry.HasCaller() {
		fmt.Fprintf(&b, " [%s:%d %s]",
			filepath.Base(entry.Caller.File), entry.Caller.Line, filepath.Base(entry.Caller.Function))
	}

	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		if key != "component" && key != logrus.ErrorKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if _, ok := entry.Data[logrus.ErrorKey]; ok {
		keys = append(keys, logrus.ErrorKey)
	}
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, fieldValue(entry.Data[key]))
	}

	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// fieldValue quotes values that would otherwise be ambiguous on one line.
func fieldValue(v interface{}) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
