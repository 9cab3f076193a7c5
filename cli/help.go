package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	sectionStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("208"))
	commandStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	flagStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const maxWidth = 80
const minWidth = 40

// TerminalWidth returns the width of stdout capped at maxWidth, or
// maxWidth when stdout is not a terminal.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < minWidth {
		return maxWidth
	}
	if width > maxWidth {
		return maxWidth
	}
	return width
}

// wrapText wraps text to the specified width, preserving existing line breaks.
func wrapText(text string, width int) string {
	if width <= 0 {
		width = maxWidth
	}

	var result []string
	for _, paragraph := range strings.Split(text, "\n") {
		if len(paragraph) <= width {
			result = append(result, paragraph)
			continue
		}

		var line string
		for _, word := range strings.Fields(paragraph) {
			if line == "" {
				line = word
			} else if len(line)+1+len(word) <= width {
				line += " " + word
			} else {
				result = append(result, line)
				line = word
			}
		}
		if line != "" {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}

// SetStyledHelp applies the rulesync help layout to cmd and, through
// cobra's inheritance, to its subcommands.
func SetStyledHelp(cmd *cobra.Command) {
	cmd.SetHelpFunc(styledHelpFunc)
}

func styledHelpFunc(cmd *cobra.Command, args []string) {
	renderHelp(cmd.OutOrStdout(), cmd, TerminalWidth()-2)
}

func renderHelp(w io.Writer, cmd *cobra.Command, width int) {
	fmt.Fprintln(w, " "+titleStyle.Render(strings.ToUpper(cmd.CommandPath())))
	if len(cmd.Aliases) > 0 {
		fmt.Fprintln(w, " "+mutedStyle.Render("aliases: "+strings.Join(cmd.Aliases, ", ")))
	}

	if cmd.Short != "" {
		for _, line := range strings.Split(wrapText(cmd.Short, width), "\n") {
			fmt.Fprintln(w, " "+line)
		}
	}
	if cmd.Long != "" && cmd.Long != cmd.Short {
		fmt.Fprintln(w)
		for _, line := range strings.Split(wrapText(cmd.Long, width), "\n") {
			fmt.Fprintln(w, " "+line)
		}
	}

	if cmd.Runnable() || cmd.HasSubCommands() {
		fmt.Fprintln(w, "\n "+sectionStyle.Render("USAGE"))
		if cmd.Runnable() {
			fmt.Fprintf(w, " %s\n", cmd.UseLine())
		}
		if cmd.HasSubCommands() {
			fmt.Fprintf(w, " %s [command]\n", cmd.CommandPath())
		}
	}

	if cmd.HasAvailableSubCommands() {
		maxLen := 0
		for _, sub := range cmd.Commands() {
			if sub.IsAvailableCommand() && len(sub.Name()) > maxLen {
				maxLen = len(sub.Name())
			}
		}

		fmt.Fprintln(w, "\n "+sectionStyle.Render("COMMANDS"))
		for _, sub := range cmd.Commands() {
			if sub.IsAvailableCommand() {
				padding := strings.Repeat(" ", maxLen-len(sub.Name()))
				fmt.Fprintf(w, " %s%s  %s\n", commandStyle.Render(sub.Name()), padding, sub.Short)
			}
		}
	}

	if cmd.HasParent() {
		renderFlags(w, "FLAGS", cmd.LocalNonPersistentFlags())
		renderFlags(w, "GLOBAL FLAGS", cmd.InheritedFlags())
	} else {
		renderFlags(w, "FLAGS", cmd.LocalFlags())
		renderEnvironment(w)
	}

	if cmd.Example != "" {
		fmt.Fprintln(w, "\n "+sectionStyle.Render("EXAMPLES"))
		for _, line := range strings.Split(cmd.Example, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "#") {
				fmt.Fprintln(w, "  "+mutedStyle.Render(trimmed))
			} else {
				fmt.Fprintln(w, "  "+trimmed)
			}
		}
	}

	if cmd.HasSubCommands() {
		fmt.Fprintf(w, "\n Use \"%s [command] --help\" for more information.\n", cmd.CommandPath())
	}
}

// environment lists the variables every rulesync command reads.
var environment = [][2]string{
	{"RULESYNC_LOG_LEVEL", "Log level: debug, info, warn or error"},
	{"RULESYNC_LOG_CALLER", "Set to true to log the calling function"},
	{"RULESYNC_DEBUG", "Set to 1 to show logs on an interactive terminal"},
	{"EDITOR", "Editor opened by rulesync edit"},
}

func renderEnvironment(w io.Writer) {
	fmt.Fprintln(w, "\n "+sectionStyle.Render("ENVIRONMENT"))
	maxLen := 0
	for _, e := range environment {
		maxLen = max(maxLen, len(e[0]))
	}
	for _, e := range environment {
		fmt.Fprintf(w, " %s%s  %s\n", flagStyle.Render(e[0]), strings.Repeat(" ", maxLen-len(e[0])), e[1])
	}
}

func renderFlags(w io.Writer, title string, flags *pflag.FlagSet) {
	var visible []*pflag.Flag
	flags.VisitAll(func(f *pflag.Flag) {
		if !f.Hidden && f.Name != "help" {
			visible = append(visible, f)
		}
	})
	if len(visible) == 0 {
		return
	}

	fmt.Fprintln(w, "\n "+sectionStyle.Render(title))
	maxLen := 0
	for _, f := range visible {
		maxLen = max(maxLen, len(formatFlagName(f)))
	}
	for _, f := range visible {
		name := formatFlagName(f)
		usage := f.Usage
		switch f.DefValue {
		case "", "false", "[]", "0":
		default:
			usage += mutedStyle.Render(fmt.Sprintf(" (default: %s)", f.DefValue))
		}
		fmt.Fprintf(w, " %s%s  %s\n", flagStyle.Render(name), strings.Repeat(" ", maxLen-len(name)), usage)
	}
}

// formatFlagName returns "-f, --flag" or an aligned "    --flag".
func formatFlagName(f *pflag.Flag) string {
	if f.Shorthand != "" {
		return fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	}
	return "    --" + f.Name
}
