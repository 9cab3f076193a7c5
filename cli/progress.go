package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/grovetools/rulesync/pkg/models"
)

const barWidth = 20

// ProgressRenderer prints git operation and job progress. On a terminal
// an operation's line is redrawn in place until it finishes.
type ProgressRenderer struct {
	out         io.Writer
	width       int
	interactive bool
	open        bool
}

// NewProgressRenderer creates a renderer for out.
func NewProgressRenderer(out io.Writer) *ProgressRenderer {
	interactive := false
	if f, ok := out.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd())
	}
	return &ProgressRenderer{out: out, width: TerminalWidth(), interactive: interactive}
}

// Operation prints ev.
func (p *ProgressRenderer) Operation(ev models.OperationProgressEvent) {
	line := OperationLine(ev)
	if !p.interactive {
		fmt.Fprintln(p.out, line)
		return
	}
	if len(line) > p.width {
		line = line[:p.width]
	}
	fmt.Fprintf(p.out, "\r\033[K%s", line)
	p.open = true
	if ev.Phase.IsTerminal() {
		fmt.Fprintln(p.out)
		p.open = false
	}
}

// Job prints the folded state of a job.
func (p *ProgressRenderer) Job(job models.StoredJob) {
	p.Done()
	fmt.Fprintln(p.out, JobLine(job))
}

// Done ends a line left open by an unfinished operation.
func (p *ProgressRenderer) Done() {
	if p.open {
		fmt.Fprintln(p.out)
		p.open = false
	}
}

// OperationLine renders one progress event.
func OperationLine(ev models.OperationProgressEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", ev.OperationType, ev.Phase)

	switch ev.Phase {
	case models.PhaseFailed:
		if ev.Error != "" {
			fmt.Fprintf(&b, ": %s", ev.Error)
		}
		return b.String()
	case models.PhaseCompleted:
		if ev.Message != "" {
			fmt.Fprintf(&b, ": %s", ev.Message)
		}
		return b.String()
	}

	if ev.Progress != nil {
		fmt.Fprintf(&b, " %s %3d%%", Bar(*ev.Progress, barWidth), *ev.Progress)
	}
	if ev.Current != nil && ev.Total != nil {
		fmt.Fprintf(&b, " (%d/%d)", *ev.Current, *ev.Total)
	}
	if ev.BytesTransferred != nil {
		fmt.Fprintf(&b, " %s", HumanBytes(*ev.BytesTransferred))
		if ev.TransferSpeed != "" {
			fmt.Fprintf(&b, " | %s", ev.TransferSpeed)
		}
	}
	if ev.Message != "" && ev.Progress == nil {
		fmt.Fprintf(&b, " %s", ev.Message)
	}
	return b.String()
}

// JobLine renders a job snapshot.
func JobLine(job models.StoredJob) string {
	name := job.Filename
	if name == "" {
		name = job.JobID
	}
	line := fmt.Sprintf("%-10s %s", job.Status, name)
	if job.CurrentPhase != "" && job.Status == models.JobProcessing {
		line += " [" + job.CurrentPhase + "]"
	}
	switch {
	case job.Error != "":
		line += ": " + job.Error
	case job.Message != "":
		line += ": " + job.Message
	}
	return line
}

// Bar draws a percent bar of the given width.
func Bar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// HumanBytes formats n with a binary unit.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
