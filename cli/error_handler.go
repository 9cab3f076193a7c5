package cli

import (
	"fmt"
	"io"

	"github.com/grovetools/rulesync/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to out.
func NewErrorHandler(verbose bool, out io.Writer) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     out,
	}
}

// Handle prints err with a hint for the codes users can act on, and
// returns it unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	fmt.Fprintf(h.Out, "❌ %s\n", errors.Message(err))

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintln(h.Out, "Create a rulesync.yml or pass --root.")
	case errors.ErrCodeNothingToCommit:
		fmt.Fprintln(h.Out, "The working tree has no changes to commit.")
	case errors.ErrCodeGitNotInstalled:
		fmt.Fprintln(h.Out, "Install git and make sure it is on your PATH.")
	case errors.ErrCodeStreamDisconnected:
		fmt.Fprintln(h.Out, "The daemon connection dropped. Check 'rulesync serve'.")
	case errors.ErrCodeMissingName:
		fmt.Fprintln(h.Out, "Set metadata.name in the resource document.")
	}

	// If verbose mode, show full error details
	if h.Verbose {
		if syncErr, ok := errors.As(err); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", syncErr.ToJSON())
		}
	}
	return err
}
