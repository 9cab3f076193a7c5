package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/grovetools/rulesync/command"
	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/autosave"
	"github.com/grovetools/rulesync/pkg/engine"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/paths"
)

// NewEditCmd returns the edit command. It writes the resource to a draft
// file and autosaves the draft back to the backend while it changes.
func NewEditCmd() *cobra.Command {
	var noEditor bool
	cmd := &cobra.Command{
		Use:   "edit KIND NAME",
		Short: "Edit a resource with autosave",
		Long: `Edit a resource through a draft file.

The draft is saved back after it stops changing for the configured autosave
delay. With $EDITOR set the editor is opened on the draft and the command
exits when the editor does. Otherwise the draft path is printed and the
command runs until interrupted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindArg(args[0])
			if err != nil {
				return err
			}
			return runEdit(cmd, models.Ref{Kind: kind, Name: args[1]}, noEditor)
		},
	}
	cmd.Flags().BoolVar(&noEditor, "no-editor", false, "Do not launch $EDITOR, only watch the draft")
	return cmd
}

func runEdit(cmd *cobra.Command, ref models.Ref, noEditor bool) error {
	logger := logging.NewLogger("edit")
	pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	e, err := openEngine(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.Collections.Resource(ref).Get(ctx)
	if err != nil {
		return err
	}
	if res.IsRaw() {
		return errors.InvalidResource(fmt.Sprintf("%s is not a resource document", res.Path))
	}

	draft, err := writeDraft(ref, res.YAML)
	if err != nil {
		return err
	}
	defer os.Remove(draft)

	ctl := engine.NewAutosave[string](e, func(ctx context.Context, yaml string) error {
		_, err := e.Mutations.UpdateResource(ctx, ref.Kind, ref.Name, yaml)
		return err
	}, autosave.WithStatusHook[string](func(s autosave.State) {
		switch s.Status {
		case autosave.StatusSaved:
			pretty.Success(fmt.Sprintf("%s saved", ref))
		case autosave.StatusError:
			pretty.ErrorPretty(fmt.Sprintf("%s not saved", ref), s.Err)
		}
	}))
	defer ctl.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to watch draft")
	}
	defer watcher.Close()
	// Editors often replace the file on save, so the directory is watched.
	if err := watcher.Add(filepath.Dir(draft)); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to watch draft").WithDetail("path", draft)
	}

	original := res.YAML
	syncDraft := func() {
		data, err := os.ReadFile(draft)
		if err != nil {
			logger.WithError(err).Debug("Draft not readable")
			return
		}
		content := string(data)
		ctl.Update(content, content != original)
	}

	editorDone := make(chan error, 1)
	editor := os.Getenv("EDITOR")
	if editor != "" && !noEditor {
		go func() { editorDone <- runEditor(ctx, editor, draft) }()
	} else {
		pretty.InfoPretty(fmt.Sprintf("Editing %s in %s", ref, draft))
	}

	for {
		select {
		case <-ctx.Done():
			syncDraft()
			return ctl.Flush()
		case err := <-editorDone:
			syncDraft()
			if flushErr := ctl.Flush(); flushErr != nil {
				return flushErr
			}
			return err
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != draft {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				syncDraft()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Draft watcher error")
		}
	}
}

func writeDraft(ref models.Ref, content string) (string, error) {
	dir := filepath.Join(paths.CacheDir(), "drafts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to create draft directory").WithDetail("path", dir)
	}
	name := fmt.Sprintf("%s-%s.yaml", strings.ToLower(string(ref.Kind)), ref.Name)
	draft := filepath.Join(dir, name)
	if err := os.WriteFile(draft, []byte(content), 0o644); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to write draft").WithDetail("path", draft)
	}
	return draft, nil
}

// runEditor opens editor on path attached to the terminal. EDITOR may carry
// arguments, e.g. "code --wait".
func runEditor(ctx context.Context, editor, path string) error {
	fields := strings.Fields(editor)
	c, err := command.NewSafeBuilder().Build(ctx, fields[0], append(fields[1:], path)...)
	if err != nil {
		return err
	}
	c.WithTimeout(ctx, command.MaxTimeout)
	defer c.Release()

	ec := c.Exec()
	ec.Stdin = os.Stdin
	ec.Stdout = os.Stdout
	ec.Stderr = os.Stderr
	if err := ec.Run(); err != nil {
		return errors.CommandFailed(c.String(), err)
	}
	return nil
}
