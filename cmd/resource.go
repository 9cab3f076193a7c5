package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/grovetools/rulesync/cli"
	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/resource"
)

// NewResourceCmd returns the resource command group.
func NewResourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resource",
		Aliases: []string{"res"},
		Short:   "Read and write rules, variables, import sources and settings",
	}

	cmd.AddCommand(newResourceGetCmd())
	cmd.AddCommand(newResourceListCmd())
	cmd.AddCommand(newResourceApplyCmd())
	cmd.AddCommand(newResourceDeleteCmd())
	return cmd
}

// parseKindArg accepts a kind in any letter case.
func parseKindArg(s string) (models.Kind, error) {
	for _, k := range models.Kinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown resource kind %q", s)).
		WithDetail("kinds", models.Kinds)
}

func newResourceGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KIND NAME",
		Short: "Print a resource document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindArg(args[0])
			if err != nil {
				return err
			}
			e, err := openEngine(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.Collections.Resource(models.Ref{Kind: kind, Name: args[1]}).Get(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, res)
			}
			fmt.Fprint(cmd.OutOrStdout(), res.YAML)
			return nil
		},
	}
}

func newResourceListCmd() *cobra.Command {
	var kindFlag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind models.Kind
			if kindFlag != "" {
				k, err := parseKindArg(kindFlag)
				if err != nil {
					return err
				}
				kind = k
			}

			e, err := openEngine(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			all, err := e.Collections.Resources.Get(cmd.Context())
			if err != nil {
				return err
			}
			list := make([]models.ResourceInfo, 0, len(all))
			for _, info := range all {
				if kind == "" || info.Kind == kind {
					list = append(list, info)
				}
			}

			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, list)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tNAME\tPATH")
			for _, info := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Kind, info.Name, info.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "", "Only list resources of this kind")
	return cmd
}

func newResourceApplyCmd() *cobra.Command {
	var file, path string
	cmd := &cobra.Command{
		Use:   "apply -f FILE",
		Short: "Create or update a resource from a YAML document",
		Example: `# Create or update from a file
rulesync resource apply -f invoices.yaml

# Read the document from stdin
cat invoices.yaml | rulesync resource apply -f -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDocument(cmd, file)
			if err != nil {
				return err
			}
			doc, err := resource.Parse(text)
			if err != nil {
				return err
			}

			e, err := openEngine(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			var res *models.Resource
			_, err = e.Collections.Resource(doc.Ref()).Get(ctx)
			switch {
			case errors.Is(err, errors.ErrCodeNotFound):
				res, err = e.Mutations.CreateResource(ctx, doc.Kind, text, path)
			case err == nil:
				res, err = e.Mutations.UpdateResource(ctx, doc.Kind, doc.Name, text)
			}
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, res)
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).
				Success(fmt.Sprintf("%s applied (%s)", res.Ref(), res.Path))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Resource document to apply, - for stdin")
	cmd.Flags().StringVar(&path, "path", "", "File path for a new resource (default: <kind dir>/<name>.yaml)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readDocument(cmd *cobra.Command, file string) (string, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read resource document").
			WithDetail("file", file)
	}
	return string(data), nil
}

func newResourceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete KIND NAME",
		Short: "Delete a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindArg(args[0])
			if err != nil {
				return err
			}
			e, err := openEngine(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Mutations.DeleteResource(cmd.Context(), kind, args[1]); err != nil {
				return err
			}
			if !cli.GetOptions(cmd).JSONOutput {
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).
					Success(fmt.Sprintf("%s/%s deleted", kind, args[1]))
			}
			return nil
		},
	}
}
