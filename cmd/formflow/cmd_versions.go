package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow/pkg/loader"
	"github.com/goliatone/go-formflow/pkg/versioning"
)

func newVersionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Manage template version history",
	}
	cmd.AddCommand(
		newVersionsAddCmd(a),
		newVersionsListCmd(a),
		newVersionsDiffCmd(a),
		newVersionsRollbackCmd(a),
		newVersionsExportCmd(a),
		newVersionsImportCmd(a),
	)
	return cmd
}

func newVersionsAddCmd(a *app) *cobra.Command {
	var (
		author    string
		changelog []string
	)
	cmd := &cobra.Command{
		Use:   "add <template-file>",
		Short: "Publish a template file as the next active version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}
			engine, err := a.engineFor(cmd.Context())
			if err != nil {
				return err
			}
			v, err := engine.Publish(cmd.Context(), tpl, changelog, author)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s@%s is now active\n", tpl.ID, v.Version)
			for _, line := range v.Changelog {
				fmt.Fprintf(out, "  - %s\n", line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", os.Getenv("USER"), "author recorded on the version")
	cmd.Flags().StringArrayVar(&changelog, "changelog", nil, "changelog line (repeatable); generated from the diff when omitted")
	return cmd
}

func newVersionsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <template-id>",
		Short: "List every version of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			history := engine.Versions().History(args[0])
			if len(history) == 0 {
				return fmt.Errorf("versions: %s: %w", args[0], versioning.ErrTemplateNotFound)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tACTIVE\tCREATED\tAUTHOR\tCHANGELOG")
			for _, v := range history {
				active := ""
				if v.IsActive {
					active = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					v.Version, active, v.CreatedAt.Format("2006-01-02 15:04"), v.CreatedBy, strings.Join(v.Changelog, "; "))
			}
			return w.Flush()
		},
	}
}

func newVersionsDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <template-id> <from> <to>",
		Short: "Show field changes between two versions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			diff, err := engine.Versions().Compare(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !diff.HasChanges() {
				fmt.Fprintln(out, "no field changes")
				return nil
			}
			for _, line := range diff.Changelog() {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newVersionsRollbackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <template-id> <version>",
		Short: "Make an earlier version the active one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !engine.Versions().Rollback(cmd.Context(), args[0], args[1]) {
				return fmt.Errorf("versions: %s@%s: %w", args[0], args[1], versioning.ErrVersionNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s@%s is now active\n", args[0], args[1])
			return nil
		},
	}
}

func newVersionsExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <template-id>",
		Short: "Write a template's full history as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			raw, err := engine.Versions().Export(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return err
			}
			return os.WriteFile(output, raw, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newVersionsImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <export-file>",
		Short: "Replace a template's history with an exported one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			engine, err := a.engineFor(cmd.Context())
			if err != nil {
				return err
			}
			if err := engine.Versions().Import(raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", args[0])
			return nil
		},
	}
}
