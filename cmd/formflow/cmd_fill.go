package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow/internal/prompt"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/session"
)

func newFillCmd(a *app) *cobra.Command {
	var (
		resumeID string
		submit   bool
	)
	cmd := &cobra.Command{
		Use:   "fill <template-id>",
		Short: "Fill the active version of a template interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := a.engineFor(ctx)
			if err != nil {
				return err
			}

			var sess *session.Session
			if resumeID != "" {
				sess, err = engine.Resume(ctx, args[0], resumeID)
			} else {
				sess, err = engine.Start(ctx, args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s (%s@%s)\n", sess.ID(), args[0], sess.Template().Version)

			if err := prompt.Fill(ctx, sess, a.newDriver(cmd)); err != nil {
				closeErr := sess.Close(ctx)
				if errors.Is(err, prompt.ErrAborted) {
					fmt.Fprintf(out, "Aborted; progress saved. Resume with --resume %s\n", sess.ID())
					return closeErr
				}
				return errors.Join(err, closeErr)
			}

			if !submit {
				if err := sess.Close(ctx); err != nil {
					return err
				}
				fmt.Fprintf(out, "Saved at %.0f%% complete. Resume with --resume %s\n", sess.Progress(), sess.ID())
				return nil
			}

			result, err := sess.Submit(ctx)
			printResult(cmd, result)
			closeErr := sess.Close(ctx)
			if err != nil {
				return errors.Join(err, closeErr)
			}
			fmt.Fprintln(out, "Submitted.")
			return closeErr
		},
	}
	cmd.Flags().StringVar(&resumeID, "resume", "", "resume a stored session instead of starting a new one")
	cmd.Flags().BoolVar(&submit, "submit", false, "validate and submit when all fields have been asked")
	return cmd
}

func printResult(cmd *cobra.Command, result model.ValidationResult) {
	out := cmd.OutOrStdout()
	for _, section := range []struct {
		title string
		items map[string][]string
	}{
		{"Errors", result.Errors},
		{"Warnings", result.Warnings},
	} {
		if len(section.items) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s:\n", section.title)
		ids := make([]string, 0, len(section.items))
		for id := range section.items {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			for _, msg := range section.items[id] {
				fmt.Fprintf(out, "  %s: %s\n", id, msg)
			}
		}
	}
}
