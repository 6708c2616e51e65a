package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow/pkg/loader"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/versioning"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Publish template files as they change",
		Long: "Publishes templates in dir that have no history yet, then publishes a new version " +
			"every time a template file is written. Runs until interrupted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.TemplateDir
			if len(args) == 1 {
				dir = args[0]
			}
			ctx := cmd.Context()
			engine, err := a.engineFor(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			existing, err := loader.LoadFS(os.DirFS(dir))
			if err != nil {
				return err
			}
			for _, tpl := range existing {
				err := engine.Versions().Restore(ctx, tpl.ID)
				switch {
				case err == nil:
					continue
				case !errors.Is(err, versioning.ErrTemplateNotFound):
					return err
				}
				v, err := engine.Publish(ctx, tpl, nil, "watch")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "published %s@%s\n", tpl.ID, v.Version)
			}

			w, err := loader.NewWatcher(dir, func(tpl model.FormTemplate, path string) {
				v, err := engine.Publish(ctx, tpl, nil, "watch")
				if err != nil {
					a.logger.Error("watch: publish failed", "path", path, "error", err)
					return
				}
				fmt.Fprintf(out, "published %s@%s from %s\n", tpl.ID, v.Version, path)
				for _, line := range v.Changelog {
					fmt.Fprintf(out, "  - %s\n", line)
				}
			}, loader.WithWatchLogger(a.logger))
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()

			a.logger.Info("watch: watching templates", "dir", dir)
			<-ctx.Done()
			return nil
		},
	}
	return cmd
}
