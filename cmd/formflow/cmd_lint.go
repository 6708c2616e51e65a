package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formflow"
	"github.com/goliatone/go-formflow/pkg/loader"
	"github.com/goliatone/go-formflow/pkg/model"
)

var errLintFailed = errors.New("lint failed")

type lintTarget struct {
	fsys fs.FS
	name string
	path string
}

type lintResult struct {
	path string
	tpl  model.FormTemplate
	err  error
}

func newLintCmd(a *app) *cobra.Command {
	var examples bool
	cmd := &cobra.Command{
		Use:   "lint [path...]",
		Short: "Check template files for structural problems",
		Long: "Parses every .json, .yaml and .yml template under the given files or directories " +
			"(FORMFLOW_TEMPLATE_DIR when none are given) and reports structural problems.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var targets []lintTarget
			if examples {
				t, err := fsTargets(formflow.ExampleTemplates(), "examples")
				if err != nil {
					return err
				}
				targets = t
			} else {
				if len(args) == 0 {
					args = []string{a.cfg.TemplateDir}
				}
				t, err := pathTargets(args)
				if err != nil {
					return err
				}
				targets = t
			}
			if len(targets) == 0 {
				return fmt.Errorf("lint: no template files found")
			}

			results := make([]lintResult, len(targets))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(runtime.GOMAXPROCS(0))
			for i, target := range targets {
				i, target := i, target
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					data, err := fs.ReadFile(target.fsys, target.name)
					if err != nil {
						results[i] = lintResult{path: target.path, err: err}
						return nil
					}
					tpl, err := loader.Parse(data, target.path)
					results[i] = lintResult{path: target.path, tpl: tpl, err: err}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			seen := make(map[string]string)
			for _, res := range results {
				if res.err == nil {
					if prev, dup := seen[res.tpl.ID]; dup {
						res.err = fmt.Errorf("duplicate template id %q (also in %s)", res.tpl.ID, prev)
					} else {
						seen[res.tpl.ID] = res.path
					}
				}
				if res.err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s\n", res.path)
					var lerr *loader.Error
					if errors.As(res.err, &lerr) {
						for _, problem := range lerr.Problems {
							fmt.Fprintf(out, "  - %s\n", problem)
						}
					} else {
						fmt.Fprintf(out, "  - %v\n", res.err)
					}
					continue
				}
				fmt.Fprintf(out, "ok   %s (%s@%s, %d fields)\n", res.path, res.tpl.ID, res.tpl.Version, len(res.tpl.Fields()))
			}
			a.logger.Debug("lint finished", "files", len(results), "failed", failed)
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d templates", errLintFailed, failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&examples, "examples", false, "lint the bundled example templates")
	return cmd
}

func pathTargets(paths []string) ([]lintTarget, error) {
	var out []lintTarget
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("lint: %w", err)
		}
		if !info.IsDir() {
			dir, name := filepath.Split(filepath.Clean(p))
			if dir == "" {
				dir = "."
			}
			out = append(out, lintTarget{fsys: os.DirFS(dir), name: name, path: p})
			continue
		}
		targets, err := fsTargets(os.DirFS(p), p)
		if err != nil {
			return nil, err
		}
		out = append(out, targets...)
	}
	return out, nil
}

func fsTargets(fsys fs.FS, label string) ([]lintTarget, error) {
	var out []lintTarget
	err := fs.WalkDir(fsys, ".", func(name string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !loader.IsTemplateFile(name) {
			return nil
		}
		out = append(out, lintTarget{fsys: fsys, name: name, path: filepath.Join(label, filepath.FromSlash(name))})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lint: walk %s: %w", label, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}
