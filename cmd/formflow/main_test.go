package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow/internal/config"
	"github.com/goliatone/go-formflow/internal/prompt"
)

const employmentFile = "../../templates/employment-intake.json"

// testApp returns an app backed by a sqlite file in a temp dir, so history
// survives between command invocations within one test.
func testApp(t *testing.T, driver prompt.Driver) *app {
	t.Helper()
	dir := t.TempDir()
	a := &app{
		loadConfig: func() (config.Config, error) {
			return config.LoadFrom(map[string]string{
				"FORMFLOW_STORAGE":      config.StorageSQLite,
				"FORMFLOW_SQLITE_PATH":  filepath.Join(dir, "formflow.db"),
				"FORMFLOW_TEMPLATE_DIR": dir,
				"FORMFLOW_LOG_LEVEL":    "error",
			})
		},
		newDriver: func(*cobra.Command) prompt.Driver { return driver },
	}
	t.Cleanup(func() { _ = a.teardown() })
	return a
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if tdErr := a.teardown(); tdErr != nil {
		t.Fatalf("teardown: %v", tdErr)
	}
	return out.String(), err
}

type lineDriver struct {
	inputs  []string
	selects []int
	infos   []string
}

func (d *lineDriver) Input(context.Context, prompt.InputConfig) (string, error) {
	if len(d.inputs) == 0 {
		return "", prompt.ErrAborted
	}
	v := d.inputs[0]
	d.inputs = d.inputs[1:]
	return v, nil
}

func (d *lineDriver) TextArea(ctx context.Context, cfg prompt.InputConfig) (string, error) {
	return d.Input(ctx, cfg)
}

func (d *lineDriver) Confirm(context.Context, string, bool) (bool, error) {
	return false, errors.New("unexpected confirm")
}

func (d *lineDriver) Select(context.Context, prompt.SelectConfig) (int, error) {
	if len(d.selects) == 0 {
		return -1, prompt.ErrAborted
	}
	v := d.selects[0]
	d.selects = d.selects[1:]
	return v, nil
}

func (d *lineDriver) MultiSelect(context.Context, prompt.SelectConfig) ([]int, error) {
	return nil, errors.New("unexpected multiselect")
}

func (d *lineDriver) Info(_ context.Context, msg string) error {
	d.infos = append(d.infos, msg)
	return nil
}
