package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/testsupport"
)

func TestLoadFileJSONAndYAMLAgree(t *testing.T) {
	t.Parallel()

	want := testsupport.EmploymentTemplate()
	for _, name := range []string{"employment.json", "employment.yaml"} {
		got, err := LoadFile(filepath.Join("testdata", name))
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("%s: template mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestParseRejectsEmptyAndMalformed(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("   \n"), "blank.json"); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
	if _, err := Parse([]byte(`{"id": "x", "sections": [`), "broken.json"); err == nil {
		t.Fatalf("expected parse error for truncated JSON")
	}
}

func TestCheckReportsEveryProblem(t *testing.T) {
	t.Parallel()

	doc := `
id: broken
version: not-a-version
sections:
  - id: one
    fields:
      - id: a
        type: text
        validation:
          minLength: 10
          maxLength: 2
          pattern: "("
      - id: a
        type: colour
      - id: pick
        type: select
      - id: range
        type: number
        validation:
          min: 5
          max: 1
        showIf:
          - {field: ghost, operator: resembles, value: x}
  - id: one
    fields: []
`
	_, err := Parse([]byte(doc), "broken.yaml")
	var lerr *Error
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if lerr.Source != "broken.yaml" {
		t.Fatalf("source = %q", lerr.Source)
	}

	wantFragments := []string{
		`version "not-a-version" is not a semantic version`,
		`duplicate section id "one"`,
		`duplicate field id "a"`,
		`field "a": unknown type "colour"`,
		`field "pick": select fields need options`,
		`field "a": invalid pattern`,
		`field "a": minLength exceeds maxLength`,
		`field "range": min exceeds max`,
		`unknown operator "resembles"`,
		`condition references unknown field "ghost"`,
	}
	joined := strings.Join(lerr.Problems, "\n")
	for _, fragment := range wantFragments {
		if !strings.Contains(joined, fragment) {
			t.Errorf("missing problem %q in:\n%s", fragment, joined)
		}
	}
}

func TestCheckRequiredStructFields(t *testing.T) {
	t.Parallel()

	tpl := model.FormTemplate{
		Sections: []model.Section{{
			ID:     "s",
			Fields: []model.Field{{ID: "f"}},
		}},
	}
	err := New().Check(tpl, "inline")
	var lerr *Error
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	joined := strings.Join(lerr.Problems, "\n")
	for _, fragment := range []string{"id is required", "sections[0].fields[0].type is required"} {
		if !strings.Contains(joined, fragment) {
			t.Errorf("missing %q in:\n%s", fragment, joined)
		}
	}
}

func TestCheckAcceptsFixture(t *testing.T) {
	t.Parallel()

	if err := New().Check(testsupport.EmploymentTemplate(), "fixture"); err != nil {
		t.Fatalf("fixture should be valid: %v", err)
	}
}

func TestLoadFS(t *testing.T) {
	t.Parallel()

	jsonDoc, err := os.ReadFile(filepath.Join("testdata", "employment.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	fsys := fstest.MapFS{
		"forms/employment.json": {Data: jsonDoc},
		"forms/feedback.yml": {Data: []byte(`
id: feedback
version: 2.0.0
title: Feedback
sections:
  - id: main
    fields:
      - {id: comment, type: textarea, label: Comment}
`)},
		"forms/README.md": {Data: []byte("ignored")},
	}

	templates, err := LoadFS(fsys)
	if err != nil {
		t.Fatalf("load fs: %v", err)
	}
	var ids []string
	for _, tpl := range templates {
		ids = append(ids, tpl.ID)
	}
	if diff := cmp.Diff([]string{"employment-intake", "feedback"}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	fsys["forms/copy.json"] = &fstest.MapFile{Data: jsonDoc}
	if _, err := LoadFS(fsys); err == nil || !strings.Contains(err.Error(), "duplicate template") {
		t.Fatalf("expected duplicate template error, got %v", err)
	}
}

func TestIsTemplateFile(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"a.json":     true,
		"b.YAML":     true,
		"c.yml":      true,
		"d.txt":      false,
		"no-ext":     false,
		"dir/e.json": true,
	}
	for path, want := range cases {
		if got := IsTemplateFile(path); got != want {
			t.Errorf("IsTemplateFile(%q) = %v, want %v", path, got, want)
		}
	}
}
