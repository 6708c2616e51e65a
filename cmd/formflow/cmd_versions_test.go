package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeRevision stores a copy of the employment template without the email
// field.
func writeRevision(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(employmentFile)
	if err != nil {
		t.Fatal(err)
	}
	revised := strings.Replace(string(data),
		`        {"id": "email", "type": "email", "label": "Email"},`+"\n", "", 1)
	if revised == string(data) {
		t.Fatalf("fixture layout changed; could not drop the email field")
	}
	path := filepath.Join(t.TempDir(), "employment-v2.json")
	if err := os.WriteFile(path, []byte(revised), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionsLifecycle(t *testing.T) {
	t.Parallel()

	a := testApp(t, nil)

	out, err := run(t, a, "versions", "add", employmentFile, "--author", "ana")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "employment-intake@1.0.0 is now active") || !strings.Contains(out, "Initial version") {
		t.Fatalf("unexpected add output:\n%s", out)
	}

	out, err = run(t, a, "versions", "add", writeRevision(t), "--author", "ben")
	if err != nil {
		t.Fatalf("add revision: %v", err)
	}
	if !strings.Contains(out, "employment-intake@1.0.1 is now active") || !strings.Contains(out, `Removed field "email"`) {
		t.Fatalf("unexpected add output:\n%s", out)
	}

	out, err = run(t, a, "versions", "list", "employment-intake")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus two versions, got:\n%s", out)
	}
	if !strings.HasPrefix(lines[2], "1.0.1") || !strings.Contains(lines[2], "*") || strings.Contains(lines[1], "*") {
		t.Fatalf("1.0.1 should be the only active version:\n%s", out)
	}

	out, err = run(t, a, "versions", "diff", "employment-intake", "1.0.0", "1.0.1")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if strings.TrimSpace(out) != `Removed field "email"` {
		t.Fatalf("diff output = %q", out)
	}

	if _, err := run(t, a, "versions", "rollback", "employment-intake", "1.0.0"); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	out, err = run(t, a, "versions", "list", "employment-intake")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines = strings.Split(strings.TrimSpace(out), "\n")
	if !strings.Contains(lines[1], "*") || strings.Contains(lines[2], "*") {
		t.Fatalf("rollback should persist across invocations:\n%s", out)
	}

	if _, err := run(t, a, "versions", "rollback", "employment-intake", "9.9.9"); err == nil {
		t.Fatalf("expected an error for an unknown version")
	}
}

func TestVersionsExportImport(t *testing.T) {
	t.Parallel()

	src := testApp(t, nil)
	if _, err := run(t, src, "versions", "add", employmentFile); err != nil {
		t.Fatalf("add: %v", err)
	}
	exported := filepath.Join(t.TempDir(), "history.json")
	if _, err := run(t, src, "versions", "export", "employment-intake", "-o", exported); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := testApp(t, nil)
	if _, err := run(t, dst, "versions", "list", "employment-intake"); err == nil {
		t.Fatalf("a fresh store should have no history")
	}
	out, err := run(t, dst, "versions", "import", exported)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported") {
		t.Fatalf("unexpected import output: %q", out)
	}
	out, err = run(t, dst, "versions", "list", "employment-intake")
	if err != nil {
		t.Fatalf("list after import: %v", err)
	}
	if !strings.Contains(out, "1.0.0") {
		t.Fatalf("imported history missing:\n%s", out)
	}
}
