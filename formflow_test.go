package formflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/goliatone/go-formflow/pkg/autosave"
	"github.com/goliatone/go-formflow/pkg/loader"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/storage/memory"
	"github.com/goliatone/go-formflow/pkg/testsupport"
	"github.com/goliatone/go-formflow/pkg/versioning"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return New(append([]Option{WithClock(testsupport.FixedClock(t0))}, opts...)...)
}

func publish(t *testing.T, e *Engine, tpl model.FormTemplate) model.TemplateVersion {
	t.Helper()
	v, err := e.Publish(context.Background(), tpl, nil, "tester")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return v
}

func TestStartUpdateCloseResume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t)
	publish(t, e, testsupport.EmploymentTemplate())

	sess, err := e.Start(ctx, "employment-intake")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.UpdateField("full_name", model.String("Ada Lovelace"), model.FloatPtr(0.93)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := sess.UpdateField("employment_status", model.String("employed"), nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sess.Snapshot().AutoSave.SaveCount != 1 {
		t.Fatalf("expected the final save to be reflected on the session, got %+v", sess.Snapshot().AutoSave)
	}

	resumed, err := e.Resume(ctx, "employment-intake", sess.ID())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	defer func() { _ = resumed.Close(ctx) }()
	if diff := testsupport.SnapshotDiff(sess.Snapshot(), resumed.Snapshot()); diff != "" {
		t.Fatalf("resumed snapshot mismatch (-want +got):\n%s", diff)
	}
	if got := resumed.Evaluate(); !got.IsVisible("employer_name") || !got.IsRequired("employer_name") {
		t.Fatalf("expected employer_name to be visible and required after resume: %+v", got)
	}
}

func TestResumeMigratesToActiveVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t)
	publish(t, e, testsupport.EmploymentTemplate())

	sess, err := e.Start(ctx, "employment-intake")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = sess.UpdateField("full_name", model.String("Ada"), nil)
	_ = sess.UpdateField("email", model.String("ada@example.com"), model.FloatPtr(0.5))
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	revised := testsupport.EmploymentTemplate()
	revised.Sections[0].Fields = revised.Sections[0].Fields[:1]
	revised.Sections[0].Fields = append(revised.Sections[0].Fields, model.Field{ID: "age", Type: model.FieldTypeNumber, Label: "Age"})
	v2 := publish(t, e, revised)
	if v2.Version != "1.0.1" {
		t.Fatalf("expected patch bump, got %s", v2.Version)
	}
	if diff := cmp.Diff([]string{`Removed field "email"`, `Modified field "age"`}, v2.Changelog); diff != "" {
		t.Fatalf("changelog mismatch (-want +got):\n%s", diff)
	}

	resumed, err := e.Resume(ctx, "employment-intake", sess.ID())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	snap := resumed.Snapshot()
	if snap.TemplateVersion != "1.0.1" {
		t.Fatalf("expected migrated version 1.0.1, got %s", snap.TemplateVersion)
	}
	if _, ok := snap.Values["email"]; ok {
		t.Fatalf("removed field value must be dropped")
	}
	if _, ok := snap.Confidences["email"]; ok {
		t.Fatalf("removed field confidence must be dropped")
	}
	if !snap.Value("full_name").Equal(model.String("Ada")) {
		t.Fatalf("kept field lost its value: %v", snap.Value("full_name"))
	}
	if err := resumed.Close(ctx); err != nil {
		t.Fatalf("close resumed: %v", err)
	}

	again, err := e.Resume(ctx, "employment-intake", sess.ID())
	if err != nil {
		t.Fatalf("second resume: %v", err)
	}
	defer func() { _ = again.Close(ctx) }()
	if again.Snapshot().TemplateVersion != "1.0.1" {
		t.Fatalf("migrated snapshot should have been persisted")
	}
}

func TestReconcileLocalNewerWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t)
	publish(t, e, testsupport.EmploymentTemplate())

	sess, err := e.Start(ctx, "employment-intake")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = sess.UpdateField("full_name", model.String("Ada"), nil)
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	local := sess.Snapshot()
	local.Values["full_name"] = model.String("Grace")
	local.LastSavedAt = t0.Add(time.Minute)

	resumed, res, err := e.Reconcile(ctx, local)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	defer func() { _ = resumed.Close(ctx) }()
	if res.Winner != autosave.WinnerLocal {
		t.Fatalf("winner = %s, want local", res.Winner)
	}
	if diff := cmp.Diff([]string{"full_name"}, res.Conflicts); diff != "" {
		t.Fatalf("conflicts mismatch (-want +got):\n%s", diff)
	}
	snap := resumed.Snapshot()
	if !snap.Value("full_name").Equal(model.String("Grace")) {
		t.Fatalf("expected local value to win, got %v", snap.Value("full_name"))
	}
	if diff := cmp.Diff([]string{"full_name"}, snap.AutoSave.Conflicts); diff != "" {
		t.Fatalf("recorded conflicts mismatch (-want +got):\n%s", diff)
	}

	if _, _, err := e.Reconcile(ctx, model.FormData{TemplateID: "employment-intake"}); err == nil {
		t.Fatalf("expected error for snapshot without session id")
	}
}

func TestEngineErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t)

	if _, err := e.Start(ctx, "missing"); !errors.Is(err, versioning.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}

	publish(t, e, testsupport.EmploymentTemplate())
	if _, err := e.Resume(ctx, "employment-intake", "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	broken := testsupport.EmploymentTemplate()
	broken.Sections[0].Fields[1].ID = "full_name"
	_, err := e.Publish(ctx, broken, nil, "tester")
	var lerr *loader.Error
	if !errors.As(err, &lerr) || !strings.Contains(err.Error(), "duplicate field id") {
		t.Fatalf("expected loader error for duplicate ids, got %v", err)
	}
}

func TestEnginesShareHistoryThroughStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	writer := newEngine(t, WithStore(store))
	publish(t, writer, testsupport.EmploymentTemplate())

	reader := newEngine(t, WithStore(store))
	sess, err := reader.Start(ctx, "employment-intake")
	if err != nil {
		t.Fatalf("start on second engine: %v", err)
	}
	defer func() { _ = sess.Close(ctx) }()
	if sess.Template().Version != "1.0.0" {
		t.Fatalf("unexpected version %s", sess.Template().Version)
	}

	v, err := reader.Publish(ctx, testsupport.EmploymentTemplate(), []string{"republished"}, "reader")
	if err != nil {
		t.Fatalf("publish on second engine: %v", err)
	}
	if v.Version != "1.0.1" {
		t.Fatalf("expected history to continue at 1.0.1, got %s", v.Version)
	}
}

func TestExampleTemplatesPublish(t *testing.T) {
	t.Parallel()

	templates, err := LoadExampleTemplates()
	if err != nil {
		t.Fatalf("load examples: %v", err)
	}
	var ids []string
	e := newEngine(t)
	for _, tpl := range templates {
		ids = append(ids, tpl.ID)
		publish(t, e, tpl)
	}
	if diff := cmp.Diff([]string{"customer-feedback", "employment-intake"}, ids); diff != "" {
		t.Fatalf("example ids mismatch (-want +got):\n%s", diff)
	}

	ctx := context.Background()
	sess, err := e.Start(ctx, "customer-feedback")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = sess.Close(ctx) }()
	if !sess.Evaluate().IsSectionHidden("follow_up") {
		t.Fatalf("follow-up section should start hidden while rating is empty")
	}
	_ = sess.UpdateField("rating", model.String("2"), model.FloatPtr(0.88))
	if sess.Evaluate().IsSectionHidden("follow_up") {
		t.Fatalf("a low rating should reveal the follow-up section")
	}
}

func TestBundledEmploymentTemplateMatchesFixture(t *testing.T) {
	t.Parallel()

	got := testsupport.MustLoadTemplate(t, "templates/employment-intake.json")
	if diff := cmp.Diff(testsupport.EmploymentTemplate(), got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("bundled template drifted from the fixture (-want +got):\n%s", diff)
	}
}
