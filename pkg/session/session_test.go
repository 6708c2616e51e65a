package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/autosave"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/storage"
	"github.com/goliatone/go-formflow/pkg/storage/memory"
	"github.com/goliatone/go-formflow/pkg/testsupport"
)

var fixedNow = time.Date(2025, time.April, 10, 8, 30, 0, 0, time.UTC)

func newSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithClock(testsupport.FixedClock(fixedNow))}, opts...)
	s, err := New(testsupport.EmploymentTemplate(), opts...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func confidence(v float64) *float64 { return &v }

func TestNewSessionSeedsState(t *testing.T) {
	t.Parallel()

	tpl := testsupport.EmploymentTemplate()
	tpl.Sections[0].Fields[1].DefaultValue = model.ValuePtr(model.String("someone@example.com"))
	s, err := New(tpl, WithClock(testsupport.FixedClock(fixedNow)))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	snap := s.Snapshot()
	if snap.SessionID == "" || snap.TemplateID != "employment-intake" || snap.TemplateVersion != "1.0.0" {
		t.Fatalf("unexpected identity %+v", snap)
	}
	if !snap.StartedAt.Equal(fixedNow) {
		t.Fatalf("started at = %v", snap.StartedAt)
	}
	if diff := cmp.Diff([]string{"email"}, snap.CompletedFields); diff != "" {
		t.Fatalf("defaults should count as answers (-want +got):\n%s", diff)
	}

	other, _ := New(tpl)
	if other.ID() == s.ID() {
		t.Fatalf("expected unique session ids")
	}
	fixed, _ := New(tpl, WithSessionID("abc"))
	if fixed.ID() != "abc" {
		t.Fatalf("expected fixed session id, got %s", fixed.ID())
	}
	if _, err := New(model.FormTemplate{}); err == nil {
		t.Fatalf("expected template id to be required")
	}
}

func TestAgeRangeScenario(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	_ = s.UpdateField("full_name", model.String("Ada"), nil)

	if err := s.UpdateField("age", model.Number(16), nil); err != nil {
		t.Fatalf("update age: %v", err)
	}
	result := s.Validate()
	if len(result.Errors["age"]) == 0 {
		t.Fatalf("expected a range error for age 16, got %v", result.Errors)
	}

	if err := s.UpdateField("age", model.Number(21), nil); err != nil {
		t.Fatalf("update age: %v", err)
	}
	result = s.Validate()
	if _, ok := result.Errors["age"]; ok {
		t.Fatalf("expected no age error for 21, got %v", result.Errors["age"])
	}
	if diff := cmp.Diff(result, s.Validate()); diff != "" {
		t.Fatalf("validate must be idempotent (-first +second):\n%s", diff)
	}
}

func TestConfidenceLifecycle(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	if err := s.UpdateField("full_name", model.String("Ada"), confidence(0.55)); err != nil {
		t.Fatalf("voice update: %v", err)
	}
	if c, ok := s.Snapshot().Confidence("full_name"); !ok || c != 0.55 {
		t.Fatalf("expected confidence recorded, got %v %v", c, ok)
	}
	if len(s.Validate().Warnings["full_name"]) != 1 {
		t.Fatalf("expected low-confidence warning")
	}

	if err := s.UpdateField("full_name", model.String("Ada Lovelace"), nil); err != nil {
		t.Fatalf("manual update: %v", err)
	}
	if _, ok := s.Snapshot().Confidence("full_name"); ok {
		t.Fatalf("manual edit must remove the confidence entry")
	}
	if len(s.Validate().Warnings) != 0 {
		t.Fatalf("expected warnings cleared after manual edit")
	}

	for _, bad := range []float64{-0.1, 1.2} {
		if err := s.UpdateField("full_name", model.String("x"), confidence(bad)); !errors.Is(err, ErrInvalidConfidence) {
			t.Fatalf("expected ErrInvalidConfidence for %v, got %v", bad, err)
		}
	}
	if err := s.UpdateField("nope", model.String("x"), nil); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestProgressFollowsVisibility(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	// visible: full_name, email, age, employment_status
	_ = s.UpdateField("full_name", model.String("Ada"), nil)
	_ = s.UpdateField("employment_status", model.String("employed"), nil)
	// visible now adds employer_name and employer_phone: 2 of 6
	if got := s.Progress(); got < 33.33 || got > 33.34 {
		t.Fatalf("progress = %v, want ~33.33", got)
	}

	_ = s.UpdateField("employer_name", model.String("Analytical Engines"), nil)
	if diff := cmp.Diff([]string{"employer_name", "employment_status", "full_name"}, s.Snapshot().CompletedFields); diff != "" {
		t.Fatalf("completed mismatch (-want +got):\n%s", diff)
	}

	// hiding employer fields drops them from completed even though values remain
	_ = s.UpdateField("employment_status", model.String("student"), nil)
	snap := s.Snapshot()
	if snap.IsCompleted("employer_name") {
		t.Fatalf("hidden fields must not be completed")
	}
	if _, ok := snap.Values["employer_name"]; !ok {
		t.Fatalf("hiding a field must not erase its value")
	}
	if got := s.Progress(); got != 50 {
		t.Fatalf("progress = %v, want 50", got)
	}

	if err := s.ClearField("full_name"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := s.Progress(); got != 25 {
		t.Fatalf("progress after clear = %v, want 25", got)
	}
}

func TestCompletedSubsetOfVisibleUnderRandomUpdates(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	rng := rand.New(rand.NewSource(7))
	ids := []string{"full_name", "email", "age", "employment_status", "employer_name", "employer_phone"}
	choices := []model.Value{
		model.String(""), model.String("employed"), model.String("student"),
		model.Number(30), model.Null(), model.String("x"),
	}

	for i := 0; i < 200; i++ {
		id := ids[rng.Intn(len(ids))]
		if err := s.UpdateField(id, choices[rng.Intn(len(choices))], nil); err != nil {
			t.Fatalf("update %s: %v", id, err)
		}
		state := s.Evaluate()
		snap := s.Snapshot()
		for _, done := range snap.CompletedFields {
			if !state.IsVisible(done) {
				t.Fatalf("step %d: completed field %s is not visible", i, done)
			}
		}
		want := 0.0
		if len(state.VisibleFields) > 0 {
			want = float64(len(snap.CompletedFields)) / float64(len(state.VisibleFields)) * 100
		}
		if snap.Progress != want {
			t.Fatalf("step %d: progress = %v, want %v", i, snap.Progress, want)
		}
	}
}

func TestFreeTextIsSanitized(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	_ = s.UpdateField("full_name", model.String(`Ada <script>alert(1)</script><b>Lovelace</b> & co`), nil)
	got, _ := s.Snapshot().Value("full_name").AsString()
	if got != "Ada Lovelace & co" {
		t.Fatalf("sanitized = %q", got)
	}

	// non free-text fields are stored as given
	_ = s.UpdateField("employment_status", model.String("<i>employed</i>"), nil)
	raw, _ := s.Snapshot().Value("employment_status").AsString()
	if raw != "<i>employed</i>" {
		t.Fatalf("select value changed to %q", raw)
	}

	plain := newSession(t, WithSanitizer(nil))
	_ = plain.UpdateField("full_name", model.String("<b>Ada</b>"), nil)
	if v, _ := plain.Snapshot().Value("full_name").AsString(); v != "<b>Ada</b>" {
		t.Fatalf("expected sanitizer disabled, got %q", v)
	}
}

func TestValueAndConfidenceAreWrittenTogether(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				_ = s.UpdateField("full_name", model.String("voice"), confidence(0.5))
			} else {
				_ = s.UpdateField("full_name", model.String("manual"), nil)
			}
		}
	}()

	for i := 0; i < 500; i++ {
		snap := s.Snapshot()
		name, _ := snap.Value("full_name").AsString()
		_, hasConfidence := snap.Confidence("full_name")
		if name == "voice" && !hasConfidence {
			t.Errorf("observed voice value without its confidence")
			break
		}
		if name == "manual" && hasConfidence {
			t.Errorf("observed manual value with a stale confidence")
			break
		}
	}
	close(stop)
	wg.Wait()
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	store := memory.New()
	key := storage.SessionKey("employment-intake", "s1")
	var s *Session
	mgr, err := autosave.New(store, key,
		autosave.WithClock(testsupport.FixedClock(fixedNow)),
		autosave.WithSavedHandler(func(saved model.FormData) { s.MarkSaved(saved) }),
	)
	if err != nil {
		t.Fatalf("autosave: %v", err)
	}
	s = newSession(t, WithAutoSave(mgr), WithSessionID("s1"))

	result, err := s.Submit(context.Background())
	if !errors.Is(err, ErrInvalid) || result.Valid {
		t.Fatalf("expected ErrInvalid for missing full_name, got %v", err)
	}
	if s.Snapshot().CompletedAt != nil {
		t.Fatalf("rejected submit must not stamp CompletedAt")
	}

	_ = s.UpdateField("full_name", model.String("Ada"), nil)
	result, err = s.Submit(context.Background())
	if err != nil || !result.Valid {
		t.Fatalf("submit: valid=%v err=%v", result.Valid, err)
	}
	snap := s.Snapshot()
	if snap.CompletedAt == nil || !snap.CompletedAt.Equal(fixedNow) {
		t.Fatalf("expected CompletedAt stamped, got %v", snap.CompletedAt)
	}
	if snap.AutoSave.SaveCount != 1 || !snap.LastSavedAt.Equal(fixedNow) {
		t.Fatalf("expected save metadata copied back, got %+v", snap.AutoSave)
	}
	if _, err := store.Load(context.Background(), key); err != nil {
		t.Fatalf("expected submitted snapshot persisted: %v", err)
	}
}

func TestSubmitAllowsPartial(t *testing.T) {
	t.Parallel()

	tpl := testsupport.EmploymentTemplate()
	tpl.Settings.AllowPartialSubmission = true
	s, _ := New(tpl)

	result, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("partial submit: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected the result to still report errors")
	}
	if s.Snapshot().CompletedAt == nil {
		t.Fatalf("expected CompletedAt stamped")
	}
}

func TestResume(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	_ = s.UpdateField("full_name", model.String("Ada"), confidence(0.9))
	snap := s.Snapshot()

	resumed, err := Resume(snap, testsupport.EmploymentTemplate())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if diff := testsupport.SnapshotDiff(snap, resumed.Snapshot()); diff != "" {
		t.Fatalf("resumed snapshot mismatch (-want +got):\n%s", diff)
	}

	stale := snap.Clone()
	stale.TemplateVersion = "0.9.0"
	if _, err := Resume(stale, testsupport.EmploymentTemplate()); !errors.Is(err, ErrTemplateMismatch) {
		t.Fatalf("expected ErrTemplateMismatch, got %v", err)
	}
}

func TestCloseFlushesAndStops(t *testing.T) {
	t.Parallel()

	store := memory.New()
	mgr, err := autosave.New(store, storage.SessionKey("employment-intake", "s2"), autosave.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("autosave: %v", err)
	}
	s := newSession(t, WithAutoSave(mgr), WithSessionID("s2"))
	s.Start()
	_ = s.UpdateField("full_name", model.String("Ada"), nil)

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if store.SaveCalls() != 1 {
		t.Fatalf("expected one final write, got %d", store.SaveCalls())
	}
	if mgr.State() != autosave.StateStopped {
		t.Fatalf("expected autosave stopped, got %v", mgr.State())
	}

	_ = s.UpdateField("full_name", model.String("Grace"), nil)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := s.Submit(context.Background()); !errors.Is(err, autosave.ErrStopped) {
		t.Fatalf("submit after close = %v, want autosave.ErrStopped", err)
	}
	if store.SaveCalls() != 1 {
		t.Fatalf("a closed session must not write, got %d writes", store.SaveCalls())
	}
}
