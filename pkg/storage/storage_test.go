package storage

import "testing"

func TestKeys(t *testing.T) {
	t.Parallel()

	if got := SessionKey(" intake ", "abc"); got != "formflow:session:intake:abc" {
		t.Fatalf("session key = %q", got)
	}
	if got := TemplateKey("intake"); got != "formflow:template:intake" {
		t.Fatalf("template key = %q", got)
	}
	if err := ValidateKey(""); err == nil {
		t.Fatalf("expected blank key to be rejected")
	}
}
