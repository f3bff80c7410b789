package environment_test

import (
	"testing"
	"time"

	"github.com/bdobrica/kaiwa/common/environment"
)

func TestString(t *testing.T) {
	t.Setenv("TEST_SET_EMPTY", "")
	if _, ok := environment.String("TEST_SET_EMPTY"); !ok {
		t.Error("expected ok=true for a variable set to the empty string")
	}
	if _, ok := environment.String("TEST_NOT_SET_AT_ALL"); ok {
		t.Error("expected ok=false for an unset variable")
	}
}

func TestStringOr(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if got := environment.StringOr("TEST_STRING", "default"); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	if got := environment.StringOr("TEST_STRING_MISSING", "default"); got != "default" {
		t.Errorf("expected %q, got %q", "default", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "value")
	v, err := environment.RequiredString("TEST_REQUIRED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "value" {
		t.Errorf("expected %q, got %q", "value", v)
	}

	if _, err := environment.RequiredString("TEST_REQUIRED_MISSING"); err == nil {
		t.Error("expected error for missing variable, got nil")
	}
}

func TestIntOr(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := environment.IntOr("TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("TEST_INT_BAD", "not-a-number")
	if got := environment.IntOr("TEST_INT_BAD", 7); got != 7 {
		t.Errorf("expected default 7 for unparseable value, got %d", got)
	}
	if got := environment.IntOr("TEST_INT_MISSING", 7); got != 7 {
		t.Errorf("expected default 7 for missing value, got %d", got)
	}
}

func TestFloatOr(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.7")
	if got := environment.FloatOr("TEST_FLOAT", 1.0); got != 0.7 {
		t.Errorf("expected 0.7, got %v", got)
	}
	if got := environment.FloatOr("TEST_FLOAT_MISSING", 1.0); got != 1.0 {
		t.Errorf("expected default 1.0, got %v", got)
	}
}

func TestDurationOr(t *testing.T) {
	t.Setenv("TEST_DURATION", "15s")
	if got := environment.DurationOr("TEST_DURATION", time.Minute); got != 15*time.Second {
		t.Errorf("expected 15s, got %v", got)
	}
	t.Setenv("TEST_DURATION_BAD", "soon")
	if got := environment.DurationOr("TEST_DURATION_BAD", time.Minute); got != time.Minute {
		t.Errorf("expected default 1m for unparseable value, got %v", got)
	}
}

func TestStringSliceOr(t *testing.T) {
	t.Setenv("TEST_SLICE", "@alice:example.com, @bob:example.com ,")
	got := environment.StringSliceOr("TEST_SLICE", nil)
	if len(got) != 2 || got[0] != "@alice:example.com" || got[1] != "@bob:example.com" {
		t.Errorf("unexpected slice: %v", got)
	}
	def := []string{"fallback"}
	if got := environment.StringSliceOr("TEST_SLICE_MISSING", def); len(got) != 1 || got[0] != "fallback" {
		t.Errorf("expected default slice, got %v", got)
	}
}
