package config

import (
	"testing"
	"time"
)

func TestStringFallback(t *testing.T) {
	t.Setenv("GB_TEST_STRING", "")
	if got := String("GB_TEST_STRING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("GB_TEST_STRING", "  value ")
	if got := String("GB_TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("GB_TEST_REQUIRED", "")
	if _, err := RequiredString("GB_TEST_REQUIRED"); err == nil {
		t.Fatalf("expected error for missing value")
	}
	t.Setenv("GB_TEST_REQUIRED", "postgres://x")
	v, err := RequiredString("GB_TEST_REQUIRED")
	if err != nil || v != "postgres://x" {
		t.Fatalf("unexpected result %q %v", v, err)
	}
}

func TestPort(t *testing.T) {
	cases := []struct {
		value   string
		wantErr bool
	}{
		{"8080", false},
		{"0", true},
		{"70000", true},
		{"http", true},
	}
	for _, tc := range cases {
		t.Setenv("GB_TEST_PORT", tc.value)
		_, err := Port("GB_TEST_PORT", "8080")
		if (err != nil) != tc.wantErr {
			t.Fatalf("port %q: err=%v wantErr=%v", tc.value, err, tc.wantErr)
		}
	}
}

func TestDurationAndInt(t *testing.T) {
	t.Setenv("GB_TEST_DURATION", "")
	d, err := Duration("GB_TEST_DURATION", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("expected fallback duration, got %v %v", d, err)
	}
	t.Setenv("GB_TEST_DURATION", "250ms")
	d, err = Duration("GB_TEST_DURATION", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v %v", d, err)
	}
	t.Setenv("GB_TEST_DURATION", "soon")
	if _, err := Duration("GB_TEST_DURATION", time.Second); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv("GB_TEST_INT", "12")
	n, err := Int("GB_TEST_INT", 1)
	if err != nil || n != 12 {
		t.Fatalf("expected 12, got %d %v", n, err)
	}
}

func TestList(t *testing.T) {
	t.Setenv("GB_TEST_LIST", "a:9092, ,b:9092")
	got := List("GB_TEST_LIST")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected list %v", got)
	}
}
