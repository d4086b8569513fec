package env

import "testing"

func TestGetFallsBackWhenBlank(t *testing.T) {
	t.Setenv("SOUNDMINT_TEST_VALUE", "   ")
	if got := Get("SOUNDMINT_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("SOUNDMINT_TEST_VALUE", " set ")
	if got := Get("SOUNDMINT_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestInstanceIDPrefersDyno(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("WORKER_ID", "")
	if got := InstanceID(); got != "local" {
		t.Fatalf("expected local default, got %q", got)
	}
	t.Setenv("WORKER_ID", "worker-3")
	if got := InstanceID(); got != "worker-3" {
		t.Fatalf("expected worker id, got %q", got)
	}
	t.Setenv("DYNO", "web.1")
	if got := InstanceID(); got != "web.1" {
		t.Fatalf("expected dyno id, got %q", got)
	}
}
