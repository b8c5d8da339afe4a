package instance

import "testing"

func TestIDPrefersEnvironment(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", " cron-a ")
	if got := ID(); got != "cron-a" {
		t.Fatalf("expected cron-a, got %q", got)
	}
}

func TestIDFallsBackWhenUnset(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "")
	if ID() == "" {
		t.Fatalf("expected a non-empty instance id")
	}
}
