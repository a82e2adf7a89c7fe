package instance

import "testing"

func TestIDPrefersEnv(t *testing.T) {
	t.Setenv("BLOODBANK_INSTANCE_ID", "api-7")
	if got := ID(); got != "api-7" {
		t.Fatalf("expected api-7, got %q", got)
	}
}

func TestIDFallsBack(t *testing.T) {
	t.Setenv("BLOODBANK_INSTANCE_ID", "")
	if ID() == "" {
		t.Fatal("expected a non-empty fallback")
	}
}
