package main

import "testing"

func TestRun_InvalidConfigExitsNonZero(t *testing.T) {
	chdirForTest(t, t.TempDir())
	t.Setenv("PREFETCH", "0")

	if code := run(); code != 1 {
		t.Fatalf("run() = %d, want 1", code)
	}
}
