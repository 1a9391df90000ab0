package sync

import (
	"strings"
	"testing"
)

func TestRenderProgressBounds(t *testing.T) {
	cases := []struct {
		done, total int
		wantPercent string
	}{
		{0, 0, "100%"},
		{0, 10, "  0%"},
		{5, 10, " 50%"},
		{10, 10, "100%"},
		{-1, 10, "  0%"},
		{20, 10, "100%"},
	}
	for _, c := range cases {
		got := RenderProgress(c.done, c.total)
		if !strings.Contains(got, c.wantPercent) {
			t.Errorf("RenderProgress(%d, %d) = %q, want it to contain %q", c.done, c.total, got, c.wantPercent)
		}
	}
}

func TestRenderProgressNeverPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("RenderProgress panicked: %v", r)
		}
	}()
	RenderProgress(0, 0)
	RenderProgress(-5, -5)
	RenderProgress(1000, 1)
}
