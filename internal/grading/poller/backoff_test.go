package poller

import (
	"testing"
	"time"
)

func TestComputeBackoff(t *testing.T) {
	base := 2 * time.Second
	max := 30 * time.Second
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{-1, 2 * time.Second},
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{4, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := ComputeBackoff(tt.retry, base, max); got != tt.want {
			t.Errorf("ComputeBackoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestComputeBackoffEdges(t *testing.T) {
	if got := ComputeBackoff(3, 0, time.Second); got != 0 {
		t.Errorf("zero base = %v, want 0", got)
	}
	if got := ComputeBackoff(0, time.Minute, time.Second); got != time.Second {
		t.Errorf("base above max = %v, want max", got)
	}
	if got := ComputeBackoff(3, time.Second, 0); got != 8*time.Second {
		t.Errorf("unbounded = %v, want 8s", got)
	}
}
