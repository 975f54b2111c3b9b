package service

import (
	"testing"
	"time"
)

func TestNextBackoffDoublesUpToCap(t *testing.T) {
	max := 30 * time.Second
	cur := time.Second
	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		cur = nextBackoff(cur, max)
		if cur != w {
			t.Fatalf("step %d: got %v, want %v", i, cur, w)
		}
	}
}

func TestNextBackoffWithoutCap(t *testing.T) {
	cur := nextBackoff(time.Minute, 0)
	if cur != 2*time.Minute {
		t.Fatalf("no cap must keep doubling, got %v", cur)
	}
}
