package channel

import (
	"testing"
	"time"
)

func TestReconnectDelay_ExponentialGrowth(t *testing.T) {
	base := 3 * time.Second
	max := 30 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 3 * time.Second},
		{1, 6 * time.Second},
		{2, 12 * time.Second},
		{3, 24 * time.Second},
		{4, 30 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, c := range cases {
		got := reconnectDelay(base, max, c.attempt)
		if got != c.want {
			t.Errorf("attempt %d: expected %v, got %v", c.attempt, c.want, got)
		}
	}
}

func TestReconnectDelay_OverflowCapsAtMax(t *testing.T) {
	got := reconnectDelay(3*time.Second, 30*time.Second, 62)
	if got != 30*time.Second {
		t.Errorf("expected overflow to cap at max, got %v", got)
	}
}
