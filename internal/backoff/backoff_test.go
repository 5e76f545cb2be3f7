package backoff

import (
	"testing"
	"time"
)

func TestDelaySchedule(t *testing.T) {
	p := Default()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayClampsLowAttempts(t *testing.T) {
	p := Default()
	for _, n := range []int{0, -1, -100} {
		if got := p.Delay(n); got != p.Base {
			t.Errorf("Delay(%d) = %v, want %v", n, got, p.Base)
		}
	}
}

func TestDelayNeverExceedsCap(t *testing.T) {
	p := Policy{Base: 250 * time.Millisecond, Cap: 10 * time.Second, MaxAttempts: 8}
	for n := 1; n <= 1000; n++ {
		d := p.Delay(n)
		if d <= 0 || d > p.Cap {
			t.Fatalf("Delay(%d) = %v, outside (0, %v]", n, d, p.Cap)
		}
	}
}

func TestExhausted(t *testing.T) {
	p := Default()
	for n := 0; n < p.MaxAttempts; n++ {
		if p.Exhausted(n) {
			t.Errorf("Exhausted(%d) = true before ceiling", n)
		}
	}
	if !p.Exhausted(p.MaxAttempts) {
		t.Error("Exhausted(MaxAttempts) = false")
	}
	if !p.Exhausted(p.MaxAttempts + 1) {
		t.Error("Exhausted(MaxAttempts+1) = false")
	}
}
