package clock

import (
	"testing"
	"time"
)

func TestPollSucceedsBeforeDeadline(t *testing.T) {
	fake := NewFake()
	calls := 0

	ok := Poll(fake, 100*time.Millisecond, time.Second, func() bool {
		calls++
		return calls == 3
	})

	if !ok {
		t.Fatal("Poll() = false, want true")
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
	if len(fake.Slept) != 2 {
		t.Errorf("slept %d times, want 2", len(fake.Slept))
	}
}

func TestPollTimesOut(t *testing.T) {
	fake := NewFake()
	calls := 0

	ok := Poll(fake, 100*time.Millisecond, 500*time.Millisecond, func() bool {
		calls++
		return false
	})

	if ok {
		t.Fatal("Poll() = true, want false")
	}
	// Calls land at 0, 100, 200, 300 and 400ms; the 500ms call would hit
	// the deadline, so it is not made.
	if calls != 5 {
		t.Errorf("fn called %d times, want 5", calls)
	}
}

func TestPollRunsAtLeastOnce(t *testing.T) {
	fake := NewFake()
	calls := 0

	Poll(fake, time.Second, 0, func() bool {
		calls++
		return false
	})

	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}
