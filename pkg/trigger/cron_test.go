package trigger

import (
	"testing"
	"time"
)

func TestCronTriggerDaily(t *testing.T) {
	t.Parallel()
	end := time.Date(2026, time.March, 16, 23, 0, 0, 0, time.UTC)
	tr, err := NewCronTrigger("0 12 * * *", at(10, 0), CronOptions{Location: time.UTC, End: end})
	if err != nil {
		t.Fatalf("NewCronTrigger: %v", err)
	}
	for _, day := range []int{14, 15, 16} {
		wantFire(t, tr, time.Date(2026, time.March, day, 12, 0, 0, 0, time.UTC))
	}
	wantExhausted(t, tr)
	wantExhausted(t, tr)
}

func TestCronTriggerDescriptor(t *testing.T) {
	t.Parallel()
	tr, err := NewCronTrigger("@every 30m", at(10, 0), CronOptions{Location: time.UTC})
	if err != nil {
		t.Fatalf("NewCronTrigger: %v", err)
	}
	first := mustNext(t, tr)
	second := mustNext(t, tr)
	if first == nil || second == nil {
		t.Fatal("descriptor schedule exhausted unexpectedly")
	}
	if got := second.Sub(*first); got != 30*time.Minute {
		t.Fatalf("spacing = %v, want 30m", got)
	}
}

func TestCronTriggerParseError(t *testing.T) {
	t.Parallel()
	if _, err := NewCronTrigger("totally wrong", at(10, 0), CronOptions{}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCronTriggerRoundTrip(t *testing.T) {
	t.Parallel()
	end := time.Date(2026, time.March, 18, 0, 0, 0, 0, time.UTC)
	tr, err := NewCronTrigger("30 6 * * *", at(10, 0), CronOptions{Location: time.UTC, End: end})
	if err != nil {
		t.Fatalf("NewCronTrigger: %v", err)
	}
	wantFire(t, tr, time.Date(2026, time.March, 15, 6, 30, 0, 0, time.UTC))

	m, err := Marshal(tr)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	restored, err := Unmarshal(m)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	// The cursor survives: the restored trigger continues with the next
	// day, not the first.
	wantFire(t, restored, time.Date(2026, time.March, 16, 6, 30, 0, 0, time.UTC))
	wantFire(t, restored, time.Date(2026, time.March, 17, 6, 30, 0, 0, time.UTC))
	wantExhausted(t, restored)
}
