package schedule

import (
	"testing"
	"time"
)

func TestNextRunCronWeekdayMorning(t *testing.T) {
	// Saturday noon; the next weekday 09:00 fire is Monday.
	sat := time.Date(2026, 3, 7, 12, 0, 0, 0, time.Local)

	next, err := NextRun(TypeCron, "0 9 * * 1-5", sat)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if next == nil {
		t.Fatal("cron schedule returned nil next run")
	}

	want := time.Date(2026, 3, 9, 9, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
	if next.Weekday() != time.Monday {
		t.Errorf("next weekday = %v, want Monday", next.Weekday())
	}
}

func TestNextRunCronUnsatisfiableYieldsNil(t *testing.T) {
	// Feb 30 parses but never occurs; the schedule can never fire.
	next, err := NextRun(TypeCron, "0 0 30 2 *", time.Date(2026, 3, 7, 12, 0, 0, 0, time.Local))
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if next != nil {
		t.Errorf("unsatisfiable cron returned %v, want nil", next)
	}
}

func TestNextRunCronInvalidExpression(t *testing.T) {
	if _, err := NextRun(TypeCron, "not a cron", time.Now()); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestNextRunInterval(t *testing.T) {
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	next, err := NextRun(TypeInterval, "60000", now)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if got, want := *next, now.Add(time.Minute); !got.Equal(want) {
		t.Errorf("next = %v, want %v", got, want)
	}
}

func TestNextRunIntervalDriftsNotCatchesUp(t *testing.T) {
	// The interval is relative to evaluation time, so a late evaluation
	// pushes the next fire out rather than backfilling.
	late := time.Date(2026, 3, 7, 12, 5, 30, 0, time.UTC)

	next, err := NextRun(TypeInterval, "60000", late)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if got, want := *next, late.Add(time.Minute); !got.Equal(want) {
		t.Errorf("next = %v, want %v", got, want)
	}
}

func TestNextRunIntervalInvalid(t *testing.T) {
	for _, value := range []string{"", "abc", "0", "-5"} {
		if _, err := NextRun(TypeInterval, value, time.Now()); err == nil {
			t.Errorf("interval %q: expected error", value)
		}
	}
}

func TestNextRunOnceFuture(t *testing.T) {
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	at := now.Add(2 * time.Hour)

	next, err := NextRun(TypeOnce, at.Format(time.RFC3339), now)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if next == nil || !next.Equal(at) {
		t.Errorf("next = %v, want %v", next, at)
	}
}

func TestNextRunOncePastYieldsNil(t *testing.T) {
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	next, err := NextRun(TypeOnce, past.Format(time.RFC3339), now)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if next != nil {
		t.Errorf("past once schedule returned %v, want nil", next)
	}
}

func TestNextRunOnceInvalidTimestamp(t *testing.T) {
	if _, err := NextRun(TypeOnce, "tomorrowish", time.Now()); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestNextRunUnknownType(t *testing.T) {
	if _, err := NextRun("weekly", "1", time.Now()); err == nil {
		t.Error("expected error for unknown schedule type")
	}
}

func TestValidType(t *testing.T) {
	for _, typ := range []string{TypeCron, TypeInterval, TypeOnce} {
		if !ValidType(typ) {
			t.Errorf("ValidType(%q) = false", typ)
		}
	}
	if ValidType("weekly") {
		t.Error("ValidType(weekly) = true")
	}
}
