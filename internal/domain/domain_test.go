package domain

import (
	"testing"
	"time"
)

func TestParseTaskStatus(t *testing.T) {
	cases := map[string]TaskStatus{
		"DONE":        StatusDone,
		"in_progress": StatusInProgress,
		"in-progress": StatusInProgress,
		" review ":    StatusReview,
	}
	for in, want := range cases {
		got, err := ParseTaskStatus(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s want %s", in, got, want)
		}
	}
	if _, err := ParseTaskStatus("shipped"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestTimeLayoutSortsChronologically(t *testing.T) {
	a := FormatTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := FormatTime(time.Date(2024, 1, 1, 0, 0, 0, 500_000_000, time.UTC))
	c := FormatTime(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC))
	if !(a < b && b < c) {
		t.Fatalf("expected lexical order %s < %s < %s", a, b, c)
	}
}

func TestParseTimeAcceptsDateOnly(t *testing.T) {
	got, err := ParseTime("2024-03-05")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}
	norm, err := NormalizeTime("2024-03-05T10:00:00+02:00")
	if err != nil {
		t.Fatal(err)
	}
	if norm != "2024-03-05T08:00:00.000Z" {
		t.Fatalf("unexpected normalized time %s", norm)
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
}
