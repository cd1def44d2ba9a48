package core

import (
	"errors"
	"testing"
)

func TestNextExpected(t *testing.T) {
	tests := []struct {
		name      string
		last      Date
		frequency Frequency
		want      Date
	}{
		{"weekly", NewDate(2024, 1, 15), Weekly, NewDate(2024, 1, 22)},
		{"weekly across month", NewDate(2024, 1, 29), Weekly, NewDate(2024, 2, 5)},
		{"biweekly", NewDate(2024, 1, 15), Biweekly, NewDate(2024, 1, 29)},
		{"monthly", NewDate(2024, 1, 15), Monthly, NewDate(2024, 2, 15)},
		{"monthly year rollover", NewDate(2024, 12, 15), Monthly, NewDate(2025, 1, 15)},
		{"monthly end of month clamps to 28", NewDate(2024, 1, 31), Monthly, NewDate(2024, 2, 28)},
		{"monthly 30th into february", NewDate(2023, 1, 30), Monthly, NewDate(2023, 2, 28)},
		{"monthly 31st into 30 day month", NewDate(2024, 3, 31), Monthly, NewDate(2024, 4, 28)},
		{"monthly 31st december", NewDate(2024, 12, 31), Monthly, NewDate(2025, 1, 31)},
		{"quarterly", NewDate(2024, 1, 15), Quarterly, NewDate(2024, 4, 15)},
		{"quarterly year rollover", NewDate(2024, 11, 15), Quarterly, NewDate(2025, 2, 15)},
		{"quarterly keeps day 31", NewDate(2024, 5, 31), Quarterly, NewDate(2024, 8, 31)},
		{"quarterly clamps short month", NewDate(2024, 11, 30), Quarterly, NewDate(2025, 2, 28)},
		{"yearly", NewDate(2024, 1, 15), Yearly, NewDate(2025, 1, 15)},
		{"yearly leap day", NewDate(2024, 2, 29), Yearly, NewDate(2025, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextExpected(tt.last, tt.frequency)
			if err != nil {
				t.Fatalf("NextExpected() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("NextExpected(%s, %s) = %s, want %s", tt.last, tt.frequency, got, tt.want)
			}
		})
	}
}

func TestNextExpected_UnknownFrequency(t *testing.T) {
	_, err := NextExpected(NewDate(2024, 1, 1), Frequency("daily"))
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestNextExpected_Deterministic(t *testing.T) {
	start := NewDate(2023, 1, 1)
	for d := start; d.Year() < 2025; d = (Date{Time: d.AddDate(0, 0, 1)}) {
		for _, f := range Frequencies() {
			a, errA := NextExpected(d, f)
			b, errB := NextExpected(d, f)
			if errA != nil || errB != nil {
				t.Fatalf("unexpected error for %s/%s: %v %v", d, f, errA, errB)
			}
			if a != b {
				t.Fatalf("NextExpected(%s, %s) not stable: %s vs %s", d, f, a, b)
			}
			if !a.After(d) {
				t.Fatalf("NextExpected(%s, %s) = %s is not after the input", d, f, a)
			}
		}
	}
}
