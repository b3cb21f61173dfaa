package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMonthDay(t *testing.T) {
	cases := []struct {
		year, month, day int
		want             string
	}{
		{2024, 2, 31, "2024-02-29"},
		{2023, 2, 31, "2023-02-28"},
		{2024, 4, 31, "2024-04-30"},
		{2024, 13, 15, "2025-01-15"},
		{2024, 0, 31, "2023-12-31"},
		{2024, 1, 0, "2024-01-01"},
	}
	for _, tc := range cases {
		if got := MonthDay(tc.year, tc.month, tc.day).String(); got != tc.want {
			t.Errorf("MonthDay(%d, %d, %d) = %s, want %s", tc.year, tc.month, tc.day, got, tc.want)
		}
	}
}

func TestAddMonthsClamped(t *testing.T) {
	jan31 := NewDate(2024, 1, 31)
	if got := jan31.AddMonthsClamped(1).String(); got != "2024-02-29" {
		t.Errorf("AddMonthsClamped(1) = %s, want 2024-02-29", got)
	}
	if got := jan31.AddMonthsClamped(2).String(); got != "2024-03-31" {
		t.Errorf("AddMonthsClamped(2) = %s, want 2024-03-31", got)
	}
	if got := jan31.AddMonthsClamped(-2).String(); got != "2023-11-30" {
		t.Errorf("AddMonthsClamped(-2) = %s, want 2023-11-30", got)
	}
}

func TestDateOf(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 00:30 in Rome is still the previous day in UTC.
	ts := time.Date(2024, 3, 1, 0, 30, 0, 0, rome)
	if got := DateOf(ts).String(); got != "2024-03-01" {
		t.Errorf("DateOf() = %s, want 2024-03-01", got)
	}
}

func TestDaysUntilAndWeekend(t *testing.T) {
	a := MustParseDate("2024-03-29")
	b := MustParseDate("2024-04-02")
	if got := a.DaysUntil(b); got != 4 {
		t.Errorf("DaysUntil() = %d, want 4", got)
	}
	if !MustParseDate("2024-03-30").IsWeekend() {
		t.Errorf("2024-03-30 should be a weekend")
	}
	if MustParseDate("2024-04-01").IsWeekend() {
		t.Errorf("2024-04-01 should not be a weekend")
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "2024-02-30", "2024/01/01", "yesterday"} {
		if _, err := ParseDate(s); err == nil {
			t.Errorf("ParseDate(%q) expected error", s)
		}
	}
}

func TestDateJSON(t *testing.T) {
	type payload struct {
		Start Date  `json:"start"`
		End   *Date `json:"end"`
	}
	in := payload{Start: NewDate(2024, 5, 6)}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"start":"2024-05-06","end":null}` {
		t.Fatalf("Marshal() = %s", b)
	}
	var out payload
	if err := json.Unmarshal([]byte(`{"start":"2024-05-06","end":"2024-06-01"}`), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Start.Equal(in.Start) || out.End == nil || out.End.String() != "2024-06-01" {
		t.Fatalf("Unmarshal() = %+v", out)
	}
}
