package transformer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCoerceInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     any
		want   any
		wantOK bool
	}{
		{3, int64(3), true},
		{int64(-4), int64(-4), true},
		{2.0, int64(2), true},
		{" 17 ", int64(17), true},
		{decimal.RequireFromString("9"), int64(9), true},
		{2.5, 2.5, false},
		{"x", "x", false},
		{nil, nil, false},
	}
	for _, tc := range tests {
		got, ok := CoerceInt(tc.in)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("CoerceInt(%#v)=(%#v,%v), want (%#v,%v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestCoerceFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     any
		want   any
		wantOK bool
	}{
		{1.5, 1.5, true},
		{2, 2.0, true},
		{int64(7), 7.0, true},
		{"3.25", 3.25, true},
		{decimal.RequireFromString("150.75"), 150.75, true},
		{"abc", "abc", false},
		{true, true, false},
	}
	for _, tc := range tests {
		got, ok := CoerceFloat(tc.in)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("CoerceFloat(%#v)=(%#v,%v), want (%#v,%v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   time.Time
		wantOK bool
	}{
		{"2023-01-01 10:00:00.123456", time.Date(2023, 1, 1, 10, 0, 0, 123456000, time.UTC), true},
		{"2023-1-2 3:04:05.1", time.Date(2023, 1, 2, 3, 4, 5, 100000000, time.UTC), true},
		{"2024-02-29 00:00:00.000000", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), true},
		{"2023-01-01 10:00:00", time.Time{}, false},
		{"2023-01-01T10:00:00.123456", time.Time{}, false},
		{"2023-01-01 10:00:00.1234567", time.Time{}, false},
		{" 2023-01-01 10:00:00.1", time.Time{}, false},
		{"2023-02-30 10:00:00.1", time.Time{}, false},
		{"2023-13-01 10:00:00.1", time.Time{}, false},
		{"2023-01-01 24:00:00.1", time.Time{}, false},
		{"0000-01-01 00:00:00.1", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tc := range tests {
		got, ok := ParseTimestamp(tc.in)
		if ok != tc.wantOK || !got.Equal(tc.want) {
			t.Fatalf("ParseTimestamp(%q)=(%v,%v), want (%v,%v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
