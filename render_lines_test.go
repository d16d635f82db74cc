package main

import "testing"

func TestLineCutFitsWithoutTruncation(t *testing.T) {
	text := "short line"
	cut, truncated := lineCut(text, 80)
	if truncated || cut != len(text) {
		t.Fatalf("lineCut = (%d, %v), want (%d, false)", cut, truncated, len(text))
	}
}

func TestLineCutReservesEllipsis(t *testing.T) {
	text := "abcdefghij"
	cut, truncated := lineCut(text, 8)
	if !truncated {
		t.Fatalf("expected truncation for width 8")
	}
	if cut != 5 {
		t.Fatalf("cut = %d, want 5 (width 8 minus ellipsis)", cut)
	}
}

func TestLineDisplayWidthCountsTabsExpanded(t *testing.T) {
	if got := lineDisplayWidth("\tx"); got != 5 {
		t.Fatalf("lineDisplayWidth = %d, want 5", got)
	}
}

func TestNumberGutterWidth(t *testing.T) {
	cases := []struct{ total, want int }{
		{0, 4},
		{9, 4},
		{9999, 4},
		{10000, 5},
		{1234567, 7},
	}
	for _, tc := range cases {
		if got := numberGutterWidth(tc.total); got != tc.want {
			t.Fatalf("numberGutterWidth(%d) = %d, want %d", tc.total, got, tc.want)
		}
	}
}

func TestHumanSize(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{3 << 20, "3.0 MiB"},
	}
	for _, tc := range cases {
		if got := humanSize(tc.n); got != tc.want {
			t.Fatalf("humanSize(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}
