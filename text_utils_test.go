package main

import "testing"

func TestTruncateText(t *testing.T) {
	if got := truncateText("hello", 10); got != "hello" {
		t.Fatalf("truncateText = %q, want unchanged", got)
	}
	if got := truncateText("hello world", 8); got != "hello..." {
		t.Fatalf("truncateText = %q, want %q", got, "hello...")
	}
	if got := truncateText("hello", 2); got != "he" {
		t.Fatalf("tiny width truncation = %q, want %q", got, "he")
	}
	if got := truncateText("hello", 0); got != "" {
		t.Fatalf("zero width should yield empty string, got %q", got)
	}
}

func TestPadRightANSI(t *testing.T) {
	if got := padRightANSI("ab", 5); got != "ab   " {
		t.Fatalf("padRightANSI = %q", got)
	}
	if got := padRightANSI("abcdef", 5); got != "abcdef" {
		t.Fatalf("padRightANSI should not cut, got %q", got)
	}
}

func TestExpandTabs(t *testing.T) {
	if got := expandTabs("a\tb"); got != "a    b" {
		t.Fatalf("expandTabs = %q", got)
	}
	if got := expandTabs("plain"); got != "plain" {
		t.Fatalf("expandTabs altered tabless text: %q", got)
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(5, 0, 3); got != 3 {
		t.Fatalf("clamp high = %d", got)
	}
	if got := clamp(-1, 0, 3); got != 0 {
		t.Fatalf("clamp low = %d", got)
	}
	if got := clamp(2, 0, 3); got != 2 {
		t.Fatalf("clamp mid = %d", got)
	}
}
