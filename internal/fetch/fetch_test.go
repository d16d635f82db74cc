package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFetchBinaryHTTP(t *testing.T) {
	payload := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	got, err := c.FetchBinary(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchBinary failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: %v", got)
	}
}

func TestFetchTextRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	if _, err := c.FetchText(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 404 response")
	}
}

func TestFetchLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "highlights.scm")
	if err := os.WriteFile(path, []byte("(string) @string\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	c := NewClient(time.Second)

	got, err := c.FetchText(context.Background(), path)
	if err != nil {
		t.Fatalf("FetchText(plain path) failed: %v", err)
	}
	if got != "(string) @string\n" {
		t.Fatalf("unexpected text %q", got)
	}

	got, err = c.FetchText(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("FetchText(file URL) failed: %v", err)
	}
	if got != "(string) @string\n" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestFetchMissingLocalFile(t *testing.T) {
	c := NewClient(time.Second)
	if _, err := c.FetchBinary(context.Background(), filepath.Join(t.TempDir(), "absent.so")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
