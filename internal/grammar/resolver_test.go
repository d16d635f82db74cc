package grammar

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	tsjson "github.com/tree-sitter/tree-sitter-json/bindings/go"
)

func jsonLanguage() *sitter.Language {
	return sitter.NewLanguage(tsjson.Language())
}

type fakeFetcher struct {
	binaries map[string][]byte
	texts    map[string]string
	calls    []string
}

func (f *fakeFetcher) FetchBinary(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	if b, ok := f.binaries[url]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("no such asset: %s", url)
}

func (f *fakeFetcher) FetchText(_ context.Context, url string) (string, error) {
	f.calls = append(f.calls, url)
	if t, ok := f.texts[url]; ok {
		return t, nil
	}
	return "", fmt.Errorf("no such asset: %s", url)
}

// fakeLoader loads every binary as the bundled JSON grammar so query
// compilation runs against a real language.
type fakeLoader struct {
	bundled     map[string]bool
	binaryCalls int
}

func (f *fakeLoader) LoadBundled(languageID string) (*sitter.Language, bool) {
	if f.bundled[languageID] {
		return jsonLanguage(), true
	}
	return nil, false
}

func (f *fakeLoader) LoadBinary(languageID string, binary []byte) (*sitter.Language, error) {
	f.binaryCalls++
	if err := ValidateBinary(binary); err != nil {
		return nil, err
	}
	return jsonLanguage(), nil
}

const (
	goodQuery     = "(pair key: (string) @property)\n(number) @number"
	mismatchQuery = "(function_declaration) @function"
)

func newTestResolver(t *testing.T, store *Store, fetcher *fakeFetcher, loader LanguageLoader, cfg ResolverConfig) *Resolver {
	t.Helper()
	r := NewResolver(store, NewPool(4), fetcher, loader, cfg)
	t.Cleanup(r.Pool().Clear)
	return r
}

func TestResolveCorruptCachedBinaryRefetches(t *testing.T) {
	store := openTestStore(t)
	// Bypass Put's validation stamping to plant corrupt bytes the way
	// a partial download would leave them.
	corrupt := Entry{LanguageID: "rust", Binary: []byte{0x00, 0x61, 0x73}}
	corrupt.Checksum = Checksum(corrupt.Binary)
	if err := store.Put(corrupt); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	fetcher := &fakeFetcher{
		binaries: map[string][]byte{"https://g.example.com/rust.so": wasmHeader()},
		texts:    map[string]string{"https://q.example.com/rust.scm": goodQuery},
	}
	loader := &fakeLoader{}
	r := newTestResolver(t, store, fetcher, loader, ResolverConfig{
		BinaryURL: "https://g.example.com/%s.so",
		QueryURLs: []string{"https://q.example.com/%s.scm"},
	})

	loaded, err := r.Resolve(context.Background(), "rust", ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer loaded.Release()

	if loaded.Query == nil {
		t.Fatalf("expected compiled query")
	}
	if loader.binaryCalls != 1 {
		t.Fatalf("binary loads = %d, want 1 (fetched bytes only)", loader.binaryCalls)
	}

	entry, found, err := store.Get("rust")
	if err != nil || !found {
		t.Fatalf("expected refreshed cache entry, found=%v err=%v", found, err)
	}
	if string(entry.Binary) != string(wasmHeader()) {
		t.Fatalf("cache still holds corrupt bytes")
	}
}

func TestResolveRejectsHTMLQuery(t *testing.T) {
	fetcher := &fakeFetcher{
		texts: map[string]string{
			"https://q.example.com/json.scm": "<html><body>404</body></html>",
		},
	}
	loader := &fakeLoader{bundled: map[string]bool{"json": true}}
	r := newTestResolver(t, nil, fetcher, loader, ResolverConfig{
		QueryURLs: []string{"https://q.example.com/%s.scm"},
	})

	loaded, err := r.Resolve(context.Background(), "json", ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer loaded.Release()

	if loaded.Query != nil {
		t.Fatalf("HTML error page compiled as a query")
	}
	if loaded.Parser == nil || loaded.Language == nil {
		t.Fatalf("parser must resolve even without highlighting")
	}
}

func TestResolveQueryFallthroughURLs(t *testing.T) {
	fetcher := &fakeFetcher{
		texts: map[string]string{
			// First candidate is missing, second serves the query.
			"https://mirror.example.com/json/highlights.scm": goodQuery,
		},
	}
	loader := &fakeLoader{bundled: map[string]bool{"json": true}}
	r := newTestResolver(t, nil, fetcher, loader, ResolverConfig{
		QueryURLs: []string{
			"https://primary.example.com/%s/highlights.scm",
			"https://mirror.example.com/%s/highlights.scm",
		},
	})

	loaded, err := r.Resolve(context.Background(), "json", ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer loaded.Release()

	if loaded.Query == nil {
		t.Fatalf("expected query from mirror URL")
	}
}

func TestResolveExplicitQueryText(t *testing.T) {
	loader := &fakeLoader{bundled: map[string]bool{"json": true}}
	r := newTestResolver(t, nil, &fakeFetcher{}, loader, ResolverConfig{})

	loaded, err := r.Resolve(context.Background(), "json", ResolveOptions{QueryText: goodQuery})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer loaded.Release()
	if loaded.Query == nil {
		t.Fatalf("explicit query text not compiled")
	}
}

func TestResolveExplicitQueryTextAfterFailedFetch(t *testing.T) {
	// No query URL resolves, so the first call marks highlighting as
	// missing for the language.
	fetcher := &fakeFetcher{}
	loader := &fakeLoader{bundled: map[string]bool{"json": true}}
	r := newTestResolver(t, nil, fetcher, loader, ResolverConfig{
		QueryURLs: []string{"https://q.example.com/%s.scm"},
	})

	first, err := r.Resolve(context.Background(), "json", ResolveOptions{})
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	first.Release()
	if first.Query != nil {
		t.Fatalf("query compiled despite failing fetch")
	}

	// Explicit query text must still compile on the warm pool entry.
	second, err := r.Resolve(context.Background(), "json", ResolveOptions{QueryText: goodQuery})
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	defer second.Release()
	if second.Query == nil {
		t.Fatalf("explicit query text ignored after earlier fetch failure")
	}
}

func TestResolveRecordsOverrideBinaryURL(t *testing.T) {
	store := openTestStore(t)
	override := "https://mirror.example.com/custom-rust.so"
	fetcher := &fakeFetcher{
		binaries: map[string][]byte{override: wasmHeader()},
	}
	r := newTestResolver(t, store, fetcher, &fakeLoader{}, ResolverConfig{
		BinaryURL: "https://g.example.com/%s.so",
	})

	loaded, err := r.Resolve(context.Background(), "rust", ResolveOptions{BinaryURL: override})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	loaded.Release()

	entry, found, err := store.Get("rust")
	if err != nil || !found {
		t.Fatalf("expected cache entry, found=%v err=%v", found, err)
	}
	if entry.SourceURL != override {
		t.Fatalf("SourceURL = %q, want the override URL %q", entry.SourceURL, override)
	}
}

func TestResolveQueryMismatchRecoversWithFreshQuery(t *testing.T) {
	store := openTestStore(t)
	if err := store.Put(Entry{LanguageID: "json", QueryText: mismatchQuery}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	fetcher := &fakeFetcher{
		texts: map[string]string{"https://q.example.com/json.scm": goodQuery},
	}
	loader := &fakeLoader{bundled: map[string]bool{"json": true}}
	r := newTestResolver(t, store, fetcher, loader, ResolverConfig{
		QueryURLs: []string{"https://q.example.com/%s.scm"},
	})

	loaded, err := r.Resolve(context.Background(), "json", ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer loaded.Release()

	if loaded.Query == nil {
		t.Fatalf("expected recovery via freshly fetched query")
	}

	entry, found, err := store.Get("json")
	if err != nil || !found {
		t.Fatalf("expected cache entry after recovery, found=%v err=%v", found, err)
	}
	if entry.QueryText != goodQuery {
		t.Fatalf("recovered query not written back: %q", entry.QueryText)
	}
}

func TestResolveQueryMismatchWithoutRecoveryDegrades(t *testing.T) {
	store := openTestStore(t)
	if err := store.Put(Entry{LanguageID: "rust", Binary: wasmHeader(), QueryText: mismatchQuery}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// No query URLs: the refetch fallback has nowhere to go.
	fetcher := &fakeFetcher{}
	loader := &fakeLoader{}
	r := newTestResolver(t, store, fetcher, loader, ResolverConfig{})

	loaded, err := r.Resolve(context.Background(), "rust", ResolveOptions{QueryText: mismatchQuery})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer loaded.Release()

	if loaded.Query != nil {
		t.Fatalf("mismatched query should not compile")
	}
	// The cached binary is deleted so the next resolve re-downloads.
	if _, found, _ := store.Get("rust"); found {
		t.Fatalf("cached binary not deleted after unrecoverable mismatch")
	}
}

func TestResolveWarmPoolSkipsNetwork(t *testing.T) {
	fetcher := &fakeFetcher{
		texts: map[string]string{"https://q.example.com/json.scm": goodQuery},
	}
	loader := &fakeLoader{bundled: map[string]bool{"json": true}}
	r := newTestResolver(t, nil, fetcher, loader, ResolverConfig{
		QueryURLs: []string{"https://q.example.com/%s.scm"},
	})

	first, err := r.Resolve(context.Background(), "json", ResolveOptions{})
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	first.Release()

	callsAfterFirst := len(fetcher.calls)

	second, err := r.Resolve(context.Background(), "json", ResolveOptions{})
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	second.Release()

	if len(fetcher.calls) != callsAfterFirst {
		t.Fatalf("warm resolve touched the network: %v", fetcher.calls[callsAfterFirst:])
	}
	if second.Query == nil {
		t.Fatalf("warm resolve lost the compiled query")
	}
}

func TestResolveUnknownLanguageFails(t *testing.T) {
	r := newTestResolver(t, nil, &fakeFetcher{}, &fakeLoader{}, ResolverConfig{})

	_, err := r.Resolve(context.Background(), "brainfuck", ResolveOptions{})
	if err == nil {
		t.Fatalf("expected failure for language with no grammar source")
	}
	if !errors.Is(err, ErrNoGrammar) {
		t.Fatalf("error = %v, want ErrNoGrammar", err)
	}
}

func TestResolveNeverCachesInvalidFetchedBytes(t *testing.T) {
	store := openTestStore(t)
	fetcher := &fakeFetcher{
		binaries: map[string][]byte{
			"https://g.example.com/rust.so": []byte("<html>oops</html>"),
		},
	}
	r := newTestResolver(t, store, fetcher, &fakeLoader{}, ResolverConfig{
		BinaryURL: "https://g.example.com/%s.so",
	})

	if _, err := r.Resolve(context.Background(), "rust", ResolveOptions{}); err == nil {
		t.Fatalf("expected fatal error for invalid fetched binary")
	}
	if _, found, _ := store.Get("rust"); found {
		t.Fatalf("invalid bytes were cached")
	}
}
