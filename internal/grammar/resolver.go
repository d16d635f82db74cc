package grammar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"treelight/internal/fetch"
	"treelight/internal/logging"

	"github.com/charmbracelet/log"
	sitter "github.com/smacker/go-tree-sitter"
)

// ErrNoGrammar is returned when no valid parser binary can be obtained
// for a language from the cache, the bundled set, or the network.
var ErrNoGrammar = errors.New("no grammar available")

// ResolverConfig configures grammar acquisition. URL templates expand
// a single %s to the language identifier.
type ResolverConfig struct {
	// BinaryURL is the template for fetching grammar binaries, e.g.
	// "https://grammars.example.com/%s.so". Empty disables fetching.
	BinaryURL string
	// QueryURLs are highlight-query templates tried in order. The
	// first is also the "known good" query used to recover from a
	// compile mismatch.
	QueryURLs []string
	Logger    *log.Logger
}

type ResolveOptions struct {
	// BinaryURL overrides the configured template, used verbatim.
	BinaryURL string
	// QueryText is used instead of any cached or fetched query when it
	// passes the plausibility check.
	QueryText string
}

// Resolver produces validated, loaded parsers with compiled highlight
// queries. It consults the pool, then the persistent store, then the
// bundled grammars, then the network, healing corrupt cache entries
// along the way. A missing or broken highlight query never fails
// resolution; the parser is returned without highlighting instead.
type Resolver struct {
	store   *Store
	pool    *Pool
	fetcher fetch.Fetcher
	loader  LanguageLoader
	cfg     ResolverConfig
	log     *log.Logger

	// refreshedQueries tracks languages whose query was already
	// refetched after a compile mismatch; missingQueries tracks
	// languages that resolved without a usable query. Both are scoped
	// to this resolver instance so tests and sessions stay isolated.
	mu               sync.Mutex
	refreshedQueries map[string]struct{}
	missingQueries   map[string]struct{}
}

func NewResolver(store *Store, pool *Pool, fetcher fetch.Fetcher, loader LanguageLoader, cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if pool == nil {
		pool = NewPool(DefaultPoolCapacity)
	}
	return &Resolver{
		store:            store,
		pool:             pool,
		fetcher:          fetcher,
		loader:           loader,
		cfg:              cfg,
		log:              logger,
		refreshedQueries: make(map[string]struct{}),
		missingQueries:   make(map[string]struct{}),
	}
}

// Pool exposes the parser pool for lifecycle management (Clear on
// shutdown). The pool is shared by every document.
func (r *Resolver) Pool() *Pool { return r.pool }

// Resolve returns a loaded parser for languageID with a reference held
// for the caller; the caller must Release it when the tokenize call
// finishes.
func (r *Resolver) Resolve(ctx context.Context, languageID string, opts ResolveOptions) (*Loaded, error) {
	if loaded, ok := r.pool.Get(languageID); ok {
		// Explicit query text always gets a compile attempt; the
		// missing marker only suppresses repeat URL fetches.
		skipMissing := opts.QueryText == "" && r.queryKnownMissing(languageID)
		if loaded.Query != nil || !r.wantsQuery(opts) || skipMissing {
			return loaded, nil
		}
		// A parser without highlighting is resident; rebuild it now
		// that a query source is available.
		loaded.Release()
	}
	return r.resolve(ctx, languageID, opts, false)
}

func (r *Resolver) wantsQuery(opts ResolveOptions) bool {
	return opts.QueryText != "" || len(r.cfg.QueryURLs) > 0
}

func (r *Resolver) queryKnownMissing(languageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.missingQueries[languageID]
	return ok
}

func (r *Resolver) resolve(ctx context.Context, languageID string, opts ResolveOptions, retried bool) (*Loaded, error) {
	entry, cached := r.storeGet(languageID)

	language, fetched, fetchedURL, err := r.obtainLanguage(ctx, languageID, opts, entry, cached)
	if err != nil {
		if errors.Is(err, errRetryResolve) && !retried {
			return r.resolve(ctx, languageID, opts, true)
		}
		return nil, err
	}

	queryText, fetchedQuery := r.obtainQueryText(ctx, languageID, opts, entry, cached)

	if fetched != nil || fetchedQuery {
		r.writeBack(languageID, entry, cached, fetched, fetchedURL, queryText)
	}

	query := r.compileQuery(ctx, languageID, language, queryText)
	r.mu.Lock()
	if query == nil && r.wantsQuery(opts) {
		r.missingQueries[languageID] = struct{}{}
	} else {
		delete(r.missingQueries, languageID)
	}
	r.mu.Unlock()

	parser := sitter.NewParser()
	parser.SetLanguage(language)

	loaded := NewLoaded(languageID, language, parser, query)
	r.pool.Put(loaded)
	return loaded, nil
}

// errRetryResolve signals that a corrupt cache entry was deleted and
// resolution should restart once from a clean slate.
var errRetryResolve = errors.New("retry resolution")

// obtainLanguage loads the grammar, preferring the validated cache
// entry, then the bundled set, then a network fetch. It returns the
// fetched binary (nil if none) and the URL it came from for cache
// write-back.
func (r *Resolver) obtainLanguage(ctx context.Context, languageID string, opts ResolveOptions, entry Entry, cached bool) (*sitter.Language, []byte, string, error) {
	if cached && len(entry.Binary) > 0 {
		if ValidateBinary(entry.Binary) != nil {
			r.log.Warn("cached grammar binary is corrupt, refetching",
				logging.FieldLanguage, languageID)
			r.storeDelete(languageID)
			return nil, nil, "", errRetryResolve
		}
		language, loadErr := r.loader.LoadBinary(languageID, entry.Binary)
		if loadErr == nil {
			return language, nil, "", nil
		}
		r.log.Warn("cached grammar binary failed to load",
			logging.FieldLanguage, languageID, logging.FieldError, loadErr)
		r.storeDelete(languageID)
		return nil, nil, "", errRetryResolve
	}

	if language, ok := r.loader.LoadBundled(languageID); ok {
		return language, nil, "", nil
	}

	url := opts.BinaryURL
	if url == "" {
		url = expandURL(r.cfg.BinaryURL, languageID)
	}
	if url == "" || r.fetcher == nil {
		return nil, nil, "", fmt.Errorf("%w: %s", ErrNoGrammar, languageID)
	}

	binary, fetchErr := r.fetcher.FetchBinary(ctx, url)
	if fetchErr != nil {
		return nil, nil, "", fmt.Errorf("%w: %s: %v", ErrNoGrammar, languageID, fetchErr)
	}
	// Never cache or load bytes that fail the header check.
	if err := ValidateBinary(binary); err != nil {
		return nil, nil, "", fmt.Errorf("fetched grammar for %s is invalid: %w", languageID, err)
	}
	language, loadErr := r.loader.LoadBinary(languageID, binary)
	if loadErr != nil {
		return nil, nil, "", fmt.Errorf("%w: %s: %v", ErrNoGrammar, languageID, loadErr)
	}
	return language, binary, url, nil
}

// obtainQueryText falls through explicit text, the cached entry, and
// the candidate URLs. Empty means tokenization proceeds without
// highlighting.
func (r *Resolver) obtainQueryText(ctx context.Context, languageID string, opts ResolveOptions, entry Entry, haveEntry bool) (string, bool) {
	if opts.QueryText != "" {
		if PlausibleQuery(opts.QueryText) {
			return opts.QueryText, false
		}
		r.log.Warn("supplied highlight query is implausible, ignoring",
			logging.FieldLanguage, languageID)
	}

	if haveEntry && PlausibleQuery(entry.QueryText) {
		return entry.QueryText, false
	}

	if text, ok := r.fetchQuery(ctx, languageID); ok {
		return text, true
	}
	return "", false
}

func (r *Resolver) fetchQuery(ctx context.Context, languageID string) (string, bool) {
	if r.fetcher == nil {
		return "", false
	}
	for _, template := range r.cfg.QueryURLs {
		url := expandURL(template, languageID)
		if url == "" {
			continue
		}
		text, err := r.fetcher.FetchText(ctx, url)
		if err != nil {
			r.log.Debug("highlight query fetch failed",
				logging.FieldLanguage, languageID, logging.FieldURL, url, logging.FieldError, err)
			continue
		}
		if !PlausibleQuery(text) {
			r.log.Warn("fetched highlight query is implausible, skipping",
				logging.FieldLanguage, languageID, logging.FieldURL, url)
			continue
		}
		return text, true
	}
	return "", false
}

// compileQuery compiles text against the loaded language. A mismatch
// (e.g. a cached grammar too old for a newer query) triggers exactly
// one refetch of the first candidate query; if that also fails, the
// cached binary is deleted to force a full re-download next time and
// the parser is returned without highlighting.
func (r *Resolver) compileQuery(ctx context.Context, languageID string, language *sitter.Language, text string) *sitter.Query {
	if text == "" {
		return nil
	}

	query, err := sitter.NewQuery([]byte(text), language)
	if err == nil {
		return query
	}
	r.log.Warn("highlight query failed to compile",
		logging.FieldLanguage, languageID, logging.FieldError, err)

	r.mu.Lock()
	_, alreadyRefreshed := r.refreshedQueries[languageID]
	r.refreshedQueries[languageID] = struct{}{}
	r.mu.Unlock()

	if !alreadyRefreshed {
		if fresh, ok := r.fetchQuery(ctx, languageID); ok && fresh != text {
			if query, err := sitter.NewQuery([]byte(fresh), language); err == nil {
				r.writeBackQuery(languageID, fresh)
				return query
			}
		}
	}

	r.storeDelete(languageID)
	return nil
}

// writeBack persists a freshly fetched binary and/or query. Cache
// population is best-effort; failures never fail the resolve call.
func (r *Resolver) writeBack(languageID string, entry Entry, cached bool, binary []byte, binaryURL string, queryText string) {
	if r.store == nil {
		return
	}

	next := Entry{LanguageID: languageID}
	if cached {
		next = entry
	}
	if binary != nil {
		next.Binary = binary
		next.Checksum = Checksum(binary)
		next.SourceURL = binaryURL
	}
	if queryText != "" {
		next.QueryText = queryText
	}

	if err := r.store.Put(next); err != nil {
		r.log.Warn("grammar cache write failed",
			logging.FieldLanguage, languageID, logging.FieldError, err)
	}
}

func (r *Resolver) writeBackQuery(languageID string, queryText string) {
	if r.store == nil {
		return
	}
	entry, cached := r.storeGet(languageID)
	if !cached {
		entry = Entry{LanguageID: languageID}
	}
	entry.QueryText = queryText
	if err := r.store.Put(entry); err != nil {
		r.log.Warn("grammar cache write failed",
			logging.FieldLanguage, languageID, logging.FieldError, err)
	}
}

// storeGet treats any store failure as a miss.
func (r *Resolver) storeGet(languageID string) (Entry, bool) {
	entry, found, err := r.store.Get(languageID)
	if err != nil {
		r.log.Debug("grammar cache unavailable",
			logging.FieldLanguage, languageID, logging.FieldError, err)
		return Entry{}, false
	}
	return entry, found
}

func (r *Resolver) storeDelete(languageID string) {
	if err := r.store.Delete(languageID); err != nil {
		r.log.Debug("grammar cache delete failed",
			logging.FieldLanguage, languageID, logging.FieldError, err)
	}
}

func expandURL(template string, languageID string) string {
	if template == "" {
		return ""
	}
	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, languageID)
	}
	return strings.TrimRight(template, "/") + "/" + languageID
}
