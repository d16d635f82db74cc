package highlight

import (
	"context"
	"sort"
	"sync"
	"time"

	"treelight/internal/logging"

	"github.com/charmbracelet/log"
	sitter "github.com/smacker/go-tree-sitter"
)

// SessionConfig sets the tokenization policy thresholds.
type SessionConfig struct {
	// SmallFileLines: documents below this always full-tokenize; the
	// bookkeeping of range mode costs more than it saves.
	SmallFileLines int
	// HugeFileLines: documents above this tokenize strictly the
	// requested viewport, with no merging against earlier tokens.
	HugeFileLines int
	// RefreshInterval forces a periodic full tokenize to self-heal any
	// drift between cached partial-range tokens and reality.
	RefreshInterval time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SmallFileLines <= 0 {
		c.SmallFileLines = 1000
	}
	if c.HugeFileLines <= 0 {
		c.HugeFileLines = 10000
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 5 * time.Second
	}
	return c
}

// tokenizeFunc is the tokenizer seam; tests inject fakes.
type tokenizeFunc func(ctx context.Context, content string, languageID string, opts Options) (Result, error)

// Session holds per-document tokenization state: the previous parse
// tree for incremental reparsing, the cached token list for range
// merging, and the policy clock. Tokenize calls may overlap in time;
// each carries a generation marker and stale completions are dropped
// rather than applied.
type Session struct {
	languageID string
	cfg        SessionConfig
	tokenize   tokenizeFunc
	log        *log.Logger
	now        func() time.Time

	mu          sync.Mutex
	tree        *sitter.Tree
	editPending bool
	tokens      []Token
	lastFull    time.Time
	gen         uint64
}

func NewSession(tok *Tokenizer, languageID string, cfg SessionConfig, logger *log.Logger) *Session {
	if logger == nil {
		logger = logging.Default()
	}
	return &Session{
		languageID: languageID,
		cfg:        cfg.withDefaults(),
		tokenize:   tok.Tokenize,
		log:        logger,
		now:        time.Now,
	}
}

// ApplyEdit records a buffer edit so the next tokenize call can reparse
// incrementally. The session's tree is its own; editing it here is safe
// because no other buffer shares it.
func (s *Session) ApplyEdit(edit Edit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree != nil {
		s.tree.Edit(edit.input())
		s.editPending = true
	}
}

// Tokenize returns tokens for content, choosing full, range-merge, or
// viewport-only tokenization per the session policy. The returned list
// is always sorted ascending by start offset. Failures degrade to an
// empty token list; the user keeps their text either way.
func (s *Session) Tokenize(ctx context.Context, content string, viewport *LineRange) []Token {
	content = NormalizeLineEndings(content)
	lines := IndexFor(content)
	lineCount := lines.LineCount()

	s.mu.Lock()
	gen := s.nextGenLocked()
	mode := s.chooseModeLocked(lineCount, viewport)
	prev := s.incrementalTreeLocked()
	s.mu.Unlock()

	switch mode {
	case modeFull:
		return s.runFull(ctx, gen, content, prev)
	case modeViewportOnly:
		return s.runRange(ctx, gen, content, lines, *viewport, false)
	default:
		return s.runRange(ctx, gen, content, lines, *viewport, true)
	}
}

// ForceFullTokenize bypasses the policy, for callers that know a full
// refresh is required (e.g. a language extension was just installed).
func (s *Session) ForceFullTokenize(ctx context.Context, content string) []Token {
	content = NormalizeLineEndings(content)
	s.mu.Lock()
	gen := s.nextGenLocked()
	prev := s.incrementalTreeLocked()
	s.mu.Unlock()
	return s.runFull(ctx, gen, content, prev)
}

// Tokens returns the most recently applied token list.
func (s *Session) Tokens() []Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// Close releases the session's parse tree.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree != nil {
		s.tree.Close()
		s.tree = nil
	}
	s.editPending = false
}

type parseMode int

const (
	modeFull parseMode = iota
	modeRangeMerge
	modeViewportOnly
)

func (s *Session) nextGenLocked() uint64 {
	s.gen++
	return s.gen
}

func (s *Session) chooseModeLocked(lineCount int, viewport *LineRange) parseMode {
	switch {
	case viewport == nil:
		return modeFull
	case lineCount < s.cfg.SmallFileLines:
		return modeFull
	case s.now().Sub(s.lastFull) >= s.cfg.RefreshInterval:
		return modeFull
	case lineCount > s.cfg.HugeFileLines:
		return modeViewportOnly
	default:
		return modeRangeMerge
	}
}

// incrementalTreeLocked hands out the previous tree only when an edit
// has been applied to it; a tree without a recorded edit would make
// the reparse reuse stale structure for changed text.
func (s *Session) incrementalTreeLocked() *sitter.Tree {
	if s.tree == nil || !s.editPending {
		return nil
	}
	return s.tree
}

func (s *Session) runFull(ctx context.Context, gen uint64, content string, prev *sitter.Tree) []Token {
	res, err := s.tokenize(ctx, content, s.languageID, Options{PrevTree: prev})
	if err != nil {
		s.log.Warn("tokenize failed",
			logging.FieldLanguage, s.languageID, logging.FieldError, err)
		return []Token{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// A newer call superseded this one while it was parsing.
		if res.Tree != nil {
			res.Tree.Close()
		}
		return res.Tokens
	}
	s.replaceTreeLocked(res.Tree)
	s.tokens = res.Tokens
	s.lastFull = s.now()
	return res.Tokens
}

func (s *Session) runRange(ctx context.Context, gen uint64, content string, lines *LineIndex, viewport LineRange, merge bool) []Token {
	res, err := s.tokenize(ctx, content, s.languageID, Options{
		PrevTree: s.incrementalTreeSnapshot(),
		Range:    &viewport,
		Lines:    lines,
	})
	if err != nil {
		s.log.Debug("range tokenize failed, falling back to full",
			logging.FieldLanguage, s.languageID, logging.FieldError, err)
		return s.runFull(ctx, gen, content, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		if res.Tree != nil {
			res.Tree.Close()
		}
		return res.Tokens
	}

	tokens := res.Tokens
	if merge {
		start := lines.StartOffset(viewport.StartLine)
		end := lines.StartOffset(viewport.EndLine)
		tokens = mergeTokens(s.tokens, res.Tokens, start, end)
	}

	s.replaceTreeLocked(res.Tree)
	s.tokens = tokens
	return tokens
}

func (s *Session) incrementalTreeSnapshot() *sitter.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementalTreeLocked()
}

func (s *Session) replaceTreeLocked(tree *sitter.Tree) {
	if s.tree != nil && s.tree != tree {
		s.tree.Close()
	}
	s.tree = tree
	s.editPending = false
}

// mergeTokens keeps previous tokens lying entirely outside the
// re-tokenized byte interval, replaces everything inside it with the
// fresh tokens, and returns the union sorted by start offset.
func mergeTokens(previous []Token, fresh []Token, start int, end int) []Token {
	merged := make([]Token, 0, len(previous)+len(fresh))
	for _, tok := range previous {
		if tok.End <= start || tok.Start >= end {
			merged = append(merged, tok)
		}
	}
	merged = append(merged, fresh...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
	return merged
}
