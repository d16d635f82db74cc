package highlight

import (
	"sort"
	"strings"
	"sync"
)

// NormalizeLineEndings rewrites CRLF and bare CR to LF. Every offset
// in the pipeline is defined against normalized text, so content must
// pass through here before the tokenizer or the line index sees it.
// Normalizing already-normalized text returns it unchanged.
func NormalizeLineEndings(content string) string {
	if !strings.ContainsRune(content, '\r') {
		return content
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}

// LineIndex maps line numbers to byte offsets of one content value.
// Lines are 0-indexed; ranges are half-open.
type LineIndex struct {
	content string
	starts  []int
}

func NewLineIndex(content string) *LineIndex {
	starts := make([]int, 1, 64)
	starts[0] = 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{content: content, starts: starts}
}

func (ix *LineIndex) LineCount() int {
	return len(ix.starts)
}

// StartOffset returns the byte offset of the first character of line,
// clamped to the content bounds. line == LineCount() yields
// len(content), which makes half-open line ranges composable.
func (ix *LineIndex) StartOffset(line int) int {
	if line < 0 {
		return 0
	}
	if line >= len(ix.starts) {
		return len(ix.content)
	}
	return ix.starts[line]
}

// EndOffset returns the offset one past the last character of line,
// excluding its newline.
func (ix *LineIndex) EndOffset(line int) int {
	if line < 0 {
		return 0
	}
	if line+1 < len(ix.starts) {
		return ix.starts[line+1] - 1
	}
	return len(ix.content)
}

// LineFor returns the line containing the byte offset.
func (ix *LineIndex) LineFor(offset int) int {
	if offset <= 0 {
		return 0
	}
	if offset >= len(ix.content) {
		return len(ix.starts) - 1
	}
	// First line starting after offset, minus one.
	i := sort.SearchInts(ix.starts, offset+1)
	return i - 1
}

// Line returns the text of line without its newline.
func (ix *LineIndex) Line(line int) string {
	return ix.content[ix.StartOffset(line):ix.EndOffset(line)]
}

// lineIndexCache memoizes the index for the most recent content value,
// keyed by exact string equality. Process-wide, shared by session and
// renderer so both see one index per snapshot.
type lineIndexCache struct {
	mu      sync.Mutex
	content string
	index   *LineIndex
}

var sharedLineIndexes lineIndexCache

// IndexFor returns a line index for content, reusing the memoized one
// when the content is unchanged.
func IndexFor(content string) *LineIndex {
	return sharedLineIndexes.indexFor(content)
}

func (c *lineIndexCache) indexFor(content string) *LineIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index != nil && c.content == content {
		return c.index
	}
	c.index = NewLineIndex(content)
	c.content = content
	return c.index
}

// LineSpan is one token's coverage of a single line, clipped to the
// line's boundaries. Offsets are relative to the line start.
type LineSpan struct {
	Start int
	End   int
	Class Class
}

// SliceByLine maps a flat token list onto per-line spans for display.
// Tokens are sorted by start offset, wider token first on ties. When
// two tokens overlap the earlier-sorted token wins and the later
// token's overlapped head is skipped. Tokens outside the content are
// clipped or dropped.
func SliceByLine(content string, tokens []Token) [][]LineSpan {
	ix := IndexFor(content)
	out := make([][]LineSpan, ix.LineCount())
	if len(tokens) == 0 {
		return out
	}

	sorted := make([]Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	consumed := 0 // end of the last emitted span, for first-token-wins
	for _, tok := range sorted {
		start := tok.Start
		end := tok.End
		if start < consumed {
			start = consumed
		}
		if start < 0 {
			start = 0
		}
		if end > len(content) {
			end = len(content)
		}
		if end <= start {
			continue
		}
		consumed = end

		for line := ix.LineFor(start); line < ix.LineCount(); line++ {
			lineStart := ix.StartOffset(line)
			lineEnd := ix.EndOffset(line)
			if lineStart >= end {
				break
			}
			s := max(start, lineStart)
			e := min(end, lineEnd)
			if e > s {
				out[line] = append(out[line], LineSpan{
					Start: s - lineStart,
					End:   e - lineStart,
					Class: tok.Class,
				})
			}
		}
	}
	return out
}
