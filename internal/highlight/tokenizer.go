package highlight

import (
	"context"
	"fmt"
	"sort"

	"treelight/internal/grammar"
	"treelight/internal/logging"

	"github.com/charmbracelet/log"
	sitter "github.com/smacker/go-tree-sitter"
)

// LineRange is a half-open, 0-indexed line interval, used to restrict
// tokenization to the visible viewport. It is never persisted.
type LineRange struct {
	StartLine int
	EndLine   int
}

func (r LineRange) Contains(line int) bool {
	return line >= r.StartLine && line < r.EndLine
}

// Pos is a row/column position, both 0-indexed, column in bytes.
type Pos struct {
	Row int
	Col int
}

// Edit describes a single buffer edit in byte offsets and positions,
// the shape incremental reparsing needs.
type Edit struct {
	Start     int
	OldEnd    int
	NewEnd    int
	StartPos  Pos
	OldEndPos Pos
	NewEndPos Pos
}

func (e Edit) input() sitter.EditInput {
	return sitter.EditInput{
		StartIndex:  uint32(e.Start),
		OldEndIndex: uint32(e.OldEnd),
		NewEndIndex: uint32(e.NewEnd),
		StartPoint:  sitter.Point{Row: uint32(e.StartPos.Row), Column: uint32(e.StartPos.Col)},
		OldEndPoint: sitter.Point{Row: uint32(e.OldEndPos.Row), Column: uint32(e.OldEndPos.Col)},
		NewEndPoint: sitter.Point{Row: uint32(e.NewEndPos.Row), Column: uint32(e.NewEndPos.Col)},
	}
}

// Options select the parse mode for one tokenize call. Incremental
// parsing is attempted only when PrevTree is set and carries an
// applied edit; Range limits query execution to a line interval.
type Options struct {
	PrevTree *sitter.Tree
	Range    *LineRange
	// Lines is an optional precomputed index for the content; built on
	// demand when Range is set and Lines is nil.
	Lines *LineIndex
	// Query overrides resolution with explicitly supplied query text
	// (e.g. a language extension shipping its own highlights file).
	Query string
	// BinaryURL overrides the configured grammar location.
	BinaryURL string
}

// Result is one tokenize call's output. The caller owns Tree and must
// Close it (or hand it to a session that does).
type Result struct {
	Tokens []Token
	Tree   *sitter.Tree
}

// grammarSource is the slice of the resolver the tokenizer needs;
// tests substitute fakes.
type grammarSource interface {
	Resolve(ctx context.Context, languageID string, opts grammar.ResolveOptions) (*grammar.Loaded, error)
}

// Tokenizer runs parsers over document text and maps highlight-query
// captures onto token classes. It owns no document state.
type Tokenizer struct {
	grammars grammarSource
	log      *log.Logger
}

func NewTokenizer(resolver *grammar.Resolver, logger *log.Logger) *Tokenizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Tokenizer{grammars: resolver, log: logger}
}

// Tokenize parses content and returns classified tokens sorted by
// start offset (wider token first on ties) plus the parse tree. A
// missing highlight query yields empty tokens and a valid tree.
// Incremental-parse failures fall back to a full parse transparently.
func (t *Tokenizer) Tokenize(ctx context.Context, content string, languageID string, opts Options) (Result, error) {
	loaded, err := t.grammars.Resolve(ctx, languageID, grammar.ResolveOptions{
		QueryText: opts.Query,
		BinaryURL: opts.BinaryURL,
	})
	if err != nil {
		return Result{}, err
	}
	defer loaded.Release()

	source := []byte(content)

	tree, err := t.parse(ctx, loaded, source, opts.PrevTree)
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", languageID, err)
	}
	if tree == nil || tree.RootNode() == nil {
		if tree != nil {
			tree.Close()
		}
		return Result{}, fmt.Errorf("parse %s: no tree produced", languageID)
	}

	if loaded.Query == nil {
		return Result{Tokens: []Token{}, Tree: tree}, nil
	}

	tokens := t.captureTokens(loaded.Query, tree, source, opts)
	return Result{Tokens: tokens, Tree: tree}, nil
}

func (t *Tokenizer) parse(ctx context.Context, loaded *grammar.Loaded, source []byte, prev *sitter.Tree) (*sitter.Tree, error) {
	var tree *sitter.Tree
	err := loaded.WithParser(func(p *sitter.Parser) error {
		if prev != nil {
			incremental, incErr := p.ParseCtx(ctx, prev, source)
			if incErr == nil && incremental != nil && incremental.RootNode() != nil {
				tree = incremental
				return nil
			}
			if incErr != nil {
				t.log.Debug("incremental parse failed, reparsing from scratch",
					logging.FieldLanguage, loaded.LanguageID, logging.FieldError, incErr)
			}
		}
		full, fullErr := p.ParseCtx(ctx, nil, source)
		if fullErr != nil {
			return fullErr
		}
		tree = full
		return nil
	})
	return tree, err
}

// captureTokens executes the compiled query over the tree's root and
// maps captures to classes. With a range, execution is limited to the
// covered rows and tokens are clipped to the range's byte interval so
// every returned token lies inside the viewport.
func (t *Tokenizer) captureTokens(query *sitter.Query, tree *sitter.Tree, source []byte, opts Options) []Token {
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()

	rangeStart, rangeEnd := 0, len(source)
	if opts.Range != nil {
		lines := opts.Lines
		if lines == nil {
			lines = IndexFor(string(source))
		}
		rangeStart = lines.StartOffset(opts.Range.StartLine)
		rangeEnd = lines.StartOffset(opts.Range.EndLine)
		cursor.SetPointRange(
			sitter.Point{Row: uint32(opts.Range.StartLine), Column: 0},
			sitter.Point{Row: uint32(opts.Range.EndLine), Column: 0},
		)
	}

	cursor.Exec(query, tree.RootNode())

	tokens := make([]Token, 0, 64)
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, source)
		for _, capture := range match.Captures {
			start := int(capture.Node.StartByte())
			end := int(capture.Node.EndByte())
			if start < rangeStart {
				start = rangeStart
			}
			if end > rangeEnd {
				end = rangeEnd
			}
			if end <= start {
				continue // zero-width or outside the viewport
			}
			tokens = append(tokens, Token{
				Start: start,
				End:   end,
				Class: ClassForCapture(query.CaptureNameForId(capture.Index)),
			})
		}
	}

	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].Start != tokens[j].Start {
			return tokens[i].Start < tokens[j].Start
		}
		return tokens[i].End-tokens[i].Start > tokens[j].End-tokens[j].Start
	})
	return tokens
}
