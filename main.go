package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"treelight/internal/fetch"
	"treelight/internal/grammar"
	"treelight/internal/highlight"
	"treelight/internal/lang"
	"treelight/internal/logging"
	"treelight/internal/readfile"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type config struct {
	Theme     string
	Lang      string
	CacheDir  string
	BinaryURL string
	QueryURLs []string
	LogLevel  string
	Stats     bool
}

type model struct {
	cfg config

	width  int
	height int

	path    string
	content string
	lines   *highlight.LineIndex
	langID  lang.ID
	session *highlight.Session

	spans      [][]highlight.LineSpan
	tokenCount int

	cursor int
	offset int

	gotoInput  textinput.Model
	gotoActive bool

	status string
	errMsg string
}

func newModel(cfg config, path string, content string, langID lang.ID, session *highlight.Session) model {
	input := textinput.New()
	input.Prompt = "goto line> "
	input.CharLimit = 10
	input.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(appTheme.Accent))

	return model{
		cfg:       cfg,
		path:      path,
		content:   content,
		lines:     highlight.IndexFor(content),
		langID:    langID,
		session:   session,
		gotoInput: input,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.gotoInput.Width = max(10, min(30, m.width-14))
		m.ensureCursor()
		m.retokenize(false)
		return m, nil

	case tea.KeyMsg:
		if m.gotoActive {
			return m.updateGoto(msg)
		}

		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.session.Close()
			return m, tea.Quit
		case "up", "k", "ctrl+p":
			m.moveCursor(-1)
		case "down", "j", "ctrl+n":
			m.moveCursor(1)
		case "pgup", "ctrl+u":
			m.moveCursor(-m.bodyHeight())
		case "pgdown", "ctrl+d":
			m.moveCursor(m.bodyHeight())
		case "home":
			m.cursor = 0
			m.ensureCursor()
			m.retokenize(false)
		case "end", "G":
			m.cursor = m.lines.LineCount() - 1
			m.ensureCursor()
			m.retokenize(false)
		case "g":
			m.gotoActive = true
			m.gotoInput.SetValue("")
			m.gotoInput.Focus()
		case "r":
			m.retokenize(true)
			m.status = "re-tokenized"
		}
		return m, nil
	}

	return m, nil
}

func (m model) updateGoto(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.gotoActive = false
		m.gotoInput.Blur()
		return m, nil
	case "enter":
		m.gotoActive = false
		m.gotoInput.Blur()
		value := strings.TrimSpace(m.gotoInput.Value())
		line := 0
		if _, err := fmt.Sscanf(value, "%d", &line); err != nil || line < 1 {
			m.status = "not a line number: " + value
			return m, nil
		}
		m.cursor = clamp(line-1, 0, m.lines.LineCount()-1)
		m.ensureCursor()
		m.retokenize(false)
		m.status = fmt.Sprintf("line %d", m.cursor+1)
		return m, nil
	}

	var cmd tea.Cmd
	m.gotoInput, cmd = m.gotoInput.Update(msg)
	return m, cmd
}

func (m *model) moveCursor(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, m.lines.LineCount()-1)
	m.ensureCursor()
	m.retokenize(false)
}

func (m *model) ensureCursor() {
	total := m.lines.LineCount()
	m.cursor = clamp(m.cursor, 0, max(0, total-1))

	page := m.bodyHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
	m.offset = clamp(m.offset, 0, max(0, total-page))
}

// retokenize asks the session for tokens covering the visible lines
// and reslices them for rendering. The session decides whether that
// means a full, merged, or viewport-only tokenize.
func (m *model) retokenize(force bool) {
	var tokens []highlight.Token
	if force {
		tokens = m.session.ForceFullTokenize(context.Background(), m.content)
	} else {
		viewport := m.viewport()
		tokens = m.session.Tokenize(context.Background(), m.content, &viewport)
	}
	m.tokenCount = len(tokens)
	m.spans = highlight.SliceByLine(m.content, tokens)
}

func (m model) viewport() highlight.LineRange {
	page := m.bodyHeight()
	return highlight.LineRange{
		StartLine: m.offset,
		EndLine:   min(m.lines.LineCount(), m.offset+page),
	}
}

func (m model) bodyHeight() int {
	headerHeight := 1
	footerHeight := 1
	return max(1, m.height-headerHeight-footerHeight)
}

func main() {
	var cfg config
	flag.StringVar(&cfg.Theme, "theme", "nord", "color theme (for example: nord, dracula, monokai, github, solarized-dark)")
	flag.StringVar(&cfg.Lang, "lang", "", "language override (for example: go, rust, json)")
	flag.StringVar(&cfg.CacheDir, "cache", "", "grammar cache directory (default: user cache dir)")
	flag.StringVar(&cfg.BinaryURL, "binary-url", "", "grammar binary URL template, %s expands to the language")
	queryURLs := flag.String("query-urls", "", "comma separated highlight query URL templates, %s expands to the language")
	flag.StringVar(&cfg.LogLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flag.BoolVar(&cfg.Stats, "stats", false, "print grammar cache contents and exit")
	flag.Parse()

	for _, u := range strings.Split(*queryURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			cfg.QueryURLs = append(cfg.QueryURLs, u)
		}
	}

	logger := logging.New(cfg.LogLevel)

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		cacheDir = filepath.Join(base, "treelight")
	}

	store, err := grammar.OpenStore(filepath.Join(cacheDir, "grammars.db"))
	if err != nil {
		// A broken cache degrades to bundled grammars and refetching.
		logger.Warn("grammar cache unavailable", logging.FieldError, err)
		store = nil
	}
	defer store.Close()

	if cfg.Stats {
		if err := printStoreStats(store); err != nil {
			fmt.Fprintf(os.Stderr, "treelight: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := SetTheme(cfg.Theme); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -theme: %v\n", err)
		os.Exit(1)
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: treelight [flags] <file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	content, err := readfile.ReadNormalized(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}

	langID := lang.ID(strings.TrimSpace(cfg.Lang))
	if langID == "" {
		firstLine, _, _ := strings.Cut(content, "\n")
		langID = lang.DetectWithShebang(path, firstLine)
	}

	pool := grammar.NewPool(grammar.DefaultPoolCapacity)
	fetcher := fetch.NewClient(15 * time.Second)
	loader := grammar.NewLoader(filepath.Join(cacheDir, "lib"))
	resolver := grammar.NewResolver(store, pool, fetcher, loader, grammar.ResolverConfig{
		BinaryURL: cfg.BinaryURL,
		QueryURLs: cfg.QueryURLs,
		Logger:    logger,
	})
	tokenizer := highlight.NewTokenizer(resolver, logger)
	session := highlight.NewSession(tokenizer, string(langID), highlight.SessionConfig{}, logger)

	m := newModel(cfg, path, content, langID, session)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "treelight failed: %v\n", err)
		os.Exit(1)
	}
}

func printStoreStats(store *grammar.Store) error {
	entries, err := store.List()
	if err != nil {
		return err
	}
	stats, err := store.Stats()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("grammar cache is empty")
		return nil
	}

	for _, e := range entries {
		query := "no query"
		if e.QueryText != "" {
			query = "query cached"
		}
		source := e.SourceURL
		if source == "" {
			source = "(bundled)"
		}
		fmt.Printf("%-12s %10s  %-12s  last used %s  %s\n",
			e.LanguageID, humanSize(e.SizeBytes), query,
			e.LastUsedAt.Format("2006-01-02 15:04"), source)
	}
	fmt.Printf("\n%d grammars, %s total\n", stats.Count, humanSize(stats.TotalSizeBytes))
	return nil
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
