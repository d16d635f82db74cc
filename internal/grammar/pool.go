package grammar

import (
	"container/list"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// DefaultPoolCapacity bounds the number of simultaneously loaded
// parsers held by the pool.
const DefaultPoolCapacity = 10

// Loaded is an instantiated parser for one language, optionally with a
// compiled highlight query. The parser and query wrap native memory
// and must be released explicitly; Loaded reference-counts so that the
// pool can evict an entry while a tokenize call still uses it.
type Loaded struct {
	LanguageID string
	Language   *sitter.Language
	Parser     *sitter.Parser
	Query      *sitter.Query

	// parseMu serializes use of the shared parser handle.
	parseMu sync.Mutex

	refMu  sync.Mutex
	refs   int
	closed bool
}

// NewLoaded returns a Loaded holding one reference for the caller.
func NewLoaded(languageID string, language *sitter.Language, parser *sitter.Parser, query *sitter.Query) *Loaded {
	return &Loaded{
		LanguageID: languageID,
		Language:   language,
		Parser:     parser,
		Query:      query,
		refs:       1,
	}
}

// Acquire takes an additional reference. It returns false if the last
// reference was already released.
func (l *Loaded) Acquire() bool {
	l.refMu.Lock()
	defer l.refMu.Unlock()
	if l.closed {
		return false
	}
	l.refs++
	return true
}

// Release drops one reference. When the last reference is dropped the
// native parser and query handles are closed synchronously.
func (l *Loaded) Release() {
	l.refMu.Lock()
	l.refs--
	done := l.refs <= 0 && !l.closed
	if done {
		l.closed = true
	}
	l.refMu.Unlock()

	if !done {
		return
	}
	if l.Query != nil {
		l.Query.Close()
	}
	if l.Parser != nil {
		l.Parser.Close()
	}
}

// WithParser runs fn with exclusive use of the parser handle.
func (l *Loaded) WithParser(fn func(p *sitter.Parser) error) error {
	l.parseMu.Lock()
	defer l.parseMu.Unlock()
	return fn(l.Parser)
}

type poolEntry struct {
	languageID string
	loaded     *Loaded
}

// Pool is a bounded least-recently-used cache of loaded parsers, at
// most one per language. Evicted entries release the pool's reference
// before the entry is considered gone.
type Pool struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	return &Pool{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// Get returns the loaded parser for languageID with a reference held
// for the caller, marking it most recently used.
func (p *Pool) Get(languageID string) (*Loaded, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elem, ok := p.items[languageID]
	if !ok {
		return nil, false
	}
	p.ll.MoveToFront(elem)
	loaded := elem.Value.(poolEntry).loaded
	if !loaded.Acquire() {
		return nil, false
	}
	return loaded, true
}

// Put installs loaded as the pool's entry for its language, taking its
// own reference. Any previous entry for the same language, or the
// least-recently-used entry when at capacity, is released first.
func (p *Pool) Put(loaded *Loaded) {
	if loaded == nil || !loaded.Acquire() {
		return
	}

	p.mu.Lock()

	var victims []*Loaded
	if elem, ok := p.items[loaded.LanguageID]; ok {
		victims = append(victims, elem.Value.(poolEntry).loaded)
		delete(p.items, loaded.LanguageID)
		p.ll.Remove(elem)
	}

	elem := p.ll.PushFront(poolEntry{languageID: loaded.LanguageID, loaded: loaded})
	p.items[loaded.LanguageID] = elem

	for p.ll.Len() > p.capacity {
		back := p.ll.Back()
		if back == nil {
			break
		}
		entry := back.Value.(poolEntry)
		victims = append(victims, entry.loaded)
		delete(p.items, entry.languageID)
		p.ll.Remove(back)
	}

	p.mu.Unlock()

	// In-flight tokenize calls hold their own references, so releasing
	// here only drops the pool's share.
	for _, v := range victims {
		v.Release()
	}
}

// Delete removes and releases the entry for languageID.
func (p *Pool) Delete(languageID string) {
	p.mu.Lock()
	elem, ok := p.items[languageID]
	var victim *Loaded
	if ok {
		victim = elem.Value.(poolEntry).loaded
		delete(p.items, languageID)
		p.ll.Remove(elem)
	}
	p.mu.Unlock()

	if victim != nil {
		victim.Release()
	}
}

// Clear releases every entry.
func (p *Pool) Clear() {
	p.mu.Lock()
	victims := make([]*Loaded, 0, p.ll.Len())
	for elem := p.ll.Front(); elem != nil; elem = elem.Next() {
		victims = append(victims, elem.Value.(poolEntry).loaded)
	}
	p.ll.Init()
	p.items = make(map[string]*list.Element, p.capacity)
	p.mu.Unlock()

	for _, v := range victims {
		v.Release()
	}
}

// Len reports the number of resident entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ll.Len()
}
