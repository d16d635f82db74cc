package grammar

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"treelight/internal/lang"

	"github.com/ebitengine/purego"
	sitter "github.com/smacker/go-tree-sitter"
	bashlang "github.com/smacker/go-tree-sitter/bash"
	clang "github.com/smacker/go-tree-sitter/c"
	cpplang "github.com/smacker/go-tree-sitter/cpp"
	golang "github.com/smacker/go-tree-sitter/golang"
	jslang "github.com/smacker/go-tree-sitter/javascript"
	python "github.com/smacker/go-tree-sitter/python"
	rust "github.com/smacker/go-tree-sitter/rust"
	toml "github.com/smacker/go-tree-sitter/toml"
	tsxlang "github.com/smacker/go-tree-sitter/typescript/tsx"
	tslang "github.com/smacker/go-tree-sitter/typescript/typescript"
	yaml "github.com/smacker/go-tree-sitter/yaml"
	tsjson "github.com/tree-sitter/tree-sitter-json/bindings/go"
)

// LanguageLoader turns a language identifier into an instantiated
// tree-sitter language, either from the bundled grammars compiled into
// the binary or from fetched grammar-binary bytes.
type LanguageLoader interface {
	LoadBundled(languageID string) (*sitter.Language, bool)
	LoadBinary(languageID string, binary []byte) (*sitter.Language, error)
}

// Loader is the default LanguageLoader. Fetched binaries are written
// under Dir and opened as shared libraries; the bundled set covers the
// languages linked into the build.
type Loader struct {
	Dir string

	bundled map[string]func() *sitter.Language
}

func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir, bundled: bundledLanguages}
}

var bundledLanguages = map[string]func() *sitter.Language{
	string(lang.Go):         golang.GetLanguage,
	string(lang.Rust):       rust.GetLanguage,
	string(lang.Python):     python.GetLanguage,
	string(lang.JavaScript): jslang.GetLanguage,
	string(lang.TypeScript): tslang.GetLanguage,
	string(lang.TSX):        tsxlang.GetLanguage,
	string(lang.YAML):       yaml.GetLanguage,
	string(lang.TOML):       toml.GetLanguage,
	string(lang.Bash):       bashlang.GetLanguage,
	string(lang.C):          clang.GetLanguage,
	string(lang.CPP):        cpplang.GetLanguage,
	string(lang.JSON): func() *sitter.Language {
		return sitter.NewLanguage(tsjson.Language())
	},
}

func (l *Loader) LoadBundled(languageID string) (*sitter.Language, bool) {
	factory, ok := l.bundled[languageID]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// LoadBinary validates the binary, writes it to the loader directory,
// and opens it as a shared library exporting tree_sitter_<symbol>.
func (l *Loader) LoadBinary(languageID string, binary []byte) (*sitter.Language, error) {
	if err := ValidateBinary(binary); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("grammar dir: %w", err)
	}

	path := filepath.Join(l.Dir, languageID+".so")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, binary, 0o644); err != nil {
		return nil, fmt.Errorf("write grammar: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("write grammar: %w", err)
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("open grammar %s: %w", path, err)
	}

	symbol := "tree_sitter_" + lang.Symbol(lang.ID(languageID))
	sym, err := purego.Dlsym(handle, symbol)
	if err != nil {
		return nil, fmt.Errorf("grammar %s: %w", languageID, err)
	}

	ptr, _, _ := purego.SyscallN(sym)
	if ptr == 0 {
		return nil, fmt.Errorf("grammar %s: %s returned nil", languageID, symbol)
	}
	return sitter.NewLanguage(unsafe.Pointer(ptr)), nil
}
