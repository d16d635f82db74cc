// Package grammar manages parser grammars: the persistent binary
// cache, the in-memory pool of loaded parsers, and the resolver that
// turns a language identifier into a ready-to-use parser and compiled
// highlight query.
package grammar

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// entrySchemaVersion is bumped whenever the encoded Entry shape
// changes; older entries are treated as absent.
const entrySchemaVersion = 1

// Entry is a cached grammar: the compiled parser binary, the highlight
// query text, and provenance.
type Entry struct {
	LanguageID   string
	Binary       []byte
	QueryText    string
	Version      int
	Checksum     string
	DownloadedAt time.Time
	LastUsedAt   time.Time
	SizeBytes    int64
	SourceURL    string
}

var (
	ErrBadBinary = errors.New("grammar binary failed validation")

	binaryMagics = [][]byte{
		{0x00, 0x61, 0x73, 0x6d}, // WebAssembly
		{0x7f, 0x45, 0x4c, 0x46}, // ELF
		{0xcf, 0xfa, 0xed, 0xfe}, // Mach-O 64-bit
		{0xce, 0xfa, 0xed, 0xfe}, // Mach-O 32-bit
		{0xca, 0xfe, 0xba, 0xbe}, // Mach-O universal
	}
)

// ValidateBinary checks that the bytes begin with a known magic header
// for a grammar binary (WebAssembly module, ELF, or Mach-O shared
// object). Truncated downloads and HTML error pages fail here.
func ValidateBinary(binary []byte) error {
	if len(binary) < 8 {
		return ErrBadBinary
	}
	for _, magic := range binaryMagics {
		if bytes.HasPrefix(binary, magic) {
			return nil
		}
	}
	return ErrBadBinary
}

// Checksum returns the hex sha256 of the binary, recorded as
// provenance on write and verified on read.
func Checksum(binary []byte) string {
	sum := sha256.Sum256(binary)
	return hex.EncodeToString(sum[:])
}

// Valid reports whether the entry still passes the magic and checksum
// checks. Invalid entries are deleted by callers to force
// re-acquisition. Entries with no binary are query-only records for
// languages whose grammar ships with the build.
func (e *Entry) Valid() bool {
	if e.LanguageID == "" {
		return false
	}
	if len(e.Binary) == 0 {
		return e.QueryText != ""
	}
	if ValidateBinary(e.Binary) != nil {
		return false
	}
	if e.Checksum != "" && e.Checksum != Checksum(e.Binary) {
		return false
	}
	return true
}

// PlausibleQuery reports whether text looks like a highlight query
// rather than a substituted error page. Queries start with a comment
// marker, bracket, paren, or quote; an HTML 404 body starts with "<".
func PlausibleQuery(text string) bool {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case ';', '(', '[', '"', '#':
		return true
	default:
		return false
	}
}
