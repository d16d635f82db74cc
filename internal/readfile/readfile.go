// Package readfile reads documents with the line-ending normalization
// the tokenization pipeline requires.
package readfile

import (
	"os"

	"treelight/internal/highlight"
)

// ReadNormalized returns the file's content with CRLF/CR rewritten to
// LF. All token offsets are defined against this normalized form.
func ReadNormalized(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return highlight.NormalizeLineEndings(string(data)), nil
}
