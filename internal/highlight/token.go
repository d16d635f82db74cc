// Package highlight turns document text into positioned, classified
// tokens: the tokenizer runs a parser and highlight query, the
// document session decides between full, incremental, and viewport
// tokenization, and the line mapper slices tokens for renderers.
package highlight

import "strings"

// Class is an editor token category from a closed vocabulary. Many
// grammars share this one rendering vocabulary; grammar-specific
// capture names are mapped onto it.
type Class string

const (
	ClassKeyword     Class = "keyword"
	ClassString      Class = "string"
	ClassNumber      Class = "number"
	ClassComment     Class = "comment"
	ClassFunction    Class = "function"
	ClassVariable    Class = "variable"
	ClassType        Class = "type"
	ClassProperty    Class = "property"
	ClassTag         Class = "tag"
	ClassOperator    Class = "operator"
	ClassPunctuation Class = "punctuation"
	ClassConstant    Class = "constant"
	ClassEmbedded    Class = "embedded"
	ClassText        Class = "text"
)

// Token is a classified span of document text. Offsets are byte
// offsets into the normalized content. End > Start always holds for
// tokens produced by the tokenizer; ordering and non-overlap are not
// guaranteed and consumers must tolerate both.
type Token struct {
	Start int
	End   int
	Class Class
}

// captureClasses maps highlight-query capture names onto the editor
// vocabulary. Dotted captures fall back through their prefix, so
// "keyword.control.import" resolves via "keyword.control" and then
// "keyword".
var captureClasses = map[string]Class{
	"keyword":               ClassKeyword,
	"keyword.control":       ClassKeyword,
	"keyword.function":      ClassKeyword,
	"keyword.return":        ClassKeyword,
	"keyword.operator":      ClassOperator,
	"conditional":           ClassKeyword,
	"repeat":                ClassKeyword,
	"include":               ClassKeyword,
	"label":                 ClassKeyword,
	"string":                ClassString,
	"string.special":        ClassString,
	"string.escape":         ClassString,
	"escape":                ClassString,
	"character":             ClassString,
	"number":                ClassNumber,
	"float":                 ClassNumber,
	"comment":               ClassComment,
	"comment.documentation": ClassComment,
	"function":              ClassFunction,
	"function.builtin":      ClassFunction,
	"function.method":       ClassFunction,
	"function.macro":        ClassFunction,
	"method":                ClassFunction,
	"constructor":           ClassFunction,
	"variable":              ClassVariable,
	"variable.builtin":      ClassVariable,
	"variable.parameter":    ClassVariable,
	"parameter":             ClassVariable,
	"type":                  ClassType,
	"type.builtin":          ClassType,
	"namespace":             ClassType,
	"module":                ClassType,
	"property":              ClassProperty,
	"field":                 ClassProperty,
	"attribute":             ClassProperty,
	"tag":                   ClassTag,
	"tag.attribute":         ClassTag,
	"operator":              ClassOperator,
	"punctuation":           ClassPunctuation,
	"punctuation.bracket":   ClassPunctuation,
	"punctuation.delimiter": ClassPunctuation,
	"punctuation.special":   ClassPunctuation,
	"constant":              ClassConstant,
	"constant.builtin":      ClassConstant,
	"boolean":               ClassConstant,
	"embedded":              ClassEmbedded,
	"text":                  ClassText,
}

// ClassForCapture maps a capture name to its token class, defaulting
// to ClassText for captures no grammar mapping covers.
func ClassForCapture(name string) Class {
	for {
		if class, ok := captureClasses[name]; ok {
			return class
		}
		dot := strings.LastIndexByte(name, '.')
		if dot < 0 {
			return ClassText
		}
		name = name[:dot]
	}
}
