// Package model defines core data structures for phptags.
package model

import "strconv"

// TokenKind classifies a lexer token.
type TokenKind int

const (
	Other TokenKind = iota
	Whitespace
	Comment
	InlineHTML
	OpenTag
	CloseTag
	Identifier
	Variable
	String
	Number

	KwNamespace
	KwClass
	KwInterface
	KwFunction
	KwConst
	KwPublic
	KwProtected
	KwPrivate
	KwVar

	NsSeparator
	LBrace
	RBrace
	// CurlyOpen is a brace that opens an interpolation inside a string and
	// is closed by a plain RBrace.
	CurlyOpen
	LParen
	RParen
	Semicolon
)

// Token is a single lexical unit of a source file.
type Token struct {
	Kind TokenKind
	Text string
	Line int
}

// TagKind indicates the kind of declaration a tag points at.
type TagKind string

const (
	Namespace TagKind = "n"
	Interface TagKind = "i"
	Class     TagKind = "c"
	Function  TagKind = "f"
	Constant  TagKind = "d"
	Property  TagKind = "v"
)

// Tag is one entry of the tag index.
type Tag struct {
	Name    string   `json:"name"`
	File    string   `json:"file"`
	Pattern string   `json:"pattern"`
	Kind    TagKind  `json:"kind"`
	Line    int      `json:"line"`
	Scope   string   `json:"scope,omitempty"`
	Extra   []string `json:"extra,omitempty"`
	Access  string   `json:"access,omitempty"`
}

// Clone returns a copy of t that shares no memory with it.
func (t Tag) Clone() Tag {
	if t.Extra != nil {
		t.Extra = append([]string(nil), t.Extra...)
	}
	return t
}

// Fields returns the tab-separated output columns of t, using file as the
// path column.
func (t Tag) Fields(file string) []string {
	fields := []string{t.Name, file, t.Pattern, string(t.Kind), "lineno:" + strconv.Itoa(t.Line)}
	if t.Scope != "" {
		fields = append(fields, t.Scope)
	}
	fields = append(fields, t.Extra...)
	if t.Access != "" {
		fields = append(fields, "access:"+t.Access)
	}
	return fields
}
