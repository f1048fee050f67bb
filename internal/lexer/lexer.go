// Package lexer turns PHP source into a flat token stream using the
// tree-sitter PHP grammar.
package lexer

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"

	"github.com/phobologic/phptags/internal/model"
)

// Extensions lists the file name patterns PHP sources usually match.
var Extensions = []string{"*.php"}

var keywords = map[string]model.TokenKind{
	"namespace": model.KwNamespace,
	"class":     model.KwClass,
	"interface": model.KwInterface,
	"function":  model.KwFunction,
	"const":     model.KwConst,
	"public":    model.KwPublic,
	"protected": model.KwProtected,
	"private":   model.KwPrivate,
	"var":       model.KwVar,
}

var punctuation = map[string]model.TokenKind{
	"{":  model.LBrace,
	"}":  model.RBrace,
	"${": model.CurlyOpen,
	"(":  model.LParen,
	")":  model.RParen,
	";":  model.Semicolon,
	`\`:  model.NsSeparator,
	"?>": model.CloseTag,
}

// stringNodes are node types whose descendants are string contents.
var stringNodes = map[string]struct{}{
	"string":                   {},
	"encapsed_string":          {},
	"heredoc":                  {},
	"heredoc_body":             {},
	"nowdoc":                   {},
	"shell_command_expression": {},
}

// atomicNodes are emitted as one token even though they have children.
var atomicNodes = map[string]model.TokenKind{
	"variable_name": model.Variable,
}

// Lexer tokenizes PHP files. A Lexer is not safe for concurrent use.
type Lexer struct {
	parser *sitter.Parser
}

// New creates a Lexer with its own tree-sitter parser.
func New() *Lexer {
	p := sitter.NewParser()
	p.SetLanguage(php.GetLanguage())
	return &Lexer{parser: p}
}

// Tokenize parses source and returns its tokens in source order. The texts
// of the returned tokens concatenate to source exactly.
func (l *Lexer) Tokenize(ctx context.Context, source []byte) ([]model.Token, error) {
	if len(source) == 0 {
		return nil, nil
	}

	tree, err := l.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing source: %w", err)
	}
	defer tree.Close()

	w := &walker{source: source, line: 1}
	w.walk(tree.RootNode(), false)
	w.gap(uint32(len(source)))
	return w.tokens, nil
}

type walker struct {
	source []byte
	pos    uint32
	line   int
	tokens []model.Token
}

func (w *walker) walk(node *sitter.Node, inString bool) {
	if node.IsMissing() || node.StartByte() == node.EndByte() {
		return
	}

	typ := node.Type()
	if kind, ok := atomicNodes[typ]; ok {
		w.leaf(node, kind)
		return
	}
	if node.ChildCount() == 0 {
		w.leaf(node, classify(node, w.text(node), inString))
		return
	}

	if _, ok := stringNodes[typ]; ok {
		inString = true
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		w.walk(node.Child(i), inString)
	}
}

func (w *walker) leaf(node *sitter.Node, kind model.TokenKind) {
	start, end := node.StartByte(), node.EndByte()
	if end <= w.pos {
		return
	}
	if start < w.pos {
		start = w.pos
	}
	w.gap(start)
	w.emit(kind, string(w.source[start:end]))
	w.pos = end
}

// gap emits the bytes between the previous leaf and end, which the grammar
// does not cover with a node.
func (w *walker) gap(end uint32) {
	if end <= w.pos {
		return
	}
	text := string(w.source[w.pos:end])
	kind := model.Whitespace
	if strings.TrimSpace(text) != "" {
		kind = model.Other
	}
	w.emit(kind, text)
	w.pos = end
}

func (w *walker) emit(kind model.TokenKind, text string) {
	w.tokens = append(w.tokens, model.Token{Kind: kind, Text: text, Line: w.line})
	w.line += strings.Count(text, "\n")
}

func (w *walker) text(node *sitter.Node) string {
	return string(w.source[node.StartByte():node.EndByte()])
}

func classify(node *sitter.Node, text string, inString bool) model.TokenKind {
	if node.IsNamed() {
		switch node.Type() {
		case "name":
			return model.Identifier
		case "comment":
			return model.Comment
		case "text":
			return model.InlineHTML
		case "php_tag":
			return model.OpenTag
		case "integer", "float":
			return model.Number
		}
		if inString {
			return model.String
		}
		// Modifier nodes may be leaves themselves.
		if kind, ok := keywords[strings.ToLower(text)]; ok {
			return kind
		}
		if node.Type() == "primitive_type" {
			return model.Identifier
		}
		return model.Other
	}

	if inString {
		switch text {
		case "{", "${":
			return model.CurlyOpen
		case "}":
			return model.RBrace
		}
		return model.String
	}
	if kind, ok := keywords[strings.ToLower(text)]; ok {
		return kind
	}
	if kind, ok := punctuation[text]; ok {
		return kind
	}
	return model.Other
}
