// Package parse extracts tags from a PHP token stream in a single forward
// pass, tracking namespace, class and interface nesting on a scope stack.
package parse

import (
	"regexp"
	"strings"

	"github.com/phobologic/phptags/internal/cursor"
	"github.com/phobologic/phptags/internal/model"
	"github.com/phobologic/phptags/internal/scope"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// ExtractTags parses the tokens of one file and returns its tags in
// declaration order. filePath is copied into Tag.File as is.
func ExtractTags(tokens []model.Token, filePath string) []model.Tag {
	p := &parser{file: filePath, cur: cursor.New(tokens)}
	p.parseTopLevel()
	return p.tags
}

// SearchCommand builds the ex command that relocates pattern: it saves the
// last search, runs the chained line searches and restores the search
// register.
func SearchCommand(pattern string) string {
	return `let _s=@/ | /` + EscapePattern(pattern) + `/; | let @/=_s";"`
}

// EscapePattern escapes the characters that are special inside a search
// pattern. Backslashes go first so later escapes are not doubled.
func EscapePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, `\`, `\\`)
	pattern = strings.ReplaceAll(pattern, `$`, `\$`)
	pattern = strings.ReplaceAll(pattern, `^`, `\^`)
	pattern = strings.ReplaceAll(pattern, "\n", ";")
	return pattern
}

type parser struct {
	file   string
	cur    *cursor.Cursor
	scopes scope.Stack
	tags   []model.Tag
}

func (p *parser) parseTopLevel() {
	for tok, ok := p.cur.Current(); ok; tok, ok = p.cur.Next() {
		if tok.Kind == model.KwNamespace {
			p.scopes.Reset()
			p.parseNamespace()
			continue
		}
		p.parseDeclaration(tok)
	}
}

// parseDeclaration dispatches on a token that may start a declaration
// outside of a class body.
func (p *parser) parseDeclaration(tok model.Token) {
	switch tok.Kind {
	case model.KwInterface:
		p.parseInterface()
	case model.KwClass:
		p.parseClass()
	case model.KwFunction:
		p.parseFunction("")
	case model.KwConst:
		p.parseConstant()
	case model.Other:
		// Imports name functions and constants without declaring them.
		if strings.EqualFold(tok.Text, "use") {
			p.cur.SkipToOneOf(";")
		}
	}
}

// parseNamespace handles both the braced and the semicolon form. Only the
// last segment of a qualified name becomes the tag; the leading segments are
// pushed as frames without a pattern.
func (p *parser) parseNamespace() {
	depth := p.scopes.Depth()
	p.cur.StartCollect()

	var name string
	var line int
	for tok, ok := p.cur.Next(); ok; tok, ok = p.cur.Next() {
		switch tok.Kind {
		case model.Identifier:
			name, line = tok.Text, tok.Line

		case model.NsSeparator:
			if name != "" {
				p.scopes.Push(scope.Namespace, name, "")
			}

		case model.LBrace:
			pattern := p.cur.StopCollect()
			if name != "" {
				p.createTag(name, model.Namespace, "", line, pattern, nil)
				p.scopes.Push(scope.Namespace, name, pattern)
			}
			p.parseScopedNamespace()
			p.scopes.Truncate(depth)
			return

		case model.Semicolon:
			pattern := p.cur.StopCollect()
			if name != "" {
				p.createTag(name, model.Namespace, "", line, pattern, nil)
				p.scopes.Push(scope.Namespace, name, pattern)
			}
			return
		}
	}
}

func (p *parser) parseScopedNamespace() {
	for tok, ok := p.cur.Next(); ok; tok, ok = p.cur.Next() {
		switch tok.Kind {
		case model.RBrace:
			return
		case model.LBrace, model.CurlyOpen:
			if !p.skipBlock() {
				return
			}
		default:
			p.parseDeclaration(tok)
		}
	}
}

// skipBlock consumes tokens up to and including the brace closing the block
// the cursor is in. It reports false if the stream ends first.
func (p *parser) skipBlock() bool {
	for tok, ok := p.cur.Next(); ok; tok, ok = p.cur.Next() {
		switch tok.Kind {
		case model.LBrace, model.CurlyOpen:
			if !p.skipBlock() {
				return false
			}
		case model.RBrace:
			return true
		}
	}
	return false
}

func (p *parser) parseInterface() {
	p.parseClassLike(model.Interface, scope.Interface, false)
}

func (p *parser) parseClass() {
	p.parseClassLike(model.Class, scope.Class, true)
}

// parseClassLike parses a class or interface declaration and its members.
// Blocks not owned by a member are skipped only when skipNested is set.
func (p *parser) parseClassLike(kind model.TagKind, sk scope.Kind, skipNested bool) {
	name, pattern, ok := p.parseNamed(kind)
	if !ok {
		p.skipAnonymous()
		return
	}

	p.scopes.Push(sk, name, pattern)
	defer p.scopes.Pop()

	if _, ok := p.cur.SkipToOneOf("{"); !ok {
		return
	}

	for tok, ok := p.cur.Next(); ok; tok, ok = p.cur.Next() {
		switch tok.Kind {
		case model.KwPrivate, model.KwProtected, model.KwPublic, model.KwVar:
			p.parseVisible()

		case model.KwConst:
			p.parseConstant()

		case model.KwFunction:
			p.parseFunction("public")

		case model.LBrace, model.CurlyOpen:
			if skipNested && !p.skipBlock() {
				return
			}

		case model.RBrace:
			return
		}
	}
}

// skipAnonymous moves past the body of a class declared without a name,
// such as "new class(...) { ... }".
func (p *parser) skipAnonymous() {
	tok, ok := p.cur.Current()
	if !ok || tok.Kind == model.Semicolon {
		return
	}
	if tok.Kind != model.LBrace {
		if _, ok := p.cur.SkipToOneOf("{"); !ok {
			return
		}
	}
	p.skipBlock()
}

// parseVisible parses declarations introduced by a visibility modifier: one
// or more properties, a constant, or a single method.
func (p *parser) parseVisible() {
	p.cur.StartCollect()

	var access string
	first := true
	// Variables inside a default value are not declarations.
	inDefault := false
	nesting := 0

	for tok, ok := p.cur.Current(); ok; tok, ok = p.cur.Next() {
		switch tok.Kind {
		case model.KwPrivate:
			access = "private"

		case model.KwProtected:
			access = "protected"

		case model.KwPublic, model.KwVar:
			access = "public"

		case model.Variable:
			if inDefault {
				continue
			}
			pattern := tok.Text
			if first {
				pattern = p.cur.StopCollect()
				first = false
			}
			p.createTag(tok.Text, model.Property, access, tok.Line, pattern, nil)

		case model.KwConst:
			p.parseConstant()

		case model.KwFunction:
			p.parseFunction(access)
			return

		case model.LParen:
			nesting++

		case model.RParen:
			nesting--

		case model.Semicolon:
			return

		case model.Other:
			switch tok.Text {
			case "=":
				inDefault = true
			case "[":
				nesting++
			case "]":
				nesting--
			case ",":
				if nesting == 0 {
					inDefault = false
				}
			}
		}
	}
}

// parseFunction parses a function or method starting at the function
// keyword. The pattern runs from the keyword to the token after the name.
// No tag is emitted for anonymous functions or when the declaration is not
// terminated by a body or a semicolon.
func (p *parser) parseFunction(access string) {
	start, ok := p.cur.Current()
	if !ok {
		return
	}
	p.cur.StartCollect()

	var name, pattern string
	var extra []string
	stopAfterName := false
	seenParams := false

	for tok, ok := p.cur.Next(); ok; tok, ok = p.cur.Next() {
		if stopAfterName && pattern == "" {
			pattern = p.cur.StopCollect()
		}

		switch tok.Kind {
		case model.Identifier:
			if name == "" && !seenParams {
				name = tok.Text
				stopAfterName = true
			}

		case model.LParen:
			seenParams = true
			extra = append(extra, "signature:"+p.parseParameterList())

		case model.LBrace:
			if !p.skipBlock() {
				return
			}
			p.finishFunction(name, access, start.Line, pattern, extra)
			return

		case model.Semicolon:
			p.finishFunction(name, access, start.Line, pattern, extra)
			return
		}
	}
}

func (p *parser) finishFunction(name, access string, line int, pattern string, extra []string) {
	if name == "" || pattern == "" {
		return
	}
	p.createTag(name, model.Function, access, line, pattern, extra)
}

// parseParameterList consumes a parenthesized list starting at the current
// token and returns its text with whitespace runs collapsed.
func (p *parser) parseParameterList() string {
	var b strings.Builder
	depth := 0
	for tok, ok := p.cur.Current(); ok; tok, ok = p.cur.Next() {
		b.WriteString(tok.Text)
		switch tok.Kind {
		case model.LParen:
			depth++
		case model.RParen:
			depth--
			if depth == 0 {
				return collapseWhitespace(b.String())
			}
		}
	}
	return collapseWhitespace(b.String())
}

func (p *parser) parseConstant() {
	p.parseNamed(model.Constant)
}

// parseNamed captures the first identifier after the keyword under the
// cursor and tags it. It gives up at a token that cannot precede the name.
func (p *parser) parseNamed(kind model.TagKind) (name, pattern string, ok bool) {
	start, ok := p.cur.Current()
	if !ok {
		return "", "", false
	}
	p.cur.StartCollect()

scan:
	for tok, ok := p.cur.Next(); ok; tok, ok = p.cur.Next() {
		switch tok.Kind {
		case model.Identifier:
			name = tok.Text
			break scan
		case model.LBrace, model.LParen, model.Semicolon:
			break scan
		case model.Other:
			if strings.EqualFold(tok.Text, "extends") || strings.EqualFold(tok.Text, "implements") {
				break scan
			}
		}
	}

	pattern = p.cur.StopCollect()
	if name == "" {
		return "", "", false
	}
	p.createTag(name, kind, "", start.Line, pattern, nil)
	return name, pattern, true
}

// createTag records a tag scoped to the current stack.
func (p *parser) createTag(name string, kind model.TagKind, access string, line int, pattern string, extra []string) {
	p.tags = append(p.tags, model.Tag{
		Name:    name,
		File:    p.file,
		Pattern: SearchCommand(p.scopes.ScopedPattern(pattern)),
		Kind:    kind,
		Line:    line,
		Scope:   p.scopes.Label(),
		Extra:   extra,
		Access:  access,
	})
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
