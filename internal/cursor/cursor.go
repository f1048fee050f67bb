// Package cursor walks a token stream and records the source text of the
// tokens it consumes.
package cursor

import (
	"strings"

	"github.com/phobologic/phptags/internal/model"
)

// Cursor moves forward through a token slice one token at a time.
//
// While collecting, every consumed token's text is appended to a snippet
// buffer. Collection stops by itself right after a token containing a
// newline is consumed, so a snippet never extends past the line it ends on.
type Cursor struct {
	tokens     []model.Token
	pos        int
	collecting bool
	snippet    strings.Builder
}

// New returns a Cursor positioned on the first token.
func New(tokens []model.Token) *Cursor {
	return &Cursor{tokens: tokens}
}

// Current returns the token under the cursor. ok is false past the end.
func (c *Cursor) Current() (tok model.Token, ok bool) {
	if c.pos >= len(c.tokens) {
		return model.Token{}, false
	}
	return c.tokens[c.pos], true
}

// Next advances one token and returns it. ok is false at end of stream.
func (c *Cursor) Next() (tok model.Token, ok bool) {
	if c.pos < len(c.tokens) {
		c.pos++
	}
	tok, ok = c.Current()
	if ok && c.collecting {
		c.snippet.WriteString(tok.Text)
		if strings.Contains(tok.Text, "\n") {
			c.collecting = false
		}
	}
	return tok, ok
}

// StartCollect starts a new snippet seeded with the current token's text.
func (c *Cursor) StartCollect() {
	c.snippet.Reset()
	if tok, ok := c.Current(); ok {
		c.snippet.WriteString(tok.Text)
	}
	c.collecting = true
}

// StopCollect ends collection and returns the snippet. Calling it again
// returns the same snippet until the next StartCollect.
func (c *Cursor) StopCollect() string {
	c.collecting = false
	return c.snippet.String()
}

// Collecting reports whether consumed tokens are still being recorded.
func (c *Cursor) Collecting() bool {
	return c.collecting
}

// SkipToOneOf advances until it consumes a token whose text is one of
// literals. ok is false if the stream ends first.
func (c *Cursor) SkipToOneOf(literals ...string) (tok model.Token, ok bool) {
	for tok, ok = c.Next(); ok; tok, ok = c.Next() {
		for _, lit := range literals {
			if tok.Text == lit {
				return tok, true
			}
		}
	}
	return model.Token{}, false
}
