// Package scope tracks the stack of declarations enclosing the parser's
// position.
package scope

import "strings"

// Kind is the kind of declaration that opens a scope.
type Kind string

const (
	Namespace Kind = "namespace"
	Class     Kind = "class"
	Interface Kind = "interface"
)

// PatternSeparator joins the search patterns of nested scopes.
const PatternSeparator = "/;/"

// Frame is one entry of the stack. Pattern is empty for frames that have no
// defining line of their own, such as the leading segments of a dotted
// namespace.
type Frame struct {
	Kind    Kind
	Name    string
	Pattern string
}

// Stack is the lexical nesting at the parser's position, outermost first.
type Stack struct {
	frames []Frame
}

// Push enters a scope.
func (s *Stack) Push(kind Kind, name, pattern string) {
	s.frames = append(s.frames, Frame{Kind: kind, Name: name, Pattern: pattern})
}

// Pop leaves the innermost scope. Popping an empty stack does nothing.
func (s *Stack) Pop() {
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Reset empties the stack.
func (s *Stack) Reset() {
	s.frames = s.frames[:0]
}

// Depth returns the number of open scopes.
func (s *Stack) Depth() int {
	return len(s.frames)
}

// Truncate pops scopes until at most depth remain.
func (s *Stack) Truncate(depth int) {
	if depth < len(s.frames) {
		s.frames = s.frames[:depth]
	}
}

// Label returns "<innermost kind>:<outer>::...::<innermost>", or "" when no
// scope is open.
func (s *Stack) Label() string {
	if len(s.frames) == 0 {
		return ""
	}
	names := make([]string, len(s.frames))
	for i, f := range s.frames {
		names[i] = f.Name
	}
	return string(s.frames[len(s.frames)-1].Kind) + ":" + strings.Join(names, "::")
}

// ScopedPattern prefixes local with the patterns of every enclosing scope.
func (s *Stack) ScopedPattern(local string) string {
	parts := make([]string, 0, len(s.frames)+1)
	for _, f := range s.frames {
		if f.Pattern != "" {
			parts = append(parts, f.Pattern)
		}
	}
	parts = append(parts, local)
	return strings.Join(parts, PatternSeparator)
}
