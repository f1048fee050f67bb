// Package discover expands the command line inputs into the list of source
// files to tag.
package discover

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// ErrIsDirectory is returned for a directory input when recursion is off.
var ErrIsDirectory = errors.New("is a directory")

// Options controls which files a directory walk yields.
type Options struct {
	Recursive bool
	// Match holds file name globs; a file is kept if any matches its base
	// name, ignoring case.
	Match []string
	// Exclude holds doublestar patterns matched against paths relative to
	// the walked directory and against the walked path itself.
	Exclude []string
	// Gitignore applies the walked directory's .gitignore.
	Gitignore bool
}

// Files returns the files named by inputs. Regular files are returned as
// given; directories are walked when opts.Recursive is set. Walked files are
// sorted per input directory.
func Files(inputs []string, opts Options) ([]string, error) {
	m, err := NewMatcher(opts)
	if err != nil {
		return nil, err
	}

	var results []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("input path: %w", err)
		}
		if !info.IsDir() {
			results = append(results, in)
			continue
		}
		if !opts.Recursive {
			return nil, fmt.Errorf("%s %w, maybe try -R?", in, ErrIsDirectory)
		}
		results = append(results, m.walk(in)...)
	}
	return results, nil
}

// Matcher applies Options to paths below a walked root. It is safe for
// concurrent use.
type Matcher struct {
	match     []glob.Glob
	exclude   []string
	gitignore bool

	mu      sync.Mutex
	ignores map[string]*ignore.GitIgnore
}

// NewMatcher compiles the patterns in opts.
func NewMatcher(opts Options) (*Matcher, error) {
	m := &Matcher{gitignore: opts.Gitignore, ignores: map[string]*ignore.GitIgnore{}}
	for _, pattern := range opts.Match {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid match pattern %q: %w", pattern, err)
		}
		m.match = append(m.match, g)
	}
	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
		m.exclude = append(m.exclude, pattern)
	}
	return m, nil
}

// Dir reports whether the directory path below root should be descended
// into.
func (m *Matcher) Dir(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if m.excluded(rel, path) {
		return false
	}
	gi := m.ignoreFor(root)
	return gi == nil || !gi.MatchesPath(filepath.ToSlash(rel)+"/")
}

// File reports whether the file path below root should be tagged.
func (m *Matcher) File(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if m.excluded(rel, path) {
		return false
	}
	if gi := m.ignoreFor(root); gi != nil && gi.MatchesPath(filepath.ToSlash(rel)) {
		return false
	}
	if len(m.match) == 0 {
		return true
	}
	name := strings.ToLower(filepath.Base(path))
	for _, g := range m.match {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (m *Matcher) excluded(rel, path string) bool {
	rel = filepath.ToSlash(rel)
	path = filepath.ToSlash(filepath.Clean(path))
	for _, pattern := range m.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// ignoreFor returns root's parsed .gitignore, or nil.
func (m *Matcher) ignoreFor(root string) *ignore.GitIgnore {
	if !m.gitignore {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	gi, ok := m.ignores[root]
	if !ok {
		gi = loadGitignore(root)
		m.ignores[root] = gi
	}
	return gi
}

func (m *Matcher) walk(root string) []string {
	var results []string

	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		if d.IsDir() {
			if !m.Dir(root, path) {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if m.File(root, path) {
			results = append(results, path)
		}
		return nil
	})

	sort.Strings(results)
	return results
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
