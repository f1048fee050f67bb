// Package index collects tags from all processed files and renders them in
// the sorted, tab-separated tags file format.
package index

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/phobologic/phptags/internal/model"
)

// Index is an ordered collection of tags.
type Index struct {
	tags []model.Tag
}

// Add appends copies of tags.
func (ix *Index) Add(tags ...model.Tag) {
	for _, t := range tags {
		ix.tags = append(ix.tags, t.Clone())
	}
}

// Len returns the number of tags collected so far.
func (ix *Index) Len() int {
	return len(ix.tags)
}

// Tags returns the collected tags in insertion order.
func (ix *Index) Tags() []model.Tag {
	return ix.tags
}

// Render returns one line per tag with file paths made relative to base,
// sorted byte-wise. Every line, including the last, ends in a newline.
func (ix *Index) Render(base string) string {
	if len(ix.tags) == 0 {
		return ""
	}

	lines := make([]string, len(ix.tags))
	for i := range ix.tags {
		t := &ix.tags[i]
		lines[i] = strings.Join(t.Fields(RelPath(base, t.File)), "\t")
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}

// RelPath strips the leading path segments dest shares with base and
// prefixes one ".." for every base segment left over.
func RelPath(base, dest string) string {
	baseParts := strings.Split(strings.TrimRight(filepath.ToSlash(base), "/"), "/")
	destParts := strings.Split(strings.TrimRight(filepath.ToSlash(dest), "/"), "/")

	for len(baseParts) > 0 && len(destParts) > 0 && baseParts[0] == destParts[0] {
		baseParts = baseParts[1:]
		destParts = destParts[1:]
	}

	var b strings.Builder
	for range baseParts {
		b.WriteString("../")
	}
	b.WriteString(strings.Join(destParts, "/"))
	return b.String()
}
