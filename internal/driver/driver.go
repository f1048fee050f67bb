// Package driver runs the per-file pipeline: consult the cache, parse the
// file when the cache is stale, and feed the tags into the index.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/phobologic/phptags/internal/cache"
	"github.com/phobologic/phptags/internal/index"
	"github.com/phobologic/phptags/internal/model"
	"github.com/phobologic/phptags/internal/parse"
)

// Tokenizer turns file contents into tokens.
type Tokenizer interface {
	Tokenize(ctx context.Context, source []byte) ([]model.Token, error)
}

// Driver processes files one after another into a single index.
type Driver struct {
	store  *cache.Store
	lexer  Tokenizer
	index  *index.Index
	logger *slog.Logger
}

// New returns a Driver adding tags to ix. A nil store disables caching and
// a nil logger uses slog.Default.
func New(store *cache.Store, lexer Tokenizer, ix *index.Index, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{store: store, lexer: lexer, index: ix, logger: logger}
}

// Index returns the index the driver fills.
func (d *Driver) Index() *index.Index {
	return d.index
}

// ProcessFiles processes paths in order and stops at the first error.
func (d *Driver) ProcessFiles(ctx context.Context, paths []string) error {
	if d.store != nil {
		d.logger.Debug("using cache", "root", d.store.Root(), "files", len(paths))
	}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.ProcessFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// ProcessFile adds the tags of one file to the index, from the cache when
// it is still valid and by parsing the file otherwise. Parsed results are
// written back to the cache.
func (d *Driver) ProcessFile(ctx context.Context, path string) error {
	abs, err := canonicalPath(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	rec := &cache.Record{Path: abs}
	if d.store != nil {
		rec = d.store.Load(abs)
		if rec.Valid {
			d.index.Add(rec.Tags...)
			d.logger.Debug("cache hit", "path", abs, "tags", len(rec.Tags))
			return nil
		}
	}

	source, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("reading %s: %w", abs, err)
	}
	tokens, err := d.lexer.Tokenize(ctx, source)
	if err != nil {
		return fmt.Errorf("tokenizing %s: %w", abs, err)
	}

	tags := parse.ExtractTags(tokens, abs)
	d.index.Add(tags...)
	rec.Add(tags...)
	d.logger.Debug("parsed", "path", abs, "tokens", len(tokens), "tags", len(tags))

	if d.store == nil {
		return nil
	}
	return d.store.Save(rec)
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
