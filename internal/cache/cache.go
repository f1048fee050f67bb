// Package cache persists the tags extracted from each source file so that
// unchanged files are not parsed again.
//
// Every source file has one cache file under the cache root, at a path that
// mirrors the source's absolute path. A cache file is valid as long as it is
// not older than its source file.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/phobologic/phptags/internal/fsutil"
	"github.com/phobologic/phptags/internal/model"
)

// FormatVersion is written to every cache file. Files with another version
// are ignored.
const FormatVersion = 1

const fileSuffix = ".json"

// Record is the cached state of one source file.
type Record struct {
	Path  string
	Valid bool
	Tags  []model.Tag
}

// Add appends copies of tags to the record.
func (r *Record) Add(tags ...model.Tag) {
	for _, t := range tags {
		r.Tags = append(r.Tags, t.Clone())
	}
}

type envelope struct {
	Version  int             `json:"version"`
	Path     string          `json:"path"`
	Checksum string          `json:"checksum"`
	Tags     json.RawMessage `json:"tags"`
}

// Store reads and writes records under a root directory.
type Store struct {
	root   string
	logger *slog.Logger
}

// DefaultRoot returns the per-user cache root, $HOME/.ptags.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".ptags"), nil
}

// NewStore returns a Store rooted at root. A nil logger uses slog.Default.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}
}

// Root returns the directory the store writes under.
func (s *Store) Root() string {
	return s.root
}

// PathFor returns the cache file location for an absolute source path.
func (s *Store) PathFor(sourcePath string) string {
	vol := filepath.VolumeName(sourcePath)
	rest := sourcePath[len(vol):]
	vol = strings.TrimSuffix(vol, ":")
	return filepath.Join(s.root, vol, rest) + fileSuffix
}

// Load returns the cached record for sourcePath. Any miss, including a
// missing, unreadable, corrupt or stale cache file, yields an invalid empty
// record rather than an error.
func (s *Store) Load(sourcePath string) *Record {
	rec := &Record{Path: sourcePath}

	src, err := os.Stat(sourcePath)
	if err != nil {
		return rec
	}
	cachePath := s.PathFor(sourcePath)
	info, err := os.Stat(cachePath)
	if err != nil || info.ModTime().Before(src.ModTime()) {
		return rec
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		return rec
	}
	tags, err := decode(data, sourcePath)
	if err != nil {
		s.logger.Debug("discarding cache entry", "path", cachePath, "error", err)
		return rec
	}

	rec.Tags = tags
	rec.Valid = true
	return rec
}

// Save marks rec valid and writes it, creating directories as needed. The
// file is replaced atomically.
func (s *Store) Save(rec *Record) error {
	rec.Valid = true

	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("encoding cache for %s: %w", rec.Path, err)
	}

	cachePath := s.PathFor(rec.Path)
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o700); err != nil {
		return fmt.Errorf("creating cache directory for %s: %w", rec.Path, err)
	}
	if err := fsutil.WriteFileAtomic(cachePath, data, 0o600); err != nil {
		return fmt.Errorf("writing cache for %s: %w", rec.Path, err)
	}
	return nil
}

func encode(rec *Record) ([]byte, error) {
	tags := rec.Tags
	if tags == nil {
		tags = []model.Tag{}
	}
	payload, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Version:  FormatVersion,
		Path:     rec.Path,
		Checksum: checksum(payload),
		Tags:     payload,
	})
}

func decode(data []byte, sourcePath string) ([]model.Tag, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("format version %d, want %d", env.Version, FormatVersion)
	}
	if env.Path != sourcePath {
		return nil, fmt.Errorf("record is for %s", env.Path)
	}
	if checksum(env.Tags) != env.Checksum {
		return nil, fmt.Errorf("checksum mismatch")
	}

	var tags []model.Tag
	if err := json.Unmarshal(env.Tags, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func checksum(payload []byte) string {
	return strconv.FormatUint(xxhash.Sum64(payload), 16)
}
