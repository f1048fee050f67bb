// phptags generates a vi-compatible tags file for PHP sources.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/phobologic/phptags/internal/cache"
	"github.com/phobologic/phptags/internal/config"
	"github.com/phobologic/phptags/internal/discover"
	"github.com/phobologic/phptags/internal/driver"
	"github.com/phobologic/phptags/internal/fsutil"
	"github.com/phobologic/phptags/internal/index"
	"github.com/phobologic/phptags/internal/lexer"
	"github.com/phobologic/phptags/internal/watch"
)

var version = "dev"

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "show version and exit",
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	app := newApp(stdout, stderr)
	return app.Run(append([]string{app.Name}, reorderArgs(args)...))
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:            "phptags",
		Usage:           "generate a tags file for PHP sources",
		ArgsUsage:       "[paths...]",
		Version:         version,
		Writer:          stdout,
		ErrWriter:       stderr,
		HideHelpCommand: true,
		Flags:           generateFlags(),
		Action: func(c *cli.Context) error {
			s, err := loadSettings(c, stderr, slog.LevelWarn)
			if err != nil {
				return err
			}
			return generate(c.Context, s, stdout)
		},
		Commands: []*cli.Command{
			{
				Name:      "watch",
				Usage:     "regenerate the tags file whenever a source file changes",
				ArgsUsage: "[paths...]",
				Flags:     generateFlags(),
				Action: func(c *cli.Context) error {
					s, err := loadSettings(c, stderr, slog.LevelInfo)
					if err != nil {
						return err
					}
					return runWatch(c.Context, s, stdout)
				},
			},
			initCommand(stdout, stderr),
		},
	}
}

func generateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "write tags to `FILE` (- for standard output)",
		},
		&cli.BoolFlag{
			Name:    "recursive",
			Aliases: []string{"R"},
			Usage:   "recurse into directories",
		},
		&cli.StringFlag{
			Name:  "base",
			Usage: "make paths relative to `DIR` (default: the tags file's directory)",
		},
		&cli.StringFlag{
			Name:  "cache-dir",
			Usage: "store per-file caches under `DIR` (default: $HOME/.ptags)",
		},
		&cli.BoolFlag{
			Name:  "no-cache",
			Usage: "parse every file and do not write caches",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "skip paths matching a doublestar `PATTERN` (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "match",
			Usage: "only tag files whose name matches `GLOB` (repeatable)",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "read settings from `FILE`",
			Value: config.DefaultPath,
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "log every processed file",
		},
	}
}

// settings is the merged result of the config file and the flags.
type settings struct {
	cfg      *config.Config
	inputs   []string
	base     string
	cacheDir string
	logger   *slog.Logger
}

func loadSettings(c *cli.Context, stderr io.Writer, level slog.Level) (*settings, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("file") {
		cfg.Output = c.String("file")
	}
	if c.Bool("recursive") {
		cfg.Recursive = true
	}
	if c.IsSet("cache-dir") {
		cfg.CacheDir = c.String("cache-dir")
	}
	if c.Bool("no-cache") {
		cfg.NoCache = true
	}
	cfg.Exclude = append(cfg.Exclude, c.StringSlice("exclude")...)
	if match := c.StringSlice("match"); len(match) > 0 {
		cfg.Match = match
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	s := &settings{
		cfg:    cfg,
		inputs: c.Args().Slice(),
		logger: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
	}

	if len(s.inputs) == 0 {
		if !cfg.Recursive {
			return nil, errors.New("no input files (use -R to scan the current directory)")
		}
		s.inputs = []string{"."}
	}

	if s.base, err = resolveBase(c.String("base"), cfg.Output); err != nil {
		return nil, err
	}

	if !cfg.NoCache {
		def, err := cache.DefaultRoot()
		if err != nil && cfg.CacheDir == "" {
			return nil, err
		}
		if s.cacheDir, err = cfg.ResolveCacheDir(def); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// resolveBase picks the directory output paths are relative to: the flag
// when given, else the tags file's directory, else the working directory.
func resolveBase(flagBase, output string) (string, error) {
	base := flagBase
	if base == "" {
		base = "."
		if output != "-" {
			base = filepath.Dir(output)
		}
	}

	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolving base: %w", err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return abs, nil
}

func (s *settings) discoverOptions() discover.Options {
	return discover.Options{
		Recursive: s.cfg.Recursive,
		Match:     s.cfg.Match,
		Exclude:   s.cfg.Exclude,
		Gitignore: s.cfg.Gitignore,
	}
}

// generate tags every input file and writes the tags file.
func generate(ctx context.Context, s *settings, stdout io.Writer) error {
	files, err := discover.Files(s.inputs, s.discoverOptions())
	if err != nil {
		return err
	}

	var store *cache.Store
	if !s.cfg.NoCache {
		store = cache.NewStore(s.cacheDir, s.logger)
	}

	d := driver.New(store, lexer.New(), &index.Index{}, s.logger)
	if err := d.ProcessFiles(ctx, files); err != nil {
		return err
	}

	output := d.Index().Render(s.base)
	if s.cfg.Output == "-" {
		_, err := io.WriteString(stdout, output)
		return err
	}
	if err := fsutil.WriteFileAtomic(s.cfg.Output, []byte(output), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", s.cfg.Output, err)
	}
	s.logger.Debug("wrote tags", "path", s.cfg.Output, "files", len(files), "tags", d.Index().Len())
	return nil
}

func runWatch(ctx context.Context, s *settings, stdout io.Writer) error {
	if err := generate(ctx, s, stdout); err != nil {
		return err
	}

	m, err := discover.NewMatcher(s.discoverOptions())
	if err != nil {
		return err
	}
	t, err := newTargets(s.inputs, m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(watch.Config{
		Debounce: s.cfg.DebounceDuration(),
		Accept:   t.accept,
		SkipDir:  t.skipDir,
		Logger:   s.logger,
		OnChange: func(paths []string) {
			if err := generate(ctx, s, stdout); err != nil {
				s.logger.Error("regenerating tags", "error", err)
				return
			}
			s.logger.Info("regenerated tags", "changed", len(paths), "path", s.cfg.Output)
		},
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	for _, root := range t.roots {
		if err := w.Add(root); err != nil {
			return fmt.Errorf("watching %s: %w", root, err)
		}
	}

	s.logger.Info("watching for changes", "roots", len(t.roots))
	return w.Run(ctx)
}

// targets maps watched paths back to the inputs that named them.
type targets struct {
	m     *discover.Matcher
	roots []string
	dirs  map[string]bool
	files map[string]bool
}

func newTargets(inputs []string, m *discover.Matcher) (*targets, error) {
	t := &targets{m: m, dirs: map[string]bool{}, files: map[string]bool{}}
	seen := map[string]bool{}
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", in, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("input path: %w", err)
		}
		root := abs
		if info.IsDir() {
			t.dirs[abs] = true
		} else {
			t.files[abs] = true
			root = filepath.Dir(abs)
		}
		if !seen[root] {
			seen[root] = true
			t.roots = append(t.roots, root)
		}
	}
	return t, nil
}

func (t *targets) dirFor(path string) (string, bool) {
	for dir := range t.dirs {
		rel, err := filepath.Rel(dir, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return dir, true
		}
	}
	return "", false
}

func (t *targets) accept(path string) bool {
	if t.files[path] {
		return true
	}
	dir, ok := t.dirFor(path)
	return ok && t.m.File(dir, path)
}

func (t *targets) skipDir(path string) bool {
	dir, ok := t.dirFor(path)
	if !ok {
		// Only the parent of an explicit file input; nothing below matters.
		return true
	}
	return !t.m.Dir(dir, path)
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-f": true, "--f": true,
	"-file": true, "--file": true,
	"-base": true, "--base": true,
	"-cache-dir": true, "--cache-dir": true,
	"-exclude": true, "--exclude": true,
	"-match": true, "--match": true,
	"-config": true, "--config": true,
}

var subcommands = map[string]bool{
	"watch": true,
	"init":  true,
}

// reorderArgs moves positional arguments after all flags so the flag parser
// sees every flag (it stops at the first non-flag arg). A leading subcommand
// name stays in front.
func reorderArgs(args []string) []string {
	if len(args) > 0 && subcommands[args[0]] {
		return append([]string{args[0]}, reorderArgs(args[1:])...)
	}

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 1 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
