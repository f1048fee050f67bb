package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/phobologic/phptags/internal/config"
	"github.com/phobologic/phptags/internal/fsutil"
)

const (
	sentinelStart = "# phptags:start"
	sentinelEnd   = "# phptags:end"
)

const configHeader = `# phptags settings. Command line flags override these values.
# match holds file name globs, exclude holds doublestar path patterns.

`

func initCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "write a default " + config.DefaultPath,
		ArgsUsage: "[path]",
		Description: "Write the default settings to a config file, " + config.DefaultPath +
			" unless a path is given. With --gitignore the tags file is also added to\n" +
			"the .gitignore next to the config, inside a block that later runs update in place.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "print what would be written without modifying files"},
			&cli.BoolFlag{Name: "force", Usage: "overwrite an existing config file"},
			&cli.BoolFlag{Name: "gitignore", Usage: "add the tags file to .gitignore"},
		},
		Action: func(c *cli.Context) error {
			path := config.DefaultPath
			if c.NArg() > 0 {
				path = c.Args().First()
			}
			return runInit(initOptions{
				path:      path,
				dryRun:    c.Bool("dry-run"),
				force:     c.Bool("force"),
				gitignore: c.Bool("gitignore"),
			}, stdout, stderr)
		},
	}
}

type initOptions struct {
	path      string
	dryRun    bool
	force     bool
	gitignore bool
}

// runInit implements the `phptags init` subcommand.
func runInit(opts initOptions, stdout, stderr io.Writer) error {
	cfg := config.Default()
	content, err := generateConfig(cfg)
	if err != nil {
		return err
	}
	section := generateSection(cfg.Output)
	ignorePath := filepath.Join(filepath.Dir(opts.path), ".gitignore")

	if opts.dryRun {
		_, _ = fmt.Fprint(stdout, content)
		if opts.gitignore {
			_, _ = fmt.Fprintf(stdout, "\n# %s\n%s\n", ignorePath, section)
		}
		return nil
	}

	if _, err := os.Stat(opts.path); err == nil && !opts.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", opts.path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", opts.path, err)
	}

	if err := fsutil.WriteFileAtomic(opts.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", opts.path, err)
	}
	_, _ = fmt.Fprintf(stderr, "wrote %s\n", opts.path)

	if !opts.gitignore {
		return nil
	}
	existing, _ := os.ReadFile(ignorePath)
	updated := applySection(string(existing), section)
	if err := fsutil.WriteFileAtomic(ignorePath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ignorePath, err)
	}
	_, _ = fmt.Fprintf(stderr, "updated %s\n", ignorePath)
	return nil
}

// generateConfig returns cfg as a commented TOML document.
func generateConfig(cfg *config.Config) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)
	if err := cfg.Encode(&buf); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return buf.String(), nil
}

// generateSection returns the sentinel-wrapped .gitignore block for the tags
// file.
func generateSection(output string) string {
	return sentinelStart + "\n/" + filepath.ToSlash(output) + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	if len(content) == 0 {
		return section + "\n"
	}
	// Append, ensuring a blank line separator.
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
