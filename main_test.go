package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/phptags/internal/config"
	"github.com/phobologic/phptags/internal/discover"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const userSource = `<?php
namespace App;

class User
{
    private $name;

    public function getName()
    {
        return $this->name;
    }
}
`

const helperSource = `<?php
function helper($a, $b = 2) {
    return $a + $b;
}
`

func createSampleRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "src/User.php", userSource)
	writeTestFile(t, dir, "src/helpers.php", helperSource)
	writeTestFile(t, dir, "README.md", "not php")
	return dir
}

// runTags runs phptags over dir writing dir/tags and returns its contents.
func runTags(t *testing.T, dir, cacheDir string, extra ...string) string {
	t.Helper()
	out := filepath.Join(dir, "tags")
	args := append([]string{"-R", "-f", out, "--cache-dir", cacheDir}, extra...)
	args = append(args, dir)

	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading tags: %v", err)
	}
	return string(data)
}

func TestRunBasic(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	out := runTags(t, dir, t.TempDir())

	want := []string{
		"App\tsrc/User.php\tlet _s=@/ | /namespace App;/; | let @/=_s\";\"\tn\tlineno:2",
		"User\tsrc/User.php\tlet _s=@/ | /namespace App;/;/class User/; | let @/=_s\";\"\tc\tlineno:4\tnamespace:App",
		"$name\tsrc/User.php\tlet _s=@/ | /namespace App;/;/class User/;/private \\$name/; | let @/=_s\";\"\tv\tlineno:6\tclass:App::User\taccess:private",
		"getName\tsrc/User.php\tlet _s=@/ | /namespace App;/;/class User/;/function getName(/; | let @/=_s\";\"\tf\tlineno:8\tclass:App::User\tsignature:()\taccess:public",
		"helper\tsrc/helpers.php\tlet _s=@/ | /function helper(/; | let @/=_s\";\"\tf\tlineno:2\tsignature:($a, $b = 2)",
	}
	for _, line := range want {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("missing line %q in:\n%s", line, out)
		}
	}

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != len(want) {
		t.Errorf("expected %d lines, got %d:\n%s", len(want), len(lines), out)
	}
	for i := 1; i < len(lines); i++ {
		if lines[i-1] > lines[i] {
			t.Errorf("lines not sorted at %d:\n%s", i, out)
		}
	}
}

func TestRunStdout(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	args := []string{"-f", "-", "-R", "--no-cache", "--base", dir, dir}
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	if !strings.Contains(out, "helper\tsrc/helpers.php\t") {
		t.Errorf("expected path relative to --base:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "tags")); err == nil {
		t.Error("-f - should not write a tags file")
	}
}

func TestRunPositionalBeforeFlags(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	file := filepath.Join(dir, "src", "helpers.php")

	var stdout, stderr bytes.Buffer
	if err := run([]string{file, "-f", "-", "--no-cache", "--base", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "helper\tsrc/helpers.php\t") {
		t.Errorf("unexpected output:\n%s", stdout.String())
	}
}

func TestRunRelativeToOutputDir(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	outDir := filepath.Join(dir, "build")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(outDir, "tags")

	var stdout, stderr bytes.Buffer
	args := []string{"-f", out, "--no-cache", filepath.Join(dir, "src", "helpers.php")}
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading tags: %v", err)
	}
	if !strings.HasPrefix(string(data), "helper\t../src/helpers.php\t") {
		t.Errorf("expected path relative to the tags file:\n%s", data)
	}
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run([]string{"-V"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "phptags") {
		t.Errorf("version output: %q", stdout.String())
	}
}

func TestRunNoInputs(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run([]string{"-f", "-"}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error without inputs")
	}
	if !strings.Contains(err.Error(), "no input files") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunDirectoryWithoutRecursive(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{"-f", "-", "--no-cache", dir}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for directory input")
	}
	if !strings.Contains(err.Error(), "maybe try -R?") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunMissingInput(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run([]string{"-f", "-", filepath.Join(t.TempDir(), "nope.php")}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestRunNoTags(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "empty.php", "<?php\n$x = 1;\n")

	out := runTags(t, dir, t.TempDir())
	if out != "" {
		t.Errorf("expected empty tags file, got:\n%s", out)
	}
}

func TestRunCache(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	cacheDir := t.TempDir()

	first := runTags(t, dir, cacheDir)

	// Cache file should exist
	real, err := filepath.EvalSymlinks(filepath.Join(dir, "src", "User.php"))
	if err != nil {
		t.Fatal(err)
	}
	cachePath := filepath.Join(cacheDir, real+".json")
	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("cache not created: %v", err)
	}

	// Second run should produce identical output from the cache
	second := runTags(t, dir, cacheDir)
	if first != second {
		t.Errorf("cache mismatch:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestRunNoCache(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	cacheDir := t.TempDir()

	runTags(t, dir, cacheDir, "--no-cache")

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("--no-cache wrote %d cache entries", len(entries))
	}
}

func TestRunExclude(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, "vendor/lib.php", "<?php\nfunction vendored() {}\n")

	out := runTags(t, dir, t.TempDir(), "--exclude", "vendor/**")
	if strings.Contains(out, "vendored") {
		t.Errorf("vendor/ should be excluded:\n%s", out)
	}
	if !strings.Contains(out, "helper\t") {
		t.Errorf("missing helper:\n%s", out)
	}
}

func TestRunConfigFile(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	configPath := filepath.Join(dir, "phptags.toml")
	writeTestFile(t, dir, "phptags.toml", "exclude = [\"src/helpers.php\"]\nrecursive = true\n")

	var stdout, stderr bytes.Buffer
	args := []string{"--config", configPath, "-f", "-", "--no-cache", "--base", dir, dir}
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	if strings.Contains(out, "helper\t") {
		t.Errorf("config exclude not applied:\n%s", out)
	}
	if !strings.Contains(out, "User\t") {
		t.Errorf("missing User:\n%s", out)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "bad.toml", "debounce = \"soon\"\n")

	var stdout, stderr bytes.Buffer
	err := run([]string{"--config", filepath.Join(dir, "bad.toml"), "-f", "-", dir}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestRunVerboseLogs(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	args := []string{"-R", "-f", "-", "--no-cache", "--verbose", dir}
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	if !strings.Contains(stderr.String(), "msg=parsed") {
		t.Errorf("expected debug logs on stderr, got:\n%s", stderr.String())
	}
}

func TestTargetsAccept(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	single := filepath.Join(t.TempDir(), "single.php")
	writeTestFile(t, filepath.Dir(single), "single.php", "<?php\n")

	cfg := config.Default()
	m, err := discover.NewMatcher(discover.Options{
		Recursive: true,
		Match:     cfg.Match,
		Exclude:   cfg.Exclude,
		Gitignore: cfg.Gitignore,
	})
	if err != nil {
		t.Fatal(err)
	}
	tg, err := newTargets([]string{dir, single}, m)
	if err != nil {
		t.Fatalf("newTargets: %v", err)
	}
	if len(tg.roots) != 2 {
		t.Fatalf("expected 2 roots, got %v", tg.roots)
	}

	cases := map[string]bool{
		filepath.Join(dir, "src", "User.php"):            true,
		filepath.Join(dir, "README.md"):                  false,
		single:                                           true,
		filepath.Join(filepath.Dir(single), "other.php"): false,
	}
	for path, want := range cases {
		if got := tg.accept(path); got != want {
			t.Errorf("accept(%s) = %v, want %v", path, got, want)
		}
	}

	if !tg.skipDir(filepath.Join(dir, ".git")) {
		t.Error(".git should be skipped")
	}
	if tg.skipDir(filepath.Join(dir, "src")) {
		t.Error("src should be watched")
	}
}

func TestReorderArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"flags first", []string{"-f", "tags", "."}, []string{"-f", "tags", "."}},
		{"positional first", []string{".", "-f", "tags"}, []string{"-f", "tags", "."}},
		{"mixed", []string{"-R", "src", "-f", "-", "lib"}, []string{"-R", "-f", "-", "src", "lib"}},
		{"repeated", []string{"--exclude", "a/**", ".", "--exclude", "b"}, []string{"--exclude", "a/**", "--exclude", "b", "."}},
		{"no flags", []string{"."}, []string{"."}},
		{"no args", nil, nil},
		{"bool flag", []string{"-V"}, []string{"-V"}},
		{"subcommand", []string{"watch", ".", "-R"}, []string{"watch", "-R", "."}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := reorderArgs(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("len: got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("index %d: got %q, want %q (full: %v)", i, got[i], tt.want[i], got)
					break
				}
			}
		})
	}
}
