package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

func TestTreeCmdFlags(t *testing.T) {
	cmd := newTreeCmd(new(string))
	f := cmd.Flags()

	format, _ := f.GetString("format")
	if format != "text" {
		t.Errorf("default format = %q, want text", format)
	}
	depth, _ := f.GetInt("depth")
	if depth != 10 {
		t.Errorf("default depth = %d, want 10", depth)
	}

	for _, flag := range []string{"project", "depth", "format"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestIngestCmdFlags(t *testing.T) {
	cmd := newIngestCmd(new(string))
	f := cmd.Flags()

	replace, _ := f.GetBool("replace")
	if replace {
		t.Error("replace should default to false")
	}
	for _, flag := range []string{"project", "caller", "replace"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestTokenCmdFlags(t *testing.T) {
	cmd := newTokenCmd(new(string))
	f := cmd.Flags()

	ttl, _ := f.GetDuration("ttl")
	if ttl.Hours() != 24 {
		t.Errorf("default ttl = %s, want 24h", ttl)
	}
	for _, flag := range []string{"user", "email", "ttl"} {
		if f.Lookup(flag) == nil {
			t.Errorf("missing flag: %s", flag)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	tests := []struct {
		vals []string
		want string
	}{
		{[]string{"", "b", "c"}, "b"},
		{[]string{"a", "b"}, "a"},
		{[]string{"", ""}, ""},
		{nil, ""},
	}
	for _, tc := range tests {
		if got := firstNonEmpty(tc.vals...); got != tc.want {
			t.Errorf("firstNonEmpty(%v) = %q, want %q", tc.vals, got, tc.want)
		}
	}
}

// writeConfig points the CLI at a throwaway SQLite database and blob directory.
func writeConfig(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"MSHARE_CONFIG", "DATABASE_DRIVER", "DATABASE_URL", "STORAGE_BACKEND", "LOCAL_STORAGE_PATH", "JWT_SECRET"} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	cfg := `
database:
  driver: sqlite
  dsn: ` + filepath.Join(dir, "mshare.db") + `
storage:
  backend: local
  local_path: ` + filepath.Join(dir, "blobs") + `
ingestion:
  scratch_dir: ` + dir + `
auth:
  jwt_secret: cli-secret
log:
  level: error
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func executeErr(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := executeErr(args...)
	if err != nil {
		t.Fatalf("mshare %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEndToEnd(t *testing.T) {
	cfg := writeConfig(t)

	execute(t, "--config", cfg, "migrate")

	projectID := strings.TrimSpace(execute(t, "--config", cfg, "project", "create", "--owner", "u1", "--name", "site"))
	if projectID == "" {
		t.Fatal("project create printed no id")
	}

	archive := writeZip(t, map[string]string{
		"docs/readme.md":      "# hi",
		"docs/guide/intro.md": "intro",
		"index.html":          "<html></html>",
	})
	out := execute(t, "--config", cfg, "ingest", archive, "--project", projectID)
	if !strings.Contains(out, "3 files, 2 folders") {
		t.Errorf("ingest output = %q", out)
	}

	t.Setenv("NO_COLOR", "1")
	out = execute(t, "--config", cfg, "tree", "--project", projectID)
	for _, want := range []string{"site", "docs/", "guide/", "intro.md", "index.html"} {
		if !strings.Contains(out, want) {
			t.Errorf("tree output missing %q\n%s", want, out)
		}
	}

	var decoded map[string]any
	out = execute(t, "--config", cfg, "tree", "--project", projectID, "--format", "json")
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("tree json: %v\n%s", err, out)
	}
	if decoded["itemCount"] != float64(5) {
		t.Errorf("itemCount = %v, want 5", decoded["itemCount"])
	}

	single := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(single, []byte("notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	// A replace the project owner did not ask for is rejected before
	// anything is removed.
	if _, err := executeErr("--config", cfg, "ingest", single, "--project", projectID, "--caller", "intruder", "--replace"); err == nil {
		t.Error("ingest --replace by a non-owner succeeded")
	}
	out = execute(t, "--config", cfg, "tree", "--project", projectID)
	if !strings.Contains(out, "docs/") || strings.Contains(out, "notes.txt") {
		t.Errorf("tree after rejected replace:\n%s", out)
	}

	// Re-ingesting with --replace leaves only the new content.
	execute(t, "--config", cfg, "ingest", single, "--project", projectID, "--replace")
	out = execute(t, "--config", cfg, "tree", "--project", projectID)
	if strings.Contains(out, "docs/") || !strings.Contains(out, "notes.txt") {
		t.Errorf("tree after replace:\n%s", out)
	}
	var stored []string
	filepath.WalkDir(filepath.Join(filepath.Dir(cfg), "blobs", projectID), func(p string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			stored = append(stored, filepath.Base(p))
		}
		return nil
	})
	if len(stored) != 1 || stored[0] != "notes.txt" {
		t.Errorf("blobs after replace = %v, want [notes.txt]", stored)
	}

	out = execute(t, "--config", cfg, "project", "show", projectID)
	if !strings.Contains(out, `"status": "READY"`) {
		t.Errorf("project show = %s", out)
	}

	if tok := strings.TrimSpace(execute(t, "--config", cfg, "token", "--user", "u1")); strings.Count(tok, ".") != 2 {
		t.Errorf("token = %q, want a JWT", tok)
	}
}
