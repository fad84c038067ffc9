package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintFilesAcceptsMarkedConcatenation(t *testing.T) {
	dir := t.TempDir()
	path := writeGo(t, dir, "q.go", "package q\n\n"+
		"const cols = `id, name`\n\n"+
		"const QSelect = `--sql 2f1f5a2e-0b7e-4c55-9d0e-6b1f1c3e7a10\nselect ` + cols + `\nfrom things;`\n")

	violations, err := lintFiles([]string{path})
	if err != nil {
		t.Fatalf("lintFiles: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("unexpected violations: %+v", violations)
	}
}

func TestLintFilesFlagsMissingMarker(t *testing.T) {
	dir := t.TempDir()
	path := writeGo(t, dir, "q.go", "package q\n\n"+
		"const cols = `id`\n\n"+
		"const QBad = `select ` + cols + ` from things`\n")

	violations, err := lintFiles([]string{path})
	if err != nil {
		t.Fatalf("lintFiles: %v", err)
	}
	if len(violations) != 1 || violations[0].name != "QBad" {
		t.Fatalf("violations = %+v, want one for QBad", violations)
	}
}

func TestLintFilesFlagsDuplicateMarkersAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	marker := "--sql 9c0b8f43-5a4e-4d35-8a7a-1d2b3c4d5e6f"
	a := writeGo(t, dir, "a.go", "package q\n\nconst QA = `"+marker+"\nselect 1;`\n")
	b := writeGo(t, dir, "b.go", "package q\n\nconst QB = `"+marker+"\nselect 2;`\n")

	violations, err := lintFiles([]string{a, b})
	if err != nil {
		t.Fatalf("lintFiles: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("violations = %+v, want exactly one", violations)
	}
	if violations[0].name != "QB" || !strings.Contains(violations[0].message, "QA") {
		t.Fatalf("violation = %+v, want QB pointing at QA", violations[0])
	}
}

func TestLintFilesIgnoresPlainStrings(t *testing.T) {
	dir := t.TempDir()
	path := writeGo(t, dir, "q.go", "package q\n\nconst greeting = \"hello there\"\nvar n = 3\n")

	violations, err := lintFiles([]string{path})
	if err != nil {
		t.Fatalf("lintFiles: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("unexpected violations: %+v", violations)
	}
}
