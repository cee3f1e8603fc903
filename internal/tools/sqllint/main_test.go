package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintFileAcceptsConcatenatedQueries(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "q.go", "package q\n\nconst cols = `id, name`\n\nconst QOne = `--sql 3f0c2f7e-9d4b-4c55-8e0a-2b8f6a1d9c01\nselect ` + cols + `\nfrom t;`\n")

	vs, err := lintFile(path, map[string]markerSite{})
	if err != nil {
		t.Fatalf("lintFile error: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("violations = %#v, want none", vs)
	}
}

func TestLintFileReportsMissingMarker(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "q.go", "package q\n\nconst QBad = `select 1 from t;`\n")

	vs, err := lintFile(path, map[string]markerSite{})
	if err != nil {
		t.Fatalf("lintFile error: %v", err)
	}
	if len(vs) != 1 || vs[0].name != "QBad" {
		t.Fatalf("violations = %#v, want one for QBad", vs)
	}
}

func TestLintFileReportsDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	marker := "--sql 3f0c2f7e-9d4b-4c55-8e0a-2b8f6a1d9c01"
	a := writeSource(t, dir, "a.go", "package q\n\nconst QA = `"+marker+"\nselect 1;`\n")
	b := writeSource(t, dir, "b.go", "package q\n\nconst QB = `"+marker+"\nselect 2;`\n")

	seen := map[string]markerSite{}
	if vs, err := lintFile(a, seen); err != nil || len(vs) != 0 {
		t.Fatalf("lintFile(a) = %#v, %v", vs, err)
	}
	vs, err := lintFile(b, seen)
	if err != nil {
		t.Fatalf("lintFile(b) error: %v", err)
	}
	if len(vs) != 1 || !strings.Contains(vs[0].message, "QA") {
		t.Fatalf("violations = %#v, want duplicate of QA", vs)
	}
}

func TestLintPathsNamingAndSkips(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "ok.go", "package q\n\nconst QSlotSelect = `--sql 3f0c2f7e-9d4b-4c55-8e0a-2b8f6a1d9c01\nselect 1;`\n")
	writeSource(t, dir, "bad.go", "package q\n\nconst slotSelect = `--sql 7d3b9c0a-2e4f-4a61-8b5d-1c9e0f2a3b47\nselect 2;`\n")
	writeSource(t, dir, "q_test.go", "package q\n\nconst QTest = `select 3;`\n")
	if err := os.MkdirAll(filepath.Join(dir, "_fixtures"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeSource(t, filepath.Join(dir, "_fixtures"), "f.go", "package f\n\nconst QF = `delete from t;`\n")

	vs, err := lintPaths([]string{dir})
	if err != nil {
		t.Fatalf("lintPaths error: %v", err)
	}
	if len(vs) != 1 || vs[0].name != "slotSelect" || !strings.Contains(vs[0].message, "Q<Entity><Action>") {
		t.Fatalf("violations = %#v, want one naming violation for slotSelect", vs)
	}
}
