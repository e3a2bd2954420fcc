package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const passing = `{
  "description": "two questions",
  "steps": [
    {"op": "send", "text": "a", "expect": {"action": "ask_question"}},
    {"op": "send", "text": "b", "expect": {"interaction_count": 2}}
  ]
}`

const failing = `{
  "description": "wrong count",
  "steps": [{"op": "send", "text": "a", "expect": {"interaction_count": 7}}]
}`

func writeFixture(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReplayDirectoryPasses(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a.json", passing)
	writeFixture(t, dir, "b.json", passing)

	out, err := execute(t, "-v", dir)
	if err != nil {
		t.Fatalf("execute: %v\n%s", err, out)
	}
	if strings.Count(out, "PASS") != 2 {
		t.Fatalf("want 2 PASS lines:\n%s", out)
	}
	if !strings.Contains(out, "fixtures: 2  passed: 2  failed: 0  steps: 4") {
		t.Fatalf("summary missing:\n%s", out)
	}
	if !strings.Contains(out, "ask_question") {
		t.Fatalf("verbose output missing step detail:\n%s", out)
	}
}

func TestReplayMismatchFails(t *testing.T) {
	dir := t.TempDir()
	p := writeFixture(t, dir, "bad.json", failing)

	out, err := execute(t, "--json", p)
	if !errors.Is(err, errMismatch) {
		t.Fatalf("want errMismatch, got %v", err)
	}
	var doc struct {
		Fixtures []jsonFixture `json:"fixtures"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(doc.Fixtures) != 1 || doc.Fixtures[0].Passed {
		t.Fatalf("unexpected result: %+v", doc.Fixtures)
	}
	if !strings.Contains(doc.Fixtures[0].Mismatches[0], "interaction_count") {
		t.Fatalf("mismatch = %q", doc.Fixtures[0].Mismatches[0])
	}
}

func TestReplayRepositoryFixtures(t *testing.T) {
	out, err := execute(t, filepath.Join("..", "..", "internal", "replay", "testdata"))
	if err != nil {
		t.Fatalf("execute: %v\n%s", err, out)
	}
}

func TestReplayInvalidFixture(t *testing.T) {
	dir := t.TempDir()
	p := writeFixture(t, dir, "broken.json", `{"description": "x", "steps": [{"op": "fly"}]}`)
	if _, err := execute(t, p); err == nil || errors.Is(err, errMismatch) {
		t.Fatalf("want load error, got %v", err)
	}
}

func TestExpandPathsEmptyDir(t *testing.T) {
	if _, err := expandPaths([]string{t.TempDir()}); err == nil {
		t.Fatal("expected error for directory without fixtures")
	}
}
