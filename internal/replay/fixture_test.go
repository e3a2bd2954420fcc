package replay

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFixture_Testdata(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no fixtures in testdata")
	}
	for _, p := range paths {
		f, err := LoadFixture(p)
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		if len(f.Steps) == 0 {
			t.Fatalf("%s: no steps", p)
		}
	}
}

func TestParseFixture_Fields(t *testing.T) {
	data := []byte(`{
		"description": "fields",
		"config": {"mode": "deep", "thresholds": [2, 4, 6], "gate": {"cracked": 1}, "generation_delay_ms": 0, "manual_clock": true},
		"steps": [
			{"op": "send", "text": "hi", "expect": {"interaction_count": 1, "generating": false}},
			{"op": "advance", "advance_ms": 250}
		]
	}`)
	f, err := ParseFixture(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Config.Mode != "deep" || !f.Config.ManualClock {
		t.Fatalf("config not decoded: %+v", f.Config)
	}
	if f.Config.GenerationDelayMS == nil || *f.Config.GenerationDelayMS != 0 {
		t.Fatal("explicit zero delay must survive decoding")
	}
	if f.Config.Gate["cracked"] != 1 {
		t.Fatalf("gate: %v", f.Config.Gate)
	}
	exp := f.Steps[0].Expect
	if exp == nil || exp.InteractionCount == nil || *exp.InteractionCount != 1 {
		t.Fatalf("expect not decoded: %+v", exp)
	}
	if exp.Generating == nil || *exp.Generating {
		t.Fatal("generating=false must be distinguishable from unset")
	}
	if f.Steps[1].AdvanceMS != 250 {
		t.Fatalf("advance_ms = %d", f.Steps[1].AdvanceMS)
	}
}

func TestValidateFixture_Rejects(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{"not json", `{"description":`, "not valid JSON"},
		{"no steps", `{"description": "x", "steps": []}`, "steps"},
		{"unknown op", `{"description": "x", "steps": [{"op": "teleport"}]}`, "op"},
		{"send without text", `{"description": "x", "steps": [{"op": "send"}]}`, "text"},
		{"mode without target", `{"description": "x", "steps": [{"op": "request_mode"}]}`, "mode"},
		{"bad resolution", `{"description": "x", "steps": [{"op": "resolve", "resolution": "keep"}]}`, "resolution"},
		{"advance without duration", `{"description": "x", "steps": [{"op": "advance"}]}`, "advance_ms"},
		{"two thresholds", `{"description": "x", "config": {"thresholds": [1, 2]}, "steps": [{"op": "reset"}]}`, "thresholds"},
		{"unknown expect", `{"description": "x", "steps": [{"op": "reset", "expect": {"vibes": "good"}}]}`, "vibes"},
		{"bad error kind", `{"description": "x", "steps": [{"op": "reset", "expect": {"error": "oops"}}]}`, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFixture([]byte(tc.data))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadFixture_Missing(t *testing.T) {
	_, err := LoadFixture(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("want not-exist error, got %v", err)
	}
}
