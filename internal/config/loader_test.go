package config

import (
	"os"
	"path/filepath"
	"testing"
)

type testDoc struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func TestSaveLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.yaml")

	in := testDoc{Name: "alpha", Count: 3}
	if err := SaveYAML(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}

	var out testDoc
	if err := LoadYAML(path, &out); err != nil {
		t.Fatalf("load: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}

	// No temp files left behind next to the target.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want just doc.yaml", len(entries))
	}
}

func TestLoadYAMLOrDefault(t *testing.T) {
	dir := t.TempDir()

	fallback := func() *testDoc { return &testDoc{Name: "default"} }

	got, err := LoadYAMLOrDefault(filepath.Join(dir, "missing.yaml"), fallback)
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if got.Name != "default" {
		t.Errorf("missing file: got %+v, want the default", got)
	}

	path := filepath.Join(dir, "doc.yaml")
	if err := SaveYAML(path, testDoc{Name: "saved", Count: 7}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = LoadYAMLOrDefault(path, fallback)
	if err != nil {
		t.Fatalf("existing file: %v", err)
	}
	if got.Name != "saved" || got.Count != 7 {
		t.Errorf("existing file: got %+v", got)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("{not yaml"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadYAMLOrDefault(bad, fallback); err == nil {
		t.Error("malformed file: expected error, got default")
	}
}
