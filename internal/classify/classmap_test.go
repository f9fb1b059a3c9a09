package classify_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/machug/woofalytics-v2-sub000/internal/classify"
)

func TestLoadClassMapParsesLabelIndexPairs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.labels.json")
	if err := os.WriteFile(path, []byte(`{"Dog":0,"Bark":1,"Speech":2}`), 0o644); err != nil {
		t.Fatalf("write class map: %v", err)
	}

	got, err := classify.LoadClassMap(path)
	if err != nil {
		t.Fatalf("LoadClassMap: %v", err)
	}
	want := map[string]int{"Dog": 0, "Bark": 1, "Speech": 2}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for label, idx := range want {
		if got[label] != idx {
			t.Fatalf("label %q: expected index %d, got %d", label, idx, got[label])
		}
	}
}

func TestLoadClassMapMissingFile(t *testing.T) {
	_, err := classify.LoadClassMap(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatalf("expected error for missing class map file")
	}
}

func TestLoadClassMapInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write bad class map: %v", err)
	}
	if _, err := classify.LoadClassMap(path); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}
