package fingerprint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeCatalogFile(t *testing.T, path string, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}
}

func TestFileCatalogLoadsTaggedMembers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dog_catalog.json")
	writeCatalogFile(t, path, `{"dogs":{"rex":[[0.1,0.2],[0.3,0.4]]}}`)

	cat, err := NewFileCatalog(path)
	if err != nil {
		t.Fatalf("NewFileCatalog: %v", err)
	}

	ctx := context.Background()
	ids, err := cat.DogIDs(ctx)
	if err != nil {
		t.Fatalf("DogIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "rex" {
		t.Fatalf("expected [rex], got %v", ids)
	}

	members, err := cat.Members(ctx, "rex")
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 member embeddings, got %d", len(members))
	}
}

func TestFileCatalogMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	cat, err := NewFileCatalog(path)
	if err != nil {
		t.Fatalf("NewFileCatalog: %v", err)
	}
	ids, err := cat.DogIDs(context.Background())
	if err != nil {
		t.Fatalf("DogIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty catalog, got %v", ids)
	}
}

func TestFileCatalogVersionChangesWithContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dog_catalog.json")
	writeCatalogFile(t, path, `{"dogs":{"rex":[[0.1,0.2]]}}`)

	cat, err := NewFileCatalog(path)
	if err != nil {
		t.Fatalf("NewFileCatalog: %v", err)
	}
	ctx := context.Background()
	v1, err := cat.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}

	writeCatalogFile(t, path, `{"dogs":{"rex":[[0.1,0.2]],"fido":[[0.5,0.6]]}}`)
	v2, err := cat.Version(ctx)
	if err != nil {
		t.Fatalf("Version after update: %v", err)
	}
	if v1 == v2 {
		t.Fatalf("expected version to change after catalog content changed")
	}

	ids, err := cat.DogIDs(ctx)
	if err != nil {
		t.Fatalf("DogIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 dogs after reload, got %d", len(ids))
	}
}
