package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileCatalog is a JSON-file-backed ProfileSource: a flat map of dog_id to
// its tagged member embeddings, curated by an operator outside the core.
// Version is the SHA-256 of the file's raw bytes, so an untouched file
// between two RefreshCentroids calls is detected as a no-op without
// needing a separate mtime check.
type FileCatalog struct {
	path string

	mu      sync.Mutex
	members map[string][][]float32
	version string
}

// NewFileCatalog loads path if it exists, or starts with an empty catalog
// if it does not — a fresh install has no tagged dogs yet.
func NewFileCatalog(path string) (*FileCatalog, error) {
	c := &FileCatalog{path: path, members: map[string][][]float32{}}
	if err := c.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return c, nil
}

type catalogFile struct {
	Dogs map[string][][]float32 `json:"dogs"`
}

func (c *FileCatalog) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	var parsed catalogFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("fingerprint: parse catalog %s: %w", c.path, err)
	}
	sum := sha256.Sum256(data)

	c.mu.Lock()
	defer c.mu.Unlock()
	if parsed.Dogs == nil {
		parsed.Dogs = map[string][][]float32{}
	}
	c.members = parsed.Dogs
	c.version = hex.EncodeToString(sum[:])
	return nil
}

// Version reports the catalog file's content hash, reloading it first so a
// change made on disk since the last call is picked up.
func (c *FileCatalog) Version(ctx context.Context) (string, error) {
	if err := c.reload(); err != nil {
		if os.IsNotExist(err) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.version, nil
		}
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version, nil
}

// DogIDs lists every dog currently tagged in the catalog.
func (c *FileCatalog) DogIDs(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.members))
	for id := range c.members {
		ids = append(ids, id)
	}
	return ids, nil
}

// Members returns the tagged embeddings for dogID.
func (c *FileCatalog) Members(ctx context.Context, dogID string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.members[dogID], nil
}
