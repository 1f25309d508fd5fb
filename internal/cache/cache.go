// Package cache stores small binary values on disk with a TTL and a total
// size cap. It backs the embedding cache so unchanged schema text is not
// re-embedded across runs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const entrySuffix = ".entry"

// ErrMiss is returned by Get when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// Cache is the storage contract used by the embedding layer
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (*Stats, error)
}

// Stats summarizes cache usage since the cache was opened
type Stats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Evictions    int64   `json:"evictions"`
	TotalEntries int64   `json:"total_entries"`
	TotalSize    int64   `json:"total_size"`
	HitRate      float64 `json:"hit_rate"`
}

type entry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Data      []byte    `json:"data"`
}

// FileCache keeps one JSON file per key in a directory
type FileCache struct {
	directory  string
	maxBytes   int64
	defaultTTL time.Duration
	now        func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewFileCache creates the directory if needed. maxSizeMB <= 0 disables the
// size cap and defaultTTL <= 0 means entries never expire unless Set is given
// an explicit TTL.
func NewFileCache(directory string, maxSizeMB int, defaultTTL time.Duration) (*FileCache, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileCache{
		directory:  directory,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// Get returns the stored value or ErrMiss
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.read(c.pathFor(key))
	if err != nil || e.Key != key || c.expired(e) {
		c.stats.Misses++
		return nil, ErrMiss
	}

	c.stats.Hits++

	return e.Data, nil
}

// Set stores data under key. A zero ttl uses the cache default.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	e := entry{Key: key, CreatedAt: c.now(), Data: data}
	if ttl > 0 {
		e.ExpiresAt = e.CreatedAt.Add(ttl)
	}

	encoded, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.makeRoom(int64(len(encoded))); err != nil {
		return err
	}

	path := c.pathFor(key)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}

	return nil
}

// Delete removes key; a missing key is not an error
func (c *FileCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}

	return nil
}

// Clear removes every entry and resets the counters
func (c *FileCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	files, err := c.entryFiles()
	if err != nil {
		return err
	}

	for _, f := range files {
		_ = os.Remove(f.path)
	}

	c.stats = Stats{}

	return nil
}

// Cleanup removes expired entries and returns how many were dropped
func (c *FileCache) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	files, err := c.entryFiles()
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, f := range files {
		e, err := c.read(f.path)
		if err != nil || c.expired(e) {
			_ = os.Remove(f.path)
			removed++
		}
	}

	return removed, nil
}

// Stats reports counters plus the current entry count and size on disk
func (c *FileCache) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	files, err := c.entryFiles()
	if err != nil {
		return nil, err
	}

	stats := c.stats
	stats.TotalEntries = int64(len(files))

	for _, f := range files {
		stats.TotalSize += f.size
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	return &stats, nil
}

func (c *FileCache) expired(e *entry) bool {
	return !e.ExpiresAt.IsZero() && c.now().After(e.ExpiresAt)
}

func (c *FileCache) read(path string) (*entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}

	return &e, nil
}

func (c *FileCache) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.directory, hex.EncodeToString(sum[:16])+entrySuffix)
}

type entryFile struct {
	path    string
	size    int64
	modTime time.Time
}

func (c *FileCache) entryFiles() ([]entryFile, error) {
	dirEntries, err := os.ReadDir(c.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	files := make([]entryFile, 0, len(dirEntries))

	for _, d := range dirEntries {
		if d.IsDir() || !strings.HasSuffix(d.Name(), entrySuffix) {
			continue
		}

		info, err := d.Info()
		if err != nil {
			continue
		}

		files = append(files, entryFile{
			path:    filepath.Join(c.directory, d.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}

	return files, nil
}

// makeRoom evicts the oldest entries until incoming bytes fit under the cap.
// Caller holds c.mu.
func (c *FileCache) makeRoom(incoming int64) error {
	if c.maxBytes <= 0 {
		return nil
	}

	files, err := c.entryFiles()
	if err != nil {
		return err
	}

	var used int64
	for _, f := range files {
		used += f.size
	}

	if used+incoming <= c.maxBytes {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	for _, f := range files {
		if used+incoming <= c.maxBytes {
			break
		}

		if err := os.Remove(f.path); err == nil {
			used -= f.size
			c.stats.Evictions++
		}
	}

	return nil
}
