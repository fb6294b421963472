// Package voices maintains the cache of reference voice samples used for
// voice cloning.
package voices

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/dustin/go-humanize"
)

// Defaults for the sample directory scan.
const (
	DEFAULT_EXTENSION = ".mp3"
	DEFAULT_TTL       = 60 * time.Second
)

// Entry is one discovered voice sample.
type Entry struct {
	Name        string    `json:"id"`
	Path        string    `json:"path"`
	Filename    string    `json:"filename"`
	SizeBytes   int64     `json:"size_bytes"`
	LastScanned time.Time `json:"last_scanned"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithExtension sets the sample file extension, with or without leading dot.
func WithExtension(ext string) Option {
	return func(c *Cache) {
		if ext == "" {
			return
		}

		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		c.extension = strings.ToLower(ext)
	}
}

// Cache maps lower-cased voice names to sample files in a directory. The
// directory is rescanned when a lookup finds the last scan older than ttl.
// Concurrent lookups after expiry may rescan more than once; each scan
// replaces the whole mapping, so the last one wins.
type Cache struct {
	dir       string
	ttl       time.Duration
	extension string
	now       func() time.Time
	log       *logger.Logger

	mutex    sync.RWMutex
	entries  map[string]Entry
	lastScan time.Time
}

// New creates a Cache over dir. No scan happens until the first lookup or an
// explicit Scan.
func New(dir string, ttl time.Duration, log *logger.Logger, opts ...Option) *Cache {
	cache := &Cache{
		dir:       dir,
		ttl:       ttl,
		extension: DEFAULT_EXTENSION,
		now:       time.Now,
		log:       log,
		entries:   map[string]Entry{},
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// Dir returns the scanned directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Scan rebuilds the mapping from the directory and stamps the scan time. A
// missing or unreadable directory yields an empty mapping.
func (c *Cache) Scan() {
	scannedAt := c.now()
	entries := c.readDir(scannedAt)

	c.mutex.Lock()
	c.entries = entries
	c.lastScan = scannedAt
	c.mutex.Unlock()
}

// Resolve returns the sample path for name. Lookup is case-insensitive and
// accepts a trailing sample extension.
func (c *Cache) Resolve(name string) (string, bool) {
	c.refresh()

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, ok := c.entries[c.normalize(name)]
	if !ok {
		return "", false
	}

	return entry.Path, true
}

// ListNames returns the sorted voice names.
func (c *Cache) ListNames() []string {
	c.refresh()

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Entries returns the discovered samples sorted by name.
func (c *Cache) Entries() []Entry {
	c.refresh()

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	return entries
}

func (c *Cache) refresh() {
	c.mutex.RLock()
	expired := c.lastScan.IsZero() || c.now().Sub(c.lastScan) >= c.ttl
	c.mutex.RUnlock()

	if expired {
		c.Scan()
	}
}

func (c *Cache) normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	return strings.TrimSuffix(name, c.extension)
}

// readDir lists the directory. os.ReadDir sorts by filename, so when two files
// normalize to the same name the lexicographically last filename wins.
func (c *Cache) readDir(scannedAt time.Time) map[string]Entry {
	entries := map[string]Entry{}

	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			c.log.Warn("Voice samples directory not found: %s", c.dir)
		} else {
			c.log.Error("Failed to read voice samples directory %s: %v", c.dir, err)
		}

		return entries
	}

	var totalBytes int64

	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}

		filename := dirEntry.Name()
		ext := filepath.Ext(filename)

		if !strings.EqualFold(ext, c.extension) {
			continue
		}

		info, infoErr := dirEntry.Info()
		if infoErr != nil {
			c.log.Warn("Skipping voice sample %s: %v", filename, infoErr)

			continue
		}

		if info.Size() == 0 {
			c.log.Warn("Skipping empty voice sample: %s", filename)

			continue
		}

		path, absErr := filepath.Abs(filepath.Join(c.dir, filename))
		if absErr != nil {
			path = filepath.Join(c.dir, filename)
		}

		name := strings.ToLower(strings.TrimSuffix(filename, ext))
		if previous, exists := entries[name]; exists {
			c.log.Warn("Voice %s: %s replaces %s", name, filename, previous.Filename)
			totalBytes -= previous.SizeBytes
		}

		entries[name] = Entry{
			Name:        name,
			Path:        path,
			Filename:    filename,
			SizeBytes:   info.Size(),
			LastScanned: scannedAt,
		}
		totalBytes += info.Size()
	}

	c.log.Info(
		"Discovered %d voice samples in %s (%s)",
		len(entries),
		c.dir,
		humanize.IBytes(uint64(max(totalBytes, 0))),
	)

	return entries
}
