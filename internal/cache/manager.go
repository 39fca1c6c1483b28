// Package cache mediates access to local repository working copies. Each
// (canonical URL, branch) key owns at most one physical checkout; repeated
// acquisitions reuse the prior copy with an incremental fetch instead of
// re-cloning, and concurrent acquisitions of the same key share a single
// fetch instead of duplicating it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/repopulse/repopulse-go/internal/errors"
	"github.com/repopulse/repopulse-go/internal/gitrepo"
)

const metadataFile = "repopulse-cache.json"

// Key identifies one cache entry.
type Key struct {
	URL    string
	Branch string
}

// String renders the key in its canonical form.
func (k Key) String() string {
	return k.URL + "@" + k.Branch
}

// entryName converts the key to a filesystem-safe directory name.
func (k Key) entryName() string {
	url := strings.TrimSuffix(strings.TrimSpace(k.URL), ".git")
	if i := strings.Index(url, "://"); i >= 0 {
		url = url[i+3:]
	}
	url = strings.TrimPrefix(url, "git@")
	url = strings.ReplaceAll(url, ":", "/")

	parts := strings.Split(url, "/")
	name := url
	if n := len(parts); n >= 2 && parts[n-1] != "" && parts[n-2] != "" {
		name = parts[n-2] + "_" + parts[n-1]
	} else if n >= 1 && parts[n-1] != "" {
		name = parts[n-1]
	}
	name = name + "@" + k.Branch

	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	if sanitized == "" {
		sanitized = "unknown_repo"
	}
	return sanitized
}

// Metadata is the staleness sidecar persisted next to each working copy.
type Metadata struct {
	URL       string    `json:"url"`
	Branch    string    `json:"branch"`
	LastFetch time.Time `json:"last_fetch"`
}

// Handle is a scoped lease on a working copy. Release must be called when
// the caller is done, regardless of downstream success or failure.
type Handle struct {
	Path    string
	key     Key
	release func()
	once    sync.Once
}

// Release returns the lease. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(h.release)
}

// Manager is the keyed store shared across concurrent target executions.
// Acquisitions of the same key are serialized; distinct keys proceed in
// full parallelism.
type Manager struct {
	root     string
	provider gitrepo.Provider
	logger   *logrus.Logger
	depth    int
	freshFor time.Duration

	group singleflight.Group

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewManager creates a cache manager rooted at dir. depth bounds clone
// depth; freshFor is how long a fetched entry counts as fresh before the
// next acquisition fetches again.
func NewManager(dir string, provider gitrepo.Provider, logger *logrus.Logger, depth int, freshFor time.Duration) *Manager {
	return &Manager{
		root:     dir,
		provider: provider,
		logger:   logger,
		depth:    depth,
		freshFor: freshFor,
		locks:    make(map[string]*sync.RWMutex),
	}
}

func (m *Manager) keyLock(key Key) *sync.RWMutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key.String()]
	if !ok {
		l = &sync.RWMutex{}
		m.locks[key.String()] = l
	}
	return l
}

// Acquire returns a handle on an up-to-date working copy for key. A prior
// copy is reused and incrementally fetched; force discards it and clones
// fresh. Concurrent callers for the same key wait on one fetch rather
// than triggering duplicates. Failures surface as RepoAccess errors.
func (m *Manager) Acquire(ctx context.Context, key Key, force bool) (*Handle, error) {
	dir := filepath.Join(m.root, key.entryName())

	_, err, shared := m.group.Do(key.String(), func() (any, error) {
		return nil, m.ensure(ctx, key, dir, force)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.TimeoutError(ctx.Err(), fmt.Sprintf("acquiring %s", key))
		}
		return nil, err
	}
	if shared {
		m.logger.WithField("key", key.String()).Debug("Acquisition shared an in-flight fetch")
	}

	lock := m.keyLock(key)
	lock.RLock()
	return &Handle{Path: dir, key: key, release: lock.RUnlock}, nil
}

// ensure makes dir an up-to-date working copy of key. Runs deduplicated
// per key via singleflight; a forced refresh additionally takes the key's
// write lock so it never rips the checkout out from under a reader.
func (m *Manager) ensure(ctx context.Context, key Key, dir string, force bool) error {
	if force {
		lock := m.keyLock(key)
		lock.Lock()
		defer lock.Unlock()
		if err := os.RemoveAll(dir); err != nil {
			return apperrors.RepoAccessErrorf(err, "failed to discard cache entry %s", key)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if err := os.MkdirAll(m.root, 0o755); err != nil {
			return apperrors.RepoAccessError(err, "failed to create cache directory")
		}
		m.logger.WithFields(logrus.Fields{"url": key.URL, "dir": dir}).Info("Cloning into cache")
		if err := m.provider.Clone(ctx, key.URL, dir, m.depth); err != nil {
			// A half-written clone must not poison the next run.
			_ = os.RemoveAll(dir)
			return err
		}
		return m.writeMetadata(key, dir)
	}

	meta, err := m.readMetadata(dir)
	if err == nil && m.freshFor > 0 && time.Since(meta.LastFetch) < m.freshFor {
		m.logger.WithField("key", key.String()).Debug("Cache entry fresh, skipping fetch")
		return nil
	}

	m.logger.WithField("key", key.String()).Debug("Fetching cached repository")
	if err := m.provider.Fetch(ctx, dir); err != nil {
		return err
	}
	return m.writeMetadata(key, dir)
}

func (m *Manager) metadataPath(dir string) string {
	return filepath.Join(dir, ".git", metadataFile)
}

func (m *Manager) writeMetadata(key Key, dir string) error {
	meta := Metadata{URL: key.URL, Branch: key.Branch, LastFetch: time.Now().UTC()}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "failed to marshal cache metadata")
	}
	if err := os.WriteFile(m.metadataPath(dir), data, 0o644); err != nil {
		return apperrors.RepoAccessError(err, "failed to write cache metadata")
	}
	return nil
}

func (m *Manager) readMetadata(dir string) (Metadata, error) {
	data, err := os.ReadFile(m.metadataPath(dir))
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Entries lists the cached working copies with their metadata, ordered by
// directory name. Entries without readable metadata are reported with a
// zero LastFetch.
func (m *Manager) Entries() ([]Metadata, error) {
	dirents, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.RepoAccessError(err, "failed to read cache directory")
	}

	var entries []Metadata
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		meta, err := m.readMetadata(filepath.Join(m.root, d.Name()))
		if err != nil {
			meta = Metadata{URL: d.Name()}
		}
		entries = append(entries, meta)
	}
	return entries, nil
}

// Clear removes every cached working copy.
func (m *Manager) Clear() error {
	if err := os.RemoveAll(m.root); err != nil {
		return apperrors.RepoAccessError(err, "failed to clear cache")
	}
	return nil
}
