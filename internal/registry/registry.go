package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/MikeSquared-Agency/Foreman/internal/config"
)

// ErrProfileNotFound means no tier, including the system default tier,
// carries a definition for the requested role.
var ErrProfileNotFound = errors.New("agent profile not found")

// CacheMetrics reports registry cache behaviour for the admin surface.
type CacheMetrics struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Invalidations int64 `json:"invalidations"`
	Entries       int   `json:"entries"`
}

// Registry resolves effective agent profiles across the three tier
// directories and caches the result per role. Resolution is lazy: a role is
// read from disk on first request and served from cache until its sources
// change or the cache is explicitly busted.
type Registry struct {
	tierDirs map[ProfileTier]string
	cache    *lru.Cache[string, *AgentProfile]
	logger   *slog.Logger

	mu      sync.Mutex
	dirty   map[string]bool
	hits    int64
	misses  int64
	busts   int64
	watcher *watcher
}

func New(cfg config.ProfilesConfig, logger *slog.Logger) (*Registry, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 64
	}
	cache, err := lru.New[string, *AgentProfile](size)
	if err != nil {
		return nil, fmt.Errorf("profile cache: %w", err)
	}

	r := &Registry{
		tierDirs: map[ProfileTier]string{
			TierProject: cfg.ProjectDir,
			TierUser:    cfg.UserDir,
			TierSystem:  cfg.SystemDir,
		},
		cache:  cache,
		logger: logger,
		dirty:  map[string]bool{},
	}

	if cfg.WatchDirs {
		w, err := newWatcher(r, logger)
		if err != nil {
			logger.Warn("profile watcher unavailable, cache will only bust explicitly", "error", err)
		} else {
			r.watcher = w
		}
	}
	return r, nil
}

// Close stops the directory watcher if one is running.
func (r *Registry) Close() {
	if r.watcher != nil {
		r.watcher.stop()
	}
}

// Resolve returns the effective profile for a role. The cached value is
// returned without touching disk unless the watcher marked the role dirty,
// in which case the source hash is compared before reuse.
func (r *Registry) Resolve(role string) (*AgentProfile, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return nil, fmt.Errorf("%w: empty role", ErrProfileNotFound)
	}

	r.mu.Lock()
	needsRevalidation := r.dirty[role]
	r.mu.Unlock()

	if cached, ok := r.cache.Get(role); ok {
		if !needsRevalidation {
			r.recordHit()
			return cached, nil
		}
		hash, err := r.sourceHash(role)
		if err == nil && hash == cached.SourceHash {
			r.clearDirty(role)
			r.recordHit()
			return cached, nil
		}
		r.cache.Remove(role)
	}

	r.recordMiss()
	profile, err := r.load(role)
	if err != nil {
		return nil, err
	}
	r.cache.Add(role, profile)
	r.clearDirty(role)
	return profile, nil
}

// ListRoles enumerates every role defined in any tier, sorted.
func (r *Registry) ListRoles() ([]string, error) {
	seen := map[string]bool{}
	for _, dir := range r.tierDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // missing tier dirs are normal
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			seen[strings.TrimSuffix(e.Name(), ".md")] = true
		}
	}
	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles, nil
}

// Invalidate drops one role from the cache.
func (r *Registry) Invalidate(role string) {
	role = strings.ToLower(strings.TrimSpace(role))
	r.cache.Remove(role)
	r.mu.Lock()
	r.busts++
	r.mu.Unlock()
}

// InvalidateAll drops the whole cache.
func (r *Registry) InvalidateAll() {
	r.cache.Purge()
	r.mu.Lock()
	r.busts++
	r.mu.Unlock()
}

func (r *Registry) Metrics() CacheMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return CacheMetrics{
		Hits:          r.hits,
		Misses:        r.misses,
		Invalidations: r.busts,
		Entries:       r.cache.Len(),
	}
}

func (r *Registry) load(role string) (*AgentProfile, error) {
	var docs []tierDoc
	h := sha256.New()

	for _, tier := range tierOrder {
		path := filepath.Join(r.tierDirs[tier], role+".md")
		doc, err := parseProfileFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // absent overrides fall through
			}
			return nil, fmt.Errorf("load %s profile for %q: %w", tier, role, err)
		}
		docs = append(docs, tierDoc{tier: tier, doc: doc})
		h.Write([]byte(path))
		h.Write([]byte(doc.body))
		fmt.Fprintf(h, "%+v", doc.frontmatter)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %q (no definition in any tier)", ErrProfileNotFound, role)
	}

	profile := mergeProfiles(role, docs)
	profile.SourceHash = hex.EncodeToString(h.Sum(nil))
	r.logger.Debug("profile resolved", "role", role, "tier", profile.Tier, "hash", profile.SourceHash[:12])
	return profile, nil
}

func (r *Registry) sourceHash(role string) (string, error) {
	p, err := r.load(role)
	if err != nil {
		return "", err
	}
	return p.SourceHash, nil
}

func (r *Registry) markDirty(role string) {
	r.mu.Lock()
	r.dirty[role] = true
	r.mu.Unlock()
}

func (r *Registry) clearDirty(role string) {
	r.mu.Lock()
	delete(r.dirty, role)
	r.mu.Unlock()
}

func (r *Registry) recordHit() {
	r.mu.Lock()
	r.hits++
	r.mu.Unlock()
}

func (r *Registry) recordMiss() {
	r.mu.Lock()
	r.misses++
	r.mu.Unlock()
}
