package prompt

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/MikeSquared-Agency/Foreman/internal/scoring"
)

// Artifact TTLs by bracket. Complex tasks change less often and are more
// expensive to regenerate, so their artifacts live longer; trivial prompts
// are cheap and vary the most.
var bracketTTL = map[scoring.Bracket]time.Duration{
	scoring.BracketTrivial:  1 * time.Minute,
	scoring.BracketSimple:   3 * time.Minute,
	scoring.BracketModerate: 5 * time.Minute,
	scoring.BracketComplex:  10 * time.Minute,
	scoring.BracketExpert:   30 * time.Minute,
}

// CacheStats reports composer cache behaviour.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Composer selects a template tier for a scored request and renders the
// delegation instruction, caching artifacts keyed by
// (agent_type, content_hash, bracket, resource_tier). The resource tier is
// part of the key because the full template embeds it in the rendered text.
type Composer struct {
	cache  *ristretto.Cache
	scorer *scoring.Scorer
	logger *slog.Logger
}

func NewComposer(scorer *scoring.Scorer, logger *slog.Logger) (*Composer, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     8 << 20, // 8 MiB of rendered text
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("prompt cache: %w", err)
	}
	return &Composer{cache: cache, scorer: scorer, logger: logger}, nil
}

// Compose renders the instruction for a request. Cached artifacts are reused
// within their bracket TTL; rendering itself is deterministic so a cache miss
// and a hit produce byte-identical text.
func (c *Composer) Compose(profile Profile, req Request, score int, rt scoring.ResourceTier) *Artifact {
	bracket := c.scorer.Bracket(score)
	tier := TierForBracket(bracket)
	key := req.AgentType + ":" + req.ContentHash() + ":" + string(bracket) + ":" + rt.Name

	if v, ok := c.cache.Get(key); ok {
		if cached, ok := v.(*Artifact); ok {
			hit := *cached
			hit.CacheHit = true
			return &hit
		}
	}

	text := Render(tier, profile, req, score, rt)
	artifact := &Artifact{
		Text:         text,
		Length:       len(text),
		TemplateTier: tier,
		Bracket:      bracket,
		ResourceTier: rt,
	}

	ttl := bracketTTL[bracket]
	c.cache.SetWithTTL(key, artifact, int64(len(text)), ttl)
	c.logger.Debug("prompt composed",
		"agent", req.AgentType, "tier", tier, "bracket", bracket,
		"length", artifact.Length, "ttl", ttl)
	return artifact
}

// Stats exposes hit/miss counters for the admin surface.
func (c *Composer) Stats() CacheStats {
	m := c.cache.Metrics
	return CacheStats{Hits: int64(m.Hits()), Misses: int64(m.Misses())}
}

// Close releases the cache's internal goroutines.
func (c *Composer) Close() {
	c.cache.Close()
}
