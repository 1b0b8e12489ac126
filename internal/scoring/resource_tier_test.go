package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Foreman/internal/config"
)

func defaultResources() config.ResourcesConfig {
	return config.ResourcesConfig{
		DefaultTier: "standard",
		Tiers: []config.ResourceTierDef{
			{Name: "lightweight", Models: []string{"swift-mini"}, MaxOutputTokens: 4096},
			{Name: "standard", Models: []string{"swift-core"}, MaxOutputTokens: 16384},
			{Name: "standard-plus", Models: []string{"swift-core-x"}, MaxOutputTokens: 32768},
			{Name: "advanced", Models: []string{"swift-max"}, MaxOutputTokens: 65536},
		},
	}
}

func testSelector() *Selector {
	return NewSelector(defaultResources(), testScorer())
}

func TestSelectHeuristicMapping(t *testing.T) {
	sel := testSelector()
	tests := []struct {
		score int
		want  string
	}{
		{10, "lightweight"},
		{30, "standard"},
		{50, "standard"},
		{70, "standard-plus"},
		{90, "advanced"},
	}
	for _, tt := range tests {
		tier, warn := sel.Select(tt.score, "")
		assert.Equal(t, tt.want, tier.Name, "score %d", tt.score)
		assert.Nil(t, warn, "no warning expected for score %d", tt.score)
	}
}

func TestSelectValidOverrideWins(t *testing.T) {
	sel := testSelector()
	tier, warn := sel.Select(5, "advanced")
	assert.Equal(t, "advanced", tier.Name, "explicit override must win")
	assert.Nil(t, warn, "valid override must not warn")
	assert.Equal(t, 65536, tier.MaxOutputTokens)
}

func TestSelectInvalidOverrideFallsBack(t *testing.T) {
	sel := testSelector()
	tier, warn := sel.Select(50, "nonexistent-tier")
	assert.Equal(t, "standard", tier.Name, "heuristic choice for moderate score")
	require.NotNil(t, warn, "expected exactly one override warning")
	assert.Equal(t, "nonexistent-tier", warn.Requested, "warning must carry the requested tier")
}

func TestOutputCeilingGrowsWithCapability(t *testing.T) {
	sel := testSelector()
	prev := 0
	for _, name := range tierRank {
		tier, ok := sel.tierByName(name)
		require.True(t, ok, "tier %s missing", name)
		assert.Greater(t, tier.MaxOutputTokens, prev, "tier %s ceiling must grow", name)
		prev = tier.MaxOutputTokens
	}
}

func TestNextTierUp(t *testing.T) {
	sel := testSelector()
	tests := []struct{ from, want string }{
		{"lightweight", "standard"},
		{"standard", "standard-plus"},
		{"standard-plus", "advanced"},
		{"advanced", "advanced"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sel.NextTierUp(tt.from).Name, "NextTierUp(%s)", tt.from)
	}
}
