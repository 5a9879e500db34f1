package refutation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReverseQueriesAppliesFixedSuffixList(t *testing.T) {
	queries := ReverseQueries("vitamin D supplementation reduces fracture risk in older adults")
	assert.Len(t, queries, 5, "spec names a fixed five-suffix list")
	for _, q := range queries {
		assert.True(t, strings.HasPrefix(q, "vitamin D supplementation reduces fracture risk in older adults"))
	}
}

func TestReverseQueriesTruncatesClaimPrefix(t *testing.T) {
	longText := strings.Repeat("a", 500)
	queries := ReverseQueries(longText)
	wantPrefix := strings.Repeat("a", claimPrefixChars)
	for _, q := range queries {
		assert.True(t, strings.HasPrefix(q, wantPrefix))
		assert.False(t, strings.HasPrefix(q, wantPrefix+"a"), "prefix must be truncated to exactly claimPrefixChars")
	}
}
