package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeOptionsTargetOverridesTask(t *testing.T) {
	taskOpts := map[string]any{
		"max_pages":     float64(20),
		"serp_engines":  []any{"google", "bing"},
		"seek_primary":  true,
	}
	targetOpts := map[string]any{
		"max_pages": float64(5),
		"refute":    true,
	}

	opts := mergeOptions(taskOpts, targetOpts)
	assert.Equal(t, 5, opts.MaxPages, "per-target options take precedence over task options")
	assert.Equal(t, []string{"google", "bing"}, opts.SERPEngines, "unset target fields fall back to task options")
	assert.True(t, opts.SeekPrimary)
	assert.True(t, opts.Refute)
}

func TestMergeOptionsHandlesNilMaps(t *testing.T) {
	opts := mergeOptions(nil, nil)
	assert.Equal(t, 0, opts.MaxPages)
	assert.Empty(t, opts.SERPEngines)
}

func TestToStringSliceSkipsNonStrings(t *testing.T) {
	out := toStringSlice([]any{"a", 1, "b", nil})
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestToIntAcceptsJSONNumberShapes(t *testing.T) {
	v, ok := toInt(float64(7))
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = toInt("not a number")
	assert.False(t, ok)
}
