package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pairsJSON = `[
  [
    {"long": "https://www.youtube.com/watch?v=AAA111", "short": "https://www.youtube.com/shorts/BBB222"},
    {"long": "CCC333", "short": "DDD444"}
  ],
  [
    {"long": "https://www.youtube.com/watch?v=EEE555&t=10s"}
  ]
]`

func TestLoadPairsPaired(t *testing.T) {
	path := writeFile(t, "seeds.json", pairsJSON)

	cfg, err := LoadPairs(path, PairPaired)
	require.NoError(t, err)

	assert.Equal(t, "seeds", cfg.Name)
	require.Len(t, cfg.Tasks, 5)

	assert.Equal(t, []string{"AAA111"}, cfg.Tasks[0].VideoIDs)
	assert.Equal(t, ModeLong, cfg.Tasks[0].Mode)
	assert.Equal(t, []string{"BBB222"}, cfg.Tasks[1].VideoIDs)
	assert.Equal(t, ModeShort, cfg.Tasks[1].Mode)

	// query parameters after the id are dropped
	assert.Equal(t, []string{"EEE555"}, cfg.Tasks[4].VideoIDs)

	// seed ids filled by defaulting
	assert.Equal(t, "AAA111", cfg.Tasks[0].SeedID)
}

func TestLoadPairsSingleSide(t *testing.T) {
	path := writeFile(t, "seeds.json", pairsJSON)

	long, err := LoadPairs(path, PairLong)
	require.NoError(t, err)
	require.Len(t, long.Tasks, 3)
	for _, task := range long.Tasks {
		assert.Equal(t, ModeLong, task.Mode)
	}

	short, err := LoadPairs(path, PairShort)
	require.NoError(t, err)
	require.Len(t, short.Tasks, 2)
	for _, task := range short.Tasks {
		assert.Equal(t, ModeShort, task.Mode)
	}
}

func TestLoadPairsErrors(t *testing.T) {
	path := writeFile(t, "seeds.json", pairsJSON)

	_, err := LoadPairs(path, PairMode("sideways"))
	assert.Error(t, err)

	empty := writeFile(t, "empty.json", `[]`)
	_, err = LoadPairs(empty, PairPaired)
	assert.Error(t, err)

	malformed := writeFile(t, "bad.json", `{"not": "a list"}`)
	_, err = LoadPairs(malformed, PairPaired)
	assert.Error(t, err)
}
