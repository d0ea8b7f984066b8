package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "items", cfg.ItemsCollection)
	assert.Equal(t, "authenticated", cfg.ItemsPolicy)
	assert.Equal(t, int64(100), cfg.ListLimit)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ITEMS_COLLECTION", "songs")
	t.Setenv("ITEMS_POLICY", `method == "GET" || authenticated`)
	t.Setenv("ITEMS_LIST_LIMIT", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "songs", cfg.ItemsCollection)
	assert.Equal(t, `method == "GET" || authenticated`, cfg.ItemsPolicy)
	assert.Equal(t, int64(100), cfg.ListLimit)
}

func TestValidate_RejectsBlank(t *testing.T) {
	assert.Error(t, (&Config{ItemsCollection: " ", ItemsPolicy: "true"}).Validate())
	assert.Error(t, (&Config{ItemsCollection: "items", ItemsPolicy: ""}).Validate())
}
