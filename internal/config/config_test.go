package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
provider:
  client_id: cid
  client_secret: secret
  token_url: https://api.example.com/oauth/token
  graphql_url: https://api.example.com/graphql
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	require.Equal(t, 90*time.Second, cfg.Tokens.RefreshBuffer)
	require.Equal(t, 50, cfg.Fetch.PageSize)
	require.Equal(t, 20, cfg.Fetch.PageCeiling)
	require.Equal(t, 100, cfg.Fetch.RecordCap)
	require.Equal(t, "fieldserve", cfg.Provider.Name)
	require.Equal(t, "cid", cfg.Provider.ClientID)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte(minimalYAML + "\nfetch:\n  page_size: 0\n"))
	require.Error(t, err)

	_, err = Parse([]byte("provider:\n  token_url: x\n"))
	require.Error(t, err)

	_, err = Parse([]byte("not: [valid"))
	require.Error(t, err)
}

func TestValidateMinPageSizeBounds(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	cfg.Fetch.MinPageSize = cfg.Fetch.PageSize + 1
	require.Error(t, cfg.Validate())
}

func TestLoaderEnvSubstitution(t *testing.T) {
	t.Setenv("TW_TEST_SECRET", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := minimalYAML + "\nstorage:\n  encryption_key: ${TW_TEST_SECRET}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loader := NewLoader(path, zerolog.Nop())
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Storage.EncryptionKey)
	require.Same(t, cfg, loader.Get())
}

func TestLoaderMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"), zerolog.Nop())
	_, err := loader.Load()
	require.Error(t, err)
}

func TestReloadFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	loader := NewLoader(path, zerolog.Nop())
	_, err := loader.Load()
	require.NoError(t, err)

	var got *Config
	loader.SetOnChange(func(c *Config) { got = c })

	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"\nserver:\n  http_port: 9999\n"), 0o600))
	cfg, err := loader.Reload()
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.HTTPPort)
	require.Same(t, cfg, got)
}
