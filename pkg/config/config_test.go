package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/katalog/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysFileOntoDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "katalog.yaml")
	yml := `
data_dir: /var/lib/katalog
log_level: debug
actors:
  - name: prod-fs
    plugin_id: fake.assets
    type: source
    identity_key: prod-fs-1
    config:
      total_assets: 1000
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/katalog", cfg.DataDir)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Actors, 1)
	require.Equal(t, "prod-fs", cfg.Actors[0].Name)
	require.Equal(t, types.ActorTypeSource, cfg.Actors[0].ActorType())
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestActorConfig_DefaultsTypeToSource(t *testing.T) {
	a := ActorConfig{}
	require.Equal(t, types.ActorTypeSource, a.ActorType())
}
