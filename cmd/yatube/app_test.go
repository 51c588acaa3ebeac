package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/UkralStul/yatube/internal/config"
	"github.com/UkralStul/yatube/internal/storage"
	"github.com/UkralStul/yatube/internal/storage/inmemory"
	"github.com/UkralStul/yatube/internal/storage/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv убирает переменные, которые могли остаться в окружении разработчика.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"YATUBE_ADDR", "PORT", "YATUBE_STORAGE", "DATABASE_URL", "YATUBE_SQLITE_PATH", "YATUBE_LOG_LEVEL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "yatube version "+Version+"\n", out.String())
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("YATUBE_STORAGE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/yatube")

	cfg, err := loadConfig(options{storage: config.StorageSQLite, addr: ":7000", logLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, config.StorageSQLite, cfg.Storage)
	assert.Equal(t, ":7000", cfg.ListenAddr())
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = loadConfig(options{storage: "mongo"})
	assert.Error(t, err)
}

func TestLoadConfig_FlagRescuesBrokenEnvStorage(t *testing.T) {
	clearEnv(t)
	t.Setenv("YATUBE_STORAGE", "postgres")

	_, err := loadConfig(options{})
	assert.ErrorContains(t, err, "DATABASE_URL")

	cfg, err := loadConfig(options{storage: config.StorageInMemory})
	require.NoError(t, err)
	assert.Equal(t, config.StorageInMemory, cfg.Storage)
}

func TestOpenStore(t *testing.T) {
	clearEnv(t)
	cfg, err := loadConfig(options{})
	require.NoError(t, err)
	s, closer, err := openStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &inmemory.Store{}, s)
	assert.NoError(t, closer.Close())

	cfg.Storage = config.StorageSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "yatube.db")
	s, closer, err = openStore(cfg)
	require.NoError(t, err)
	defer closer.Close()
	_, err = s.ListGroups(context.Background())
	assert.NoError(t, err)
}

func TestRunSeed_SQLite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "yatube.db")
	t.Setenv("YATUBE_SQLITE_PATH", path)

	require.NoError(t, runSeed(context.Background(), options{storage: config.StorageSQLite}, ""))
	// Повторный запуск ничего не дублирует.
	require.NoError(t, runSeed(context.Background(), options{storage: config.StorageSQLite}, ""))

	store, err := sqlite.Open(path)
	require.NoError(t, err)
	total, err := store.CountPosts(context.Background(), storage.PostFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.NoError(t, store.Close())

	err = runSeed(context.Background(), options{storage: config.StorageInMemory}, "")
	assert.Error(t, err)
}

func TestSeedDefault(t *testing.T) {
	s := inmemory.New()
	require.NoError(t, seedDefault(context.Background(), s))
	groups, err := s.ListGroups(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, groups)
}
