package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const migrationsDir = "../../db/migrations"

func TestEveryMigrationHasADownFile(t *testing.T) {
	ups, err := migrationFiles(migrationsDir, upSuffix)
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	downs, err := migrationFiles(migrationsDir, downSuffix)
	require.NoError(t, err)
	require.Len(t, downs, len(ups))

	for i, up := range ups {
		version := strings.TrimSuffix(filepath.Base(up), upSuffix)
		assert.Equal(t, version, strings.TrimSuffix(filepath.Base(downs[i]), downSuffix))
	}
}

func TestMigrationFilesOrderedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003_dir.up.sql"), 0o700))

	files, err := migrationFiles(dir, upSuffix)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "0001_a.up.sql"),
		filepath.Join(dir, "0002_b.up.sql"),
	}, files)

	_, err = migrationFiles(filepath.Join(dir, "missing"), upSuffix)
	assert.Error(t, err)
}
