package infra

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLite_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.db")
	db, err := NewSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE t (id INTEGER)`)
	assert.NoError(t, err)
}

func TestNewLogger_WritesWithoutFile(t *testing.T) {
	log := NewLogger("", false)
	require.NotNil(t, log)
	log.Info("hello")
}
