package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/fiqh-assistant/internal/adapters/cache"
	"github.com/PabloGalante/fiqh-assistant/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

func open(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreGetSetDelete(t *testing.T) {
	s := open(t, filepath.Join(t.TempDir(), "cache.db"))

	_, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("k", "one"))
	require.NoError(t, s.Set("k", "two"))
	v, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	require.NoError(t, s.Delete("k"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreBacksLocalCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s := open(t, path)

	c := cache.New(s)
	require.NoError(t, c.SetLanguage(domain.LanguageUrdu))
	require.NoError(t, c.SetActiveSessionID("s1"))
	require.NoError(t, s.Close())

	c = cache.New(open(t, path))
	assert.Equal(t, domain.LanguageUrdu, c.Language())
	assert.Equal(t, domain.SessionID("s1"), c.ActiveSessionID())
}
