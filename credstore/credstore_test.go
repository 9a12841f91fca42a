package credstore

import (
	"path/filepath"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"

	"github.com/bilifetch/bilifetch"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "credentials.db"))
	require_.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	assert := assert_.New(t)
	store := tempStore(t)

	_, ok, err := store.Load()
	assert.NoError(err)
	assert.False(ok)

	saved := bilifetch.Credentials{SessionToken: "tok", CryptoToken: "csrf", UserID: "42"}
	assert.NoError(store.Save(saved))

	creds, ok, err := store.Load()
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(saved, creds)
}

func TestStoreSaveReplaces(t *testing.T) {
	assert := assert_.New(t)
	store := tempStore(t)

	assert.NoError(store.Save(bilifetch.Credentials{SessionToken: "old", CryptoToken: "old"}))
	assert.NoError(store.Save(bilifetch.Credentials{SessionToken: "new", CryptoToken: "new"}))

	creds, ok, err := store.Load()
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("new", creds.SessionToken)
}

func TestStoreClear(t *testing.T) {
	assert := assert_.New(t)
	store := tempStore(t)

	assert.NoError(store.Save(bilifetch.Credentials{SessionToken: "tok", CryptoToken: "csrf"}))
	assert.NoError(store.Clear())
	// Clearing an already empty store is fine too.
	assert.NoError(store.Clear())

	_, ok, err := store.Load()
	assert.NoError(err)
	assert.False(ok)
}

func TestStoreSurvivesReopen(t *testing.T) {
	assert := assert_.New(t)
	path := filepath.Join(t.TempDir(), "credentials.db")

	store, err := Open(path)
	require_.NoError(t, err)
	assert.NoError(store.Save(bilifetch.Credentials{SessionToken: "tok", CryptoToken: "csrf"}))
	assert.NoError(store.Close())

	store, err = Open(path)
	require_.NoError(t, err)
	defer store.Close()
	creds, ok, err := store.Load()
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("tok", creds.SessionToken)
}
