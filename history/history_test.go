package history

import (
	"path/filepath"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require_.NoError(t, err)
	return store
}

func TestAddAndRecent(t *testing.T) {
	assert := assert_.New(t)
	store := tempStore(t)

	require_.NoError(t, store.Add(&Record{
		VideoID: "BV1xx411c7mD", Part: 1, Title: "Intro",
		Quality: "1080p", AudioQuality: "192k",
		OutputPath: "/tmp/out.mp4", Status: "completed",
	}))
	require_.NoError(t, store.Add(&Record{
		VideoID: "av170001", Part: 1, Title: "Other",
		Status: "failed", Error: "download exhausted",
	}))

	records, err := store.Recent(10)
	assert.NoError(err)
	require_.Len(t, records, 2)
	// Newest first.
	assert.Equal("failed", records[0].Status)
	assert.Equal("completed", records[1].Status)
	assert.False(records[0].CreatedAt.IsZero())
}

func TestRecentHonorsLimit(t *testing.T) {
	assert := assert_.New(t)
	store := tempStore(t)

	for i := 0; i < 5; i++ {
		require_.NoError(t, store.Add(&Record{VideoID: "BV1xx411c7mD", Part: i + 1, Status: "completed"}))
	}
	records, err := store.Recent(3)
	assert.NoError(err)
	assert.Len(records, 3)
}
