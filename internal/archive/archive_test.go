package archive

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "sub", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestArchive_PutGet(t *testing.T) {
	a := openTemp(t)
	id := uuid.NewString()
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, a.Put(Match{ID: id, StartedAt: started, Players: 2, LastTick: 99, Reason: "timeout"}, []byte("replay-bytes")))

	m, replay, err := a.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("replay-bytes"), replay)
	assert.Equal(t, 2, m.Players)
	assert.Equal(t, int64(99), m.LastTick)
	assert.Equal(t, len("replay-bytes"), m.Size)
	assert.True(t, started.Equal(m.StartedAt))
}

func TestArchive_ListSorted(t *testing.T) {
	a := openTemp(t)
	base := time.Unix(1000, 0).UTC()
	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	for i, offset := range []int{2, 0, 1} {
		require.NoError(t, a.Put(Match{ID: ids[i], StartedAt: base.Add(time.Duration(offset) * time.Minute)}, nil))
	}

	list, err := a.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[1], list[0].ID)
	assert.Equal(t, ids[2], list[1].ID)
	assert.Equal(t, ids[0], list[2].ID)
}

func TestArchive_Errors(t *testing.T) {
	a := openTemp(t)

	err := a.Put(Match{ID: "not-a-uuid"}, nil)
	assert.True(t, errors.Is(err, ErrInvalidID))

	_, _, err = a.Get(uuid.NewString())
	assert.True(t, errors.Is(err, ErrNotFound))

	id := uuid.NewString()
	require.NoError(t, a.Put(Match{ID: id}, []byte{1}))
	require.NoError(t, a.Delete(id))
	assert.True(t, errors.Is(a.Delete(id), ErrNotFound))
}
