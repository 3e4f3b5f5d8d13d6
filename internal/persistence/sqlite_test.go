package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrek/syntrix-go/internal/mutation"
	"github.com/codetrek/syntrix-go/pkg/model"
)

func openTestStaging(t *testing.T) *SQLiteStaging {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "staging.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStaging_BatchRoundTrip(t *testing.T) {
	s := openTestStaging(t)

	b1 := &mutation.Batch{
		ID:    1,
		State: mutation.StatePending,
		Mutations: []mutation.Mutation{
			mutation.Set("users/alice", map[string]interface{}{"name": "alice"}),
		},
	}
	b2 := &mutation.Batch{
		ID:            2,
		State:         mutation.StateAcknowledged,
		CommitVersion: 42,
		Mutations: []mutation.Mutation{
			mutation.Delete("users/bob"),
		},
	}
	require.NoError(t, s.StageBatch(b1))
	require.NoError(t, s.StageBatch(b2))

	loaded, err := s.LoadBatches()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, int64(1), loaded[0].ID)
	assert.Equal(t, mutation.StatePending, loaded[0].State)
	assert.Equal(t, "users/alice", loaded[0].Mutations[0].Path)
	assert.Equal(t, mutation.KindSet, loaded[0].Mutations[0].Kind)

	assert.Equal(t, int64(2), loaded[1].ID)
	assert.Equal(t, mutation.StateAcknowledged, loaded[1].State)
	assert.Equal(t, int64(42), loaded[1].CommitVersion)
	assert.Equal(t, mutation.KindDelete, loaded[1].Mutations[0].Kind)
}

func TestSQLiteStaging_StageBatchUpdatesState(t *testing.T) {
	s := openTestStaging(t)

	b := &mutation.Batch{
		ID:        1,
		State:     mutation.StatePending,
		Mutations: []mutation.Mutation{mutation.Set("users/alice", nil)},
	}
	require.NoError(t, s.StageBatch(b))

	b.State = mutation.StateAcknowledged
	b.CommitVersion = 7
	require.NoError(t, s.StageBatch(b))

	loaded, err := s.LoadBatches()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, mutation.StateAcknowledged, loaded[0].State)
	assert.Equal(t, int64(7), loaded[0].CommitVersion)
}

func TestSQLiteStaging_RemoveBatch(t *testing.T) {
	s := openTestStaging(t)

	require.NoError(t, s.StageBatch(&mutation.Batch{
		ID:        1,
		State:     mutation.StatePending,
		Mutations: []mutation.Mutation{mutation.Set("users/alice", nil)},
	}))
	require.NoError(t, s.RemoveBatch(1))

	loaded, err := s.LoadBatches()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSQLiteStaging_DocumentRoundTrip(t *testing.T) {
	s := openTestStaging(t)

	doc := model.NewDocument("users/alice", map[string]interface{}{"name": "alice"})
	doc.Version = 12
	require.NoError(t, s.StageDocument(StagedDocument{Path: "users/alice", Doc: doc, Version: 12}))
	// tombstone: no document body
	require.NoError(t, s.StageDocument(StagedDocument{Path: "users/bob", Version: 13}))

	loaded, err := s.LoadDocuments()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byPath := make(map[string]StagedDocument, len(loaded))
	for _, d := range loaded {
		byPath[d.Path] = d
	}

	alice := byPath["users/alice"]
	require.NotNil(t, alice.Doc)
	assert.Equal(t, "alice", alice.Doc.Data["name"])
	assert.Equal(t, int64(12), alice.Version)

	bob := byPath["users/bob"]
	assert.Nil(t, bob.Doc)
	assert.Equal(t, int64(13), bob.Version)
}

func TestSQLiteStaging_RemoveDocument(t *testing.T) {
	s := openTestStaging(t)

	require.NoError(t, s.StageDocument(StagedDocument{Path: "users/alice", Version: 1}))
	require.NoError(t, s.RemoveDocument("users/alice"))

	loaded, err := s.LoadDocuments()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSQLiteStaging_ReopenKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staging.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.StageBatch(&mutation.Batch{
		ID:        1,
		State:     mutation.StatePending,
		Mutations: []mutation.Mutation{mutation.Set("users/alice", nil)},
	}))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadBatches()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, int64(1), loaded[0].ID)
}
