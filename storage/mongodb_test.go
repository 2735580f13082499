package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwmail/pasta/internal/common"
)

func TestMongoArtifact_KeepsNanoseconds(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 999999999, time.UTC)
	a := makeArtifact("abc123", "x.py", created)
	a.Seq = 7

	back := toMongoArtifact(a).toModel()
	assert.True(t, back.CreatedAt.Equal(created))
	assert.Equal(t, int64(7), back.Seq)
	assert.Equal(t, "py", back.Extension)
}

// TestMongoMetadataIndex_Live runs against a real server when
// PASTA_TEST_MONGODB_URI is set.
func TestMongoMetadataIndex_Live(t *testing.T) {
	uri := os.Getenv("PASTA_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("PASTA_TEST_MONGODB_URI not set")
	}
	ctx := context.Background()
	idx, err := NewMongoMetadataIndex(ctx, uri, "pasta_test", "artifacts_"+time.Now().Format("150405.000000"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = idx.collection.Drop(context.Background())
		_ = idx.Close()
	})

	base := time.Now().UTC()
	require.NoError(t, idx.Insert(ctx, makeArtifact("one", "a.txt", base)))
	require.NoError(t, idx.Insert(ctx, makeArtifact("two", "b.md", base.Add(time.Second))))
	assert.ErrorIs(t, idx.Insert(ctx, makeArtifact("one", "c.txt", base)), ErrDuplicateIdentifier)

	list, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[0].Identifier)

	require.NoError(t, idx.Delete(ctx, "one"))
	assert.ErrorIs(t, idx.Delete(ctx, "one"), common.ErrNotFound)

	got, err := idx.Get(ctx, "one")
	require.NoError(t, err)
	assert.Nil(t, got)
}
