package graves

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/storage"
)

func setupKeeper(t *testing.T, usn int) (*Keeper, *storage.DB) {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "col.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	k := NewKeeper(db, func(ctx context.Context) (int, error) { return usn, nil })
	return k, db
}

func TestRecordRemoval_WritesOneRowPerID(t *testing.T) {
	k, db := setupKeeper(t, -1)
	ctx := context.Background()

	require.NoError(t, k.RecordRemoval(ctx, []int64{10, 20, 30}, common.RemovalCard))

	oids, err := db.List(ctx, "select oid from graves where type = ? order by oid", int(common.RemovalCard))
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, oids)

	usns, err := db.List(ctx, "select distinct usn from graves")
	require.NoError(t, err)
	assert.Equal(t, []int64{-1}, usns, "client-mode tombstones carry usn -1")
}

func TestRecordRemoval_ServerModeStampsCounter(t *testing.T) {
	k, db := setupKeeper(t, 42)
	ctx := context.Background()

	require.NoError(t, k.RecordRemoval(ctx, []int64{7}, common.RemovalNote))

	var usn int
	require.NoError(t, db.Scalar(ctx, &usn, "select usn from graves where oid = 7"))
	assert.Equal(t, 42, usn)
}

func TestRecordRemoval_EmptyListIsNoOp(t *testing.T) {
	k, db := setupKeeper(t, -1)
	ctx := context.Background()
	db.ClearMod()

	require.NoError(t, k.RecordRemoval(ctx, nil, common.RemovalDeck))

	n, err := k.Count(ctx, common.RemovalDeck)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, db.Mod(), "no writes for an empty list")
}

func TestCount_FiltersByKind(t *testing.T) {
	k, _ := setupKeeper(t, -1)
	ctx := context.Background()

	require.NoError(t, k.RecordRemoval(ctx, []int64{1, 2}, common.RemovalCard))
	require.NoError(t, k.RecordRemoval(ctx, []int64{3}, common.RemovalNote))

	cards, err := k.Count(ctx, common.RemovalCard)
	require.NoError(t, err)
	notes, err := k.Count(ctx, common.RemovalNote)
	require.NoError(t, err)
	decksN, err := k.Count(ctx, common.RemovalDeck)
	require.NoError(t, err)

	assert.Equal(t, 2, cards)
	assert.Equal(t, 1, notes)
	assert.Zero(t, decksN)
}
