package conf

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/storage"
)

func setupManager(t *testing.T) (*Manager, *storage.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "col.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	initial, err := json.Marshal(Defaults())
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		"insert into col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags) values (1, 0, 0, 0, 11, 0, 0, 0, ?, '{}', '{}', '{}', '{}')",
		string(initial))
	require.NoError(t, err)

	return NewManager(db), db
}

func TestManager_DefaultsArePresent(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	ver, err := m.GetInt(ctx, "schedVer", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, ver)

	sort, err := m.GetString(ctx, "sortType", "")
	require.NoError(t, err)
	assert.Equal(t, "noteFld", sort)

	est, err := m.GetBool(ctx, "estTimes", false)
	require.NoError(t, err)
	assert.True(t, est)
}

func TestManager_MissingKeyReturnsDefault(t *testing.T) {
	m, _ := setupManager(t)

	v, err := m.GetInt(context.Background(), "noSuchKey", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestManager_SetAndGetRoundTrip(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "timeLim", 600))
	v, err := m.GetInt(ctx, "timeLim", 0)
	require.NoError(t, err)
	assert.Equal(t, 600, v)

	require.NoError(t, m.Set(ctx, "lastUnburied", int64(19500)))
	v64, err := m.GetInt64(ctx, "lastUnburied", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(19500), v64)
}

func TestManager_SetStampsColMod(t *testing.T) {
	m, db := setupManager(t)
	ctx := context.Background()
	db.ClearMod()

	require.NoError(t, m.Set(ctx, "schedVer", 2))

	var mod int64
	require.NoError(t, db.Scalar(ctx, &mod, "select mod from col"))
	assert.Greater(t, mod, int64(0), "config write must stamp col.mod")
	assert.True(t, db.Mod(), "config write must dirty the proxy")
}

func TestManager_GetJSON(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	var decks []int64
	require.NoError(t, m.GetJSON(ctx, "activeDecks", &decks))
	assert.Equal(t, []int64{1}, decks)

	err := m.GetJSON(ctx, "absent", &decks)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestManager_Remove(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	require.NoError(t, m.Remove(ctx, "schedVer"))
	v, err := m.GetInt(ctx, "schedVer", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v, "removed key must fall back to default")

	require.NoError(t, m.Remove(ctx, "neverExisted"))
}
