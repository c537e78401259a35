package sched

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/decks"
	"github.com/cardbox-io/cardbox/internal/models"
	"github.com/cardbox-io/cardbox/internal/storage"
)

func clientUsn(ctx context.Context) (int, error) { return -1, nil }

// setupSched opens a collection created ten days ago with the default
// deck plus any extras.
func setupSched(t *testing.T, extra ...*decks.Deck) (*storage.DB, *decks.Manager) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "col.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	byKey := map[string]*decks.Deck{"1": decks.DefaultDeck()}
	for _, d := range extra {
		byKey[strconv.FormatInt(d.Id, 10)] = d
	}
	deckJSON, err := json.Marshal(byKey)
	require.NoError(t, err)

	crt := time.Now().Unix() - 10*86400
	_, err = db.ExecContext(ctx,
		"insert into col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags) values (1, ?, 0, 0, 11, 0, 0, 0, '{}', '{}', ?, ?, '{}')",
		crt, string(deckJSON), decks.DefaultDeckConfigJSON)
	require.NoError(t, err)

	return db, decks.NewManager(db, clientUsn)
}

func insertCard(t *testing.T, db *storage.DB, c *models.Card) {
	t.Helper()
	require.NoError(t, c.Flush(context.Background(), db, -1))
}

func loadCard(t *testing.T, db *storage.DB, id int64) *models.Card {
	t.Helper()
	c, err := models.LoadCard(context.Background(), db, id)
	require.NoError(t, err)
	return c
}

func TestReset_ComputesDayWindow(t *testing.T) {
	db, dm := setupSched(t)
	s := NewV2(db, dm, clientUsn)

	require.NoError(t, s.Reset(context.Background()))

	assert.Equal(t, 10, s.Today())
	now := time.Now().Unix()
	assert.Greater(t, s.DayCutoff(), now)
	assert.LessOrEqual(t, s.DayCutoff(), now+86400)
}

func TestAddReps(t *testing.T) {
	db, dm := setupSched(t)
	s := NewV1(db, dm)

	assert.Zero(t, s.Reps())
	s.AddReps(3)
	s.AddReps(-1)
	assert.Equal(t, 2, s.Reps())
}

func TestNames(t *testing.T) {
	db, dm := setupSched(t)
	assert.Equal(t, "std", NewV1(db, dm).Name())
	assert.Equal(t, "std2", NewV2(db, dm, clientUsn).Name())
}

func TestUpdateStats_PropagatesToParents(t *testing.T) {
	db, dm := setupSched(t,
		&decks.Deck{Id: 10, Name: "Lang", Conf: 1},
		&decks.Deck{Id: 11, Name: "Lang::German", Conf: 1},
	)
	s := NewV1(db, dm)
	ctx := context.Background()

	card := &models.Card{Id: 1, Nid: 1, Did: 11, Queue: 2, Type: 2}
	require.NoError(t, s.UpdateStats(ctx, card, BucketReview, -1))

	child, err := dm.Get(ctx, 11)
	require.NoError(t, err)
	parent, err := dm.Get(ctx, 10)
	require.NoError(t, err)
	root, err := dm.Get(ctx, common.DefaultDeckID)
	require.NoError(t, err)

	assert.Equal(t, -1, child.RevToday[1])
	assert.Equal(t, -1, parent.RevToday[1])
	assert.Zero(t, root.RevToday[1], "unrelated deck untouched")
}

func TestUpdateStats_DanglingDeckFallsBackToDefault(t *testing.T) {
	db, dm := setupSched(t)
	s := NewV1(db, dm)
	ctx := context.Background()

	card := &models.Card{Id: 1, Did: 999}
	require.NoError(t, s.UpdateStats(ctx, card, BucketLearn, 1))

	d, err := dm.Get(ctx, common.DefaultDeckID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.LrnToday[1])
}

func TestMoveToV2_EmptiesFilteredDecks(t *testing.T) {
	db, dm := setupSched(t)
	s := NewV2(db, dm, clientUsn)
	ctx := context.Background()

	// A learning card sitting in filtered deck 3, home deck 5.
	insertCard(t, db, &models.Card{
		Id: 1, Nid: 100, Did: 3, Odid: 5, Odue: 77,
		Type: common.CardTypeLearn, Queue: common.QueueLearn, Due: 12345,
	})

	require.NoError(t, s.MoveToV2(ctx))

	c := loadCard(t, db, 1)
	assert.Equal(t, int64(5), c.Did, "card must go back to its home deck")
	assert.Zero(t, c.Odid)
	assert.Zero(t, c.Odue)
	assert.Equal(t, common.CardTypeNew, c.Type, "learning folds to new")
	assert.Equal(t, common.QueueNew, c.Queue)
}

func TestMoveToV2_RestoresRelearningToReview(t *testing.T) {
	db, dm := setupSched(t)
	s := NewV2(db, dm, clientUsn)
	ctx := context.Background()

	// v1 relearning: review type parked in the learning queue with the
	// return day in odue.
	insertCard(t, db, &models.Card{
		Id: 1, Nid: 100, Did: 1,
		Type: common.CardTypeReview, Queue: common.QueueLearn,
		Due: 1700000000, Odue: 15, Ivl: 9,
	})

	require.NoError(t, s.MoveToV2(ctx))

	c := loadCard(t, db, 1)
	assert.Equal(t, common.CardTypeReview, c.Type)
	assert.Equal(t, common.QueueReview, c.Queue)
	assert.Equal(t, int64(15), c.Due, "due restored from odue when leaving v1")
	assert.Zero(t, c.Odue)
}

func TestMoveToV2_ForgetsNewInLearning(t *testing.T) {
	db, dm := setupSched(t)
	s := NewV2(db, dm, clientUsn)
	ctx := context.Background()

	// An ordinary new card occupying position 5.
	insertCard(t, db, &models.Card{
		Id: 1, Nid: 100, Did: 1, Type: common.CardTypeNew, Queue: common.QueueNew, Due: 5,
	})
	// Two siblings of one note, still in initial learning.
	insertCard(t, db, &models.Card{
		Id: 2, Nid: 200, Did: 1, Type: common.CardTypeLearn, Queue: common.QueueLearn,
		Due: 1700000000, Factor: 2100,
	})
	insertCard(t, db, &models.Card{
		Id: 3, Nid: 200, Did: 1, Type: common.CardTypeLearn, Queue: common.QueueLearn,
		Due: 1700000300, Factor: 2100,
	})

	require.NoError(t, s.MoveToV2(ctx))

	c2, c3 := loadCard(t, db, 2), loadCard(t, db, 3)
	for _, c := range []*models.Card{c2, c3} {
		assert.Equal(t, common.CardTypeNew, c.Type)
		assert.Equal(t, common.QueueNew, c.Queue)
		assert.Zero(t, c.Ivl)
		assert.Equal(t, common.StartingFactor, c.Factor)
	}
	assert.Equal(t, int64(6), c2.Due, "repositioned after the last new card")
	assert.Equal(t, c2.Due, c3.Due, "siblings share one position")

	c1 := loadCard(t, db, 1)
	assert.Equal(t, int64(5), c1.Due, "existing new card untouched")
}

func TestMoveToV2_RemapsLearningAnswerEases(t *testing.T) {
	db, dm := setupSched(t)
	s := NewV2(db, dm, clientUsn)
	ctx := context.Background()

	seed := []struct {
		id    int64
		ease  int
		typ   int
		wantE int64
	}{
		{1, 2, 0, 3}, // learning "good" moves up
		{2, 3, 2, 4}, // relearning "easy" moves up
		{3, 2, 1, 2}, // review answers keep their scale
		{4, 1, 0, 1}, // "again" is shared between scales
	}
	for _, r := range seed {
		_, err := db.ExecContext(ctx,
			"insert into revlog (id, cid, usn, ease, ivl, lastIvl, factor, time, type) values (?, 1, -1, ?, 0, 0, 0, 0, ?)",
			r.id, r.ease, r.typ)
		require.NoError(t, err)
	}

	require.NoError(t, s.MoveToV2(ctx))

	for _, r := range seed {
		var ease int64
		require.NoError(t, db.Scalar(ctx, &ease, "select ease from revlog where id = ?", r.id))
		assert.Equal(t, r.wantE, ease, "revlog %d", r.id)
	}
}

func TestMoveToV1_RelearningUsesTodayPlusInterval(t *testing.T) {
	db, dm := setupSched(t)
	s := NewV2(db, dm, clientUsn)
	ctx := context.Background()

	// v2 relearning card with a 4-day interval.
	insertCard(t, db, &models.Card{
		Id: 1, Nid: 100, Did: 1,
		Type: common.CardTypeRelearning, Queue: common.QueueLearn,
		Due: 1700000000, Ivl: 4,
	})

	require.NoError(t, s.MoveToV1(ctx))

	c := loadCard(t, db, 1)
	assert.Equal(t, common.CardTypeReview, c.Type)
	assert.Equal(t, common.QueueReview, c.Queue)
	assert.Equal(t, int64(14), c.Due, "ten days old collection plus 4-day interval")
}

func TestMoveToV1_FoldsManuallyBuried(t *testing.T) {
	db, dm := setupSched(t)
	s := NewV2(db, dm, clientUsn)
	ctx := context.Background()

	insertCard(t, db, &models.Card{
		Id: 1, Nid: 100, Did: 1,
		Type: common.CardTypeReview, Queue: common.QueueManuallyBuried, Due: 20, Ivl: 3,
	})

	require.NoError(t, s.MoveToV1(ctx))

	c := loadCard(t, db, 1)
	assert.Equal(t, common.QueueSiblingBuried, c.Queue)
}

func TestMoveToV1_ResetsSuspendedLearning(t *testing.T) {
	db, dm := setupSched(t)
	s := NewV2(db, dm, clientUsn)
	ctx := context.Background()

	// Suspended initial-learning card, no original due.
	insertCard(t, db, &models.Card{
		Id: 1, Nid: 100, Did: 1,
		Type: common.CardTypeLearn, Queue: common.QueueSuspended, Due: 100,
	})
	// Suspended relearning card with original due parked in odue.
	insertCard(t, db, &models.Card{
		Id: 2, Nid: 101, Did: 1,
		Type: common.CardTypeRelearning, Queue: common.QueueSuspended, Due: 1700000000, Odue: 8,
	})

	require.NoError(t, s.MoveToV1(ctx))

	c1 := loadCard(t, db, 1)
	assert.Equal(t, common.CardTypeNew, c1.Type)
	assert.Equal(t, common.QueueSuspended, c1.Queue, "suspension itself survives")
	assert.Equal(t, int64(100), c1.Due)

	c2 := loadCard(t, db, 2)
	assert.Equal(t, common.CardTypeReview, c2.Type)
	assert.Equal(t, int64(8), c2.Due, "odue wins when set")
	assert.Zero(t, c2.Odue)
}

func TestMoveToV1_RemapsLearningAnswerEases(t *testing.T) {
	db, dm := setupSched(t)
	s := NewV2(db, dm, clientUsn)
	ctx := context.Background()

	seed := []struct {
		id    int64
		ease  int
		typ   int
		wantE int64
	}{
		{1, 3, 0, 2}, // learning "good" moves down
		{2, 4, 2, 3}, // relearning "easy" moves down
		{3, 3, 1, 3}, // review answers keep their scale
		{4, 2, 0, 2}, // below the remapped range
	}
	for _, r := range seed {
		_, err := db.ExecContext(ctx,
			"insert into revlog (id, cid, usn, ease, ivl, lastIvl, factor, time, type) values (?, 1, -1, ?, 0, 0, 0, 0, ?)",
			r.id, r.ease, r.typ)
		require.NoError(t, err)
	}

	require.NoError(t, s.MoveToV1(ctx))

	for _, r := range seed {
		var ease int64
		require.NoError(t, db.Scalar(ctx, &ease, "select ease from revlog where id = ?", r.id))
		assert.Equal(t, r.wantE, ease, "revlog %d", r.id)
	}
}
