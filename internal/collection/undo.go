package collection

import (
	"context"
	"fmt"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/models"
	"github.com/cardbox-io/cardbox/internal/sched"
)

// undoRecord is the pending undo step. Exactly two implementations
// exist: reviewUndo and checkpointUndo. New operations that want undo
// support add a variant rather than widening these.
type undoRecord interface {
	label() string
}

// reviewUndo holds pre-answer snapshots of reviewed cards, oldest
// first. The leech flag belongs to the batch as a whole: it is set
// when the batch starts and kept as later reviews stack on top.
type reviewUndo struct {
	entries  []*models.Card
	wasLeech bool
}

func (r *reviewUndo) label() string { return "Review" }

// checkpointUndo names a savepoint restored by rolling the
// transaction back.
type checkpointUndo struct {
	name string
}

func (p *checkpointUndo) label() string { return p.name }

// UndoName returns the label of the pending undo step: "Review",
// the checkpoint's name, or "" when there is nothing to undo.
func (c *Collection) UndoName() string {
	if c.undo == nil {
		return ""
	}
	return c.undo.label()
}

// ClearUndo drops any pending undo state.
func (c *Collection) ClearUndo() {
	c.undo = nil
}

// markCheckpoint is called from SaveWith. A label establishes a new
// checkpoint; a plain save invalidates an old checkpoint but leaves
// review undo alone, since review snapshots survive commits.
func (c *Collection) markCheckpoint(label string) {
	if label != "" {
		c.undo = &checkpointUndo{name: label}
		return
	}
	if _, ok := c.undo.(*checkpointUndo); ok {
		c.ClearUndo()
	}
}

// MarkReview snapshots card before its answer is applied so the
// review can be undone. Consecutive reviews stack; any other pending
// undo state is replaced by a fresh batch.
func (c *Collection) MarkReview(ctx context.Context, card *models.Card) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if r, ok := c.undo.(*reviewUndo); ok {
		r.entries = append(r.entries, card.Clone())
		return nil
	}
	note, err := models.LoadNote(ctx, c.db, card.Nid)
	if err != nil {
		return fmt.Errorf("failed to load note %d: %w", card.Nid, err)
	}
	c.undo = &reviewUndo{
		entries:  []*models.Card{card.Clone()},
		wasLeech: note.HasTag("leech"),
	}
	return nil
}

// Undo reverts the most recent undoable step. Review undo returns
// the id of the restored card so the caller can requeue it;
// checkpoint undo returns 0.
//
// Calling Undo with nothing pending is a programming error and
// panics; gate on UndoName.
func (c *Collection) Undo(ctx context.Context) (int64, error) {
	if err := c.ensureOpen(); err != nil {
		return 0, err
	}
	switch rec := c.undo.(type) {
	case *reviewUndo:
		return c.undoReview(ctx, rec)
	case *checkpointUndo:
		return 0, c.undoCheckpoint(ctx, rec)
	default:
		panic("collection: Undo called with no undo state")
	}
}

func (c *Collection) undoCheckpoint(ctx context.Context, rec *checkpointUndo) error {
	if err := c.Rollback(ctx); err != nil {
		return err
	}
	c.ClearUndo()
	c.log.Info(ctx, "checkpoint undone", "name", rec.name)
	return nil
}

// undoReview pops the newest snapshot and puts the card back the way
// it was before the answer, together with everything the answer
// dragged along: the leech tag, the review log row, buried siblings
// and the day's counters.
func (c *Collection) undoReview(ctx context.Context, rec *reviewUndo) (int64, error) {
	card := rec.entries[len(rec.entries)-1]
	rec.entries = rec.entries[:len(rec.entries)-1]
	if len(rec.entries) == 0 {
		c.ClearUndo()
	}

	usn, err := c.Usn(ctx)
	if err != nil {
		return 0, err
	}

	// remove a leech tag the answer added
	if !rec.wasLeech {
		note, err := models.LoadNote(ctx, c.db, card.Nid)
		if err != nil {
			return 0, fmt.Errorf("failed to load note %d: %w", card.Nid, err)
		}
		if note.HasTag("leech") {
			note.DelTag("leech")
			if err := note.Flush(ctx, c.db, usn); err != nil {
				return 0, err
			}
		}
	}

	// restore the full pre-answer row
	if err := card.Flush(ctx, c.db, usn); err != nil {
		return 0, err
	}

	// drop the newest review log entry, unless the card was only
	// previewed in a filtered deck without rescheduling
	dconf, err := c.sched.CardConf(ctx, card)
	if err != nil {
		return 0, err
	}
	if !dconf.Dyn || dconf.Resched {
		var last int64
		err := c.db.Scalar(ctx, &last,
			"select id from revlog where cid = ? order by id desc limit 1", card.Id)
		if err != nil {
			return 0, err
		}
		if _, err := c.db.ExecContext(ctx, "delete from revlog where id = ?", last); err != nil {
			return 0, fmt.Errorf("failed to delete review log entry: %w", err)
		}
	}

	// restore any siblings the answer buried
	_, err = c.db.ExecContext(ctx,
		"update cards set queue = type, mod = ?, usn = ? where queue = ? and nid = ?",
		common.IntTime(), usn, common.QueueSiblingBuried, card.Nid)
	if err != nil {
		return 0, fmt.Errorf("failed to unbury siblings: %w", err)
	}

	// roll back the day counter the answer consumed
	queue := card.Queue
	if queue == common.QueueDayLearnRelearn || queue == common.QueuePreview {
		queue = common.QueueLearn
	}
	var bucket sched.Bucket
	switch queue {
	case common.QueueNew:
		bucket = sched.BucketNew
	case common.QueueLearn:
		bucket = sched.BucketLearn
	default:
		bucket = sched.BucketReview
	}
	if err := c.sched.UpdateStats(ctx, card, bucket, -1); err != nil {
		return 0, err
	}
	c.sched.AddReps(-1)

	c.log.Debug(ctx, "review undone", "cid", card.Id)
	return card.Id, nil
}
