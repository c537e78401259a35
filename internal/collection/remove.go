package collection

import (
	"context"
	"errors"
	"fmt"

	"github.com/cardbox-io/cardbox/internal/common"
)

// RemoveCards deletes the given cards, recording tombstones. Notes
// left without any cards afterwards are deleted too, under their own
// tombstones, since the two sides of a sync may hold different card
// counts per note.
func (c *Collection) RemoveCards(ctx context.Context, ids []int64) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	nids, err := c.db.List(ctx, "select nid from cards where id in "+common.IDList(ids))
	if err != nil {
		return fmt.Errorf("failed to collect note ids: %w", err)
	}
	if err := c.graves.RecordRemoval(ctx, ids, common.RemovalCard); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, "delete from cards where id in "+common.IDList(ids)); err != nil {
		return fmt.Errorf("failed to delete cards: %w", err)
	}
	orphans, err := c.db.List(ctx,
		"select id from notes where id in "+common.IDList(nids)+" and id not in (select nid from cards)")
	if err != nil {
		return fmt.Errorf("failed to collect orphaned notes: %w", err)
	}
	if err := c.removeNotes(ctx, orphans); err != nil {
		return err
	}
	c.log.Info(ctx, "cards removed", "cards", len(ids), "notes", len(orphans))
	return nil
}

// RemoveNotes deletes the given notes by removing all of their cards.
// A note that has no cards is left for CheckDatabase to sweep.
func (c *Collection) RemoveNotes(ctx context.Context, ids []int64) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	cids, err := c.db.List(ctx, "select id from cards where nid in "+common.IDList(ids))
	if err != nil {
		return fmt.Errorf("failed to collect card ids: %w", err)
	}
	return c.RemoveCards(ctx, cids)
}

// removeNotes deletes note rows directly, with tombstones.
func (c *Collection) removeNotes(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.graves.RecordRemoval(ctx, ids, common.RemovalNote); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, "delete from notes where id in "+common.IDList(ids)); err != nil {
		return fmt.Errorf("failed to delete notes: %w", err)
	}
	return nil
}

// RemoveDeck deletes the deck under a tombstone. With cards true the
// deck's cards go too, including cards currently visiting a filtered
// deck; otherwise the cards keep their deck id until the next
// CheckDatabase folds them into the default deck. The default deck
// cannot be removed.
func (c *Collection) RemoveDeck(ctx context.Context, id int64, cards bool) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if id == common.DefaultDeckID {
		return fmt.Errorf("default deck cannot be removed")
	}
	// the tombstone is recorded whether the deck exists locally or
	// not, so a removal seen during sync still propagates
	if err := c.graves.RecordRemoval(ctx, []int64{id}, common.RemovalDeck); err != nil {
		return err
	}
	if _, err := c.decks.Get(ctx, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	if cards {
		cids, err := c.db.List(ctx, "select id from cards where did = ? or odid = ?", id, id)
		if err != nil {
			return fmt.Errorf("failed to collect deck cards: %w", err)
		}
		if err := c.RemoveCards(ctx, cids); err != nil {
			return err
		}
	}
	if err := c.decks.Remove(ctx, id); err != nil {
		return err
	}
	c.log.Info(ctx, "deck removed", "did", id, "cards", cards)
	return nil
}
