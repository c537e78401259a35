package collection

import (
	"context"
	"fmt"

	"github.com/cardbox-io/cardbox/internal/common"
)

// CheckDatabase verifies file integrity, fixes the structural
// problems it knows about and rebuilds derived state, reporting each
// fix. Pending changes are committed first and parts of the work run
// outside the usual write window; any problem found forces a full
// sync.
func (c *Collection) CheckDatabase(ctx context.Context) (problems []string, err error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	if err := c.SaveWith(ctx, SaveOptions{NoTrx: true}); err != nil {
		return nil, err
	}
	defer func() {
		// get back inside a write window; an error from the checks
		// wins over a failed begin
		if c.db == nil || c.db.InTransaction() {
			return
		}
		if beginErr := c.db.Begin(ctx); err == nil {
			err = beginErr
		}
	}()

	var verdict string
	if err := c.db.Scalar(ctx, &verdict, "pragma integrity_check"); err != nil {
		return nil, fmt.Errorf("failed to run integrity check: %w", err)
	}
	if verdict != "ok" {
		return nil, fmt.Errorf("collection file is corrupt: %s", verdict)
	}

	// cards holding filtered-deck state while sitting in a regular deck
	all, err := c.decks.All(ctx)
	if err != nil {
		return nil, err
	}
	var standard []int64
	for _, d := range all {
		if d.Dyn == 0 {
			standard = append(standard, d.Id)
		}
	}
	ids, err := c.db.List(ctx,
		"select id from cards where odid > 0 and did in "+common.IDList(standard))
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		problems = append(problems, fmt.Sprintf("Fixed %s with invalid properties.", common.Plural(len(ids), "card")))
		if _, err := c.db.ExecContext(ctx, "update cards set odid = 0, odue = 0 where id in "+common.IDList(ids)); err != nil {
			return problems, err
		}
	}

	// cards whose note is gone
	ids, err = c.db.List(ctx, "select id from cards where nid not in (select id from notes)")
	if err != nil {
		return problems, err
	}
	if len(ids) > 0 {
		problems = append(problems, fmt.Sprintf("Deleted %s with missing note.", common.Plural(len(ids), "card")))
		if err := c.RemoveCards(ctx, ids); err != nil {
			return problems, err
		}
	}

	// notes without any cards
	ids, err = c.db.List(ctx, "select id from notes where id not in (select distinct nid from cards)")
	if err != nil {
		return problems, err
	}
	if len(ids) > 0 {
		problems = append(problems, fmt.Sprintf("Deleted %s with no cards.", common.Plural(len(ids), "note")))
		if err := c.removeNotes(ctx, ids); err != nil {
			return problems, err
		}
	}

	// cards pointing at a deleted deck
	deckIDs := make([]int64, 0, len(all))
	for _, d := range all {
		deckIDs = append(deckIDs, d.Id)
	}
	ids, err = c.db.List(ctx, "select id from cards where did not in "+common.IDList(deckIDs))
	if err != nil {
		return problems, err
	}
	if len(ids) > 0 {
		problems = append(problems, fmt.Sprintf("Moved %s to the default deck.", common.Plural(len(ids), "card")))
		usn, err := c.Usn(ctx)
		if err != nil {
			return problems, err
		}
		_, err = c.db.ExecContext(ctx,
			"update cards set did = ?, mod = ?, usn = ? where id in "+common.IDList(ids),
			common.DefaultDeckID, common.IntTime(), usn)
		if err != nil {
			return problems, err
		}
	}

	// new-card positions must stay below the 32-bit line
	usn, err := c.Usn(ctx)
	if err != nil {
		return problems, err
	}
	res, err := c.db.ExecContext(ctx,
		"update cards set due = 1000000, mod = ?, usn = ? where due > 1000000 and type = ?",
		common.IntTime(), usn, common.CardTypeNew)
	if err != nil {
		return problems, err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		problems = append(problems, fmt.Sprintf("Fixed %s with out-of-range position.", common.Plural(int(n), "card")))
	}

	// reseed the new-card position counter
	var maxDue int64
	if err := c.db.Scalar(ctx, &maxDue, "select ifnull(max(due), 0) from cards where type = ?", common.CardTypeNew); err != nil {
		return problems, err
	}
	if err := c.conf.Set(ctx, "nextPos", maxDue+1); err != nil {
		return problems, err
	}

	// reviews far in the future come back to today
	ids, err = c.db.List(ctx, "select id from cards where queue = ? and due > 100000", common.QueueReview)
	if err != nil {
		return problems, err
	}
	if len(ids) > 0 {
		problems = append(problems, fmt.Sprintf("Fixed %s with out-of-range due date.", common.Plural(len(ids), "review card")))
		_, err = c.db.ExecContext(ctx,
			"update cards set due = ?, ivl = 1, mod = ?, usn = ? where id in "+common.IDList(ids),
			c.sched.Today(), common.IntTime(), usn)
		if err != nil {
			return problems, err
		}
	}

	// imported files can carry fractional intervals
	res, err = c.db.ExecContext(ctx,
		"update cards set ivl = round(ivl), due = round(due) where ivl != round(ivl) or due != round(due)")
	if err != nil {
		return problems, err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		problems = append(problems, fmt.Sprintf("Fixed %s with fractional intervals.", common.Plural(int(n), "card")))
	}

	if err := c.Optimize(ctx); err != nil {
		return problems, err
	}
	if len(problems) > 0 {
		if err := c.ModSchema(ctx, false); err != nil {
			return problems, err
		}
	}
	if err := c.Save(ctx); err != nil {
		return problems, err
	}
	c.log.Info(ctx, "database checked", "problems", len(problems))
	return problems, nil
}

// Optimize compacts and re-analyzes the collection file, then takes
// out a fresh write window.
func (c *Collection) Optimize(ctx context.Context) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if err := c.SaveWith(ctx, SaveOptions{NoTrx: true}); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, "vacuum"); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, "analyze"); err != nil {
		return fmt.Errorf("failed to analyze: %w", err)
	}
	return c.db.Begin(ctx)
}
