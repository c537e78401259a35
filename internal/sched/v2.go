package sched

import (
	"context"
	"fmt"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/decks"
	"github.com/cardbox-io/cardbox/internal/storage"
)

// V2 is the second scheduler generation: relearning cards get their
// own card type, answers use a four-button ease scale, and manual
// burying is tracked separately from sibling burying. V2 also owns the
// bulk transforms between generations, in both directions, since they
// must understand both on-disk layouts.
type V2 struct {
	base
	usn UsnFunc
}

// NewV2 returns a v2 scheduler. Call Reset before relying on the day
// window.
func NewV2(db *storage.DB, dm *decks.Manager, usn UsnFunc) *V2 {
	return &V2{base: base{db: db, decks: dm}, usn: usn}
}

// Name implements Scheduler.
func (s *V2) Name() string { return "std2" }

// MoveToV2 rewrites card and review-log state written by the v1
// scheduler into v2 form. The caller is responsible for clearing undo
// state and persisting the version around this call.
func (s *V2) MoveToV2(ctx context.Context) error {
	if err := s.updateCutoff(ctx); err != nil {
		return err
	}
	if err := s.emptyAllFiltered(ctx); err != nil {
		return err
	}
	if err := s.removeAllFromLearning(ctx, 1); err != nil {
		return err
	}
	return s.remapLearningAnswers(ctx, "ease = ease + 1 where ease in (2, 3)")
}

// MoveToV1 rewrites v2 state back into the form the v1 scheduler
// understands.
func (s *V2) MoveToV1(ctx context.Context) error {
	if err := s.updateCutoff(ctx); err != nil {
		return err
	}
	if err := s.emptyAllFiltered(ctx); err != nil {
		return err
	}
	if err := s.removeAllFromLearning(ctx, 2); err != nil {
		return err
	}
	if err := s.moveManuallyBuried(ctx); err != nil {
		return err
	}
	if err := s.resetSuspendedLearning(ctx); err != nil {
		return err
	}
	return s.remapLearningAnswers(ctx, "ease = ease - 1 where ease in (3, 4)")
}

// emptyAllFiltered sends every card in a filtered deck back to its
// home deck, folding learning state down to the base type.
func (s *V2) emptyAllFiltered(ctx context.Context) error {
	usn, err := s.usn(ctx)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
update cards set did = odid, queue = (case
when type = 1 then 0
when type = 3 then 2
else type end), type = (case
when type = 1 then 0
when type = 3 then 2
else type end),
due = odue, odue = 0, odid = 0, usn = ? where odid != 0`, usn)
	if err != nil {
		return fmt.Errorf("failed to empty filtered decks: %w", err)
	}
	return nil
}

// removeAllFromLearning takes every card out of the learning queues.
// Review cards in relearning go back to the review queue; their due
// date comes from odue when leaving v1, or today+ivl when leaving v2,
// since only v1 parks the return date in odue. Cards still learning
// for the first time are reset to new.
func (s *V2) removeAllFromLearning(ctx context.Context, fromVersion int) error {
	usn, err := s.usn(ctx)
	if err != nil {
		return err
	}
	now := common.IntTime()
	if fromVersion == 1 {
		_, err = s.db.ExecContext(ctx, `
update cards set due = odue, queue = 2, type = 2, mod = ?, usn = ?, odue = 0
where queue in (1, 4) and type in (2, 3)`, now, usn)
	} else {
		_, err = s.db.ExecContext(ctx, `
update cards set due = ? + ivl, queue = 2, type = 2, mod = ?, usn = ?, odue = 0
where queue in (1, 4) and type in (2, 3)`, s.today, now, usn)
	}
	if err != nil {
		return fmt.Errorf("failed to restore relearning cards: %w", err)
	}

	ids, err := s.db.List(ctx, "select id from cards where queue in (1, 4)")
	if err != nil {
		return err
	}
	return s.forgetCards(ctx, ids)
}

// forgetCards resets the cards to the end of the new queue.
func (s *V2) forgetCards(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	usn, err := s.usn(ctx)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"update cards set type = 0, queue = 0, ivl = 0, due = 0, odue = 0, factor = ? where id in "+common.IDList(ids),
		common.StartingFactor)
	if err != nil {
		return fmt.Errorf("failed to forget cards: %w", err)
	}
	var pmax int64
	if err := s.db.Scalar(ctx, &pmax, "select max(due) from cards where type = 0"); err != nil {
		return err
	}
	return s.sortCards(ctx, ids, pmax+1, usn)
}

// sortCards assigns consecutive new-queue positions starting at start.
// Positions are per note, so siblings stay adjacent.
func (s *V2) sortCards(ctx context.Context, ids []int64, start int64, usn int) error {
	rows, err := s.db.QueryContext(ctx,
		"select id, nid from cards where type = 0 and id in "+common.IDList(ids)+" order by id")
	if err != nil {
		return fmt.Errorf("failed to query cards to sort: %w", err)
	}
	defer rows.Close()

	type cardNote struct{ id, nid int64 }
	var cards []cardNote
	for rows.Next() {
		var c cardNote
		if err := rows.Scan(&c.id, &c.nid); err != nil {
			return fmt.Errorf("failed to scan card to sort: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate cards to sort: %w", err)
	}

	pos := map[int64]int64{}
	next := start
	now := common.IntTime()
	for _, c := range cards {
		p, ok := pos[c.nid]
		if !ok {
			p = next
			pos[c.nid] = p
			next++
		}
		_, err := s.db.ExecContext(ctx,
			"update cards set due = ?, mod = ?, usn = ? where id = ?",
			p, now, usn, c.id)
		if err != nil {
			return fmt.Errorf("failed to reposition card %d: %w", c.id, err)
		}
	}
	return nil
}

// moveManuallyBuried folds manual burials into the sibling-buried
// queue, the only buried queue v1 knows.
func (s *V2) moveManuallyBuried(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"update cards set queue = -2, mod = ? where queue = -3", common.IntTime())
	if err != nil {
		return fmt.Errorf("failed to fold manually buried cards: %w", err)
	}
	return nil
}

// resetSuspendedLearning clears learning state on suspended and buried
// cards, which v1 cannot represent.
func (s *V2) resetSuspendedLearning(ctx context.Context) error {
	usn, err := s.usn(ctx)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
update cards set type = (case
when type = 1 then 0
when type in (2, 3) then 2
else type end),
due = (case when odue then odue else due end), odue = 0,
mod = ?, usn = ?
where queue < 0`, common.IntTime(), usn)
	if err != nil {
		return fmt.Errorf("failed to reset suspended learning cards: %w", err)
	}
	return nil
}

// remapLearningAnswers rewrites ease values on learning and relearning
// review-log entries; review answers keep their scale.
func (s *V2) remapLearningAnswers(ctx context.Context, set string) error {
	_, err := s.db.ExecContext(ctx, "update revlog set "+set+" and type in (0, 2)")
	if err != nil {
		return fmt.Errorf("failed to remap learning answers: %w", err)
	}
	return nil
}
