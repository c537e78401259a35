package collection

import (
	"context"
	"fmt"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/sched"
)

// Supported scheduler generations.
const (
	SchedV1 = 1
	SchedV2 = 2
)

// SchedVer returns the scheduler generation the collection is
// configured for. Collections created before the setting existed
// default to 1.
func (c *Collection) SchedVer(ctx context.Context) (int, error) {
	ver, err := c.conf.GetInt(ctx, "schedVer", SchedV1)
	if err != nil {
		return 0, err
	}
	if ver != SchedV1 && ver != SchedV2 {
		return 0, fmt.Errorf("%w: %d", common.ErrUnsupportedSchedVersion, ver)
	}
	return ver, nil
}

// loadScheduler instantiates the scheduler matching the configured
// generation and resets its day window.
func (c *Collection) loadScheduler(ctx context.Context) error {
	ver, err := c.SchedVer(ctx)
	if err != nil {
		return err
	}
	switch ver {
	case SchedV1:
		c.sched = sched.NewV1(c.db, c.decks)
	case SchedV2:
		c.sched = sched.NewV2(c.db, c.decks, c.Usn)
	}
	return c.sched.Reset(ctx)
}

// ChangeSchedulerVer migrates the collection to the given scheduler
// generation and reloads the scheduler. Asking for the current
// generation is a no-op.
//
// The move is a schema change (so the confirmation hook may abort it)
// and rewrites cards in bulk, so undo state is wiped on both sides of
// the transforms. The v2 code carries both directions.
func (c *Collection) ChangeSchedulerVer(ctx context.Context, ver int) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	cur, err := c.SchedVer(ctx)
	if err != nil {
		return err
	}
	if ver == cur {
		return nil
	}
	if ver != SchedV1 && ver != SchedV2 {
		return fmt.Errorf("%w: %d", common.ErrUnsupportedSchedVersion, ver)
	}

	if err := c.ModSchema(ctx, true); err != nil {
		return err
	}
	c.ClearUndo()

	v2 := sched.NewV2(c.db, c.decks, c.Usn)
	if ver == SchedV1 {
		err = v2.MoveToV1(ctx)
	} else {
		err = v2.MoveToV2(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to move to scheduler v%d: %w", ver, err)
	}

	if err := c.conf.Set(ctx, "schedVer", ver); err != nil {
		return err
	}
	if err := c.loadScheduler(ctx); err != nil {
		return err
	}
	c.ClearUndo()
	// commit the transforms and the new version together
	if err := c.Save(ctx); err != nil {
		return err
	}
	c.log.Info(ctx, "scheduler version changed", "from", cur, "to", ver)
	return nil
}
