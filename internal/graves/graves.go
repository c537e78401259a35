// Package graves records deletion tombstones. Every removed card, note
// or deck leaves one graves row behind so the next sync can propagate
// the deletion; nothing in this process reads them back except
// diagnostics.
package graves

import (
	"context"
	"fmt"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/dbx"
)

// UsnFunc supplies the update sequence number stamped on tombstones:
// the collection's counter in server mode, -1 (pending) in client
// mode.
type UsnFunc func(ctx context.Context) (int, error)

// Keeper writes tombstone rows.
type Keeper struct {
	db  dbx.DBTX
	usn UsnFunc
}

// NewKeeper returns a Keeper bound to the given DBTX.
func NewKeeper(db dbx.DBTX, usn UsnFunc) *Keeper {
	return &Keeper{db: db, usn: usn}
}

// RecordRemoval appends one tombstone per id. An empty list is a
// no-op. Double-burying an id is allowed; sync deduplicates.
func (k *Keeper) RecordRemoval(ctx context.Context, ids []int64, kind common.RemovalType) error {
	if len(ids) == 0 {
		return nil
	}
	usn, err := k.usn(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		_, err := k.db.ExecContext(ctx,
			"insert into graves (usn, oid, type) values (?, ?, ?)",
			usn, id, int(kind))
		if err != nil {
			return fmt.Errorf("failed to record removal of %d: %w", id, err)
		}
	}
	return nil
}

// Count returns the number of tombstones of the given kind.
func (k *Keeper) Count(ctx context.Context, kind common.RemovalType) (int, error) {
	var n int
	err := k.db.QueryRowContext(ctx,
		"select count(*) from graves where type = ?", int(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count graves: %w", err)
	}
	return n, nil
}
