// Package models defines the card and note row types persisted in the
// collection file, with load/flush helpers written against dbx.DBTX so
// they work inside and outside the collection transaction.
package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/dbx"
)

// Card is one cards row. Due is interpreted per queue: position for
// new cards, an epoch stamp for learning cards, days since collection
// creation for review cards. While a card sits in a filtered deck,
// Odid/Odue hold its home deck and original due.
type Card struct {
	Id     int64
	Nid    int64
	Did    int64
	Ord    int
	Mod    int64
	Usn    int
	Type   int
	Queue  int
	Due    int64
	Ivl    int
	Factor int
	Reps   int
	Lapses int
	Left   int
	Odue   int64
	Odid   int64
	Flags  int
	Data   string
}

const cardColumns = "id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data"

// LoadCard reads the card with the given id.
func LoadCard(ctx context.Context, db dbx.DBTX, id int64) (*Card, error) {
	c := &Card{}
	err := db.QueryRowContext(ctx,
		"select "+cardColumns+" from cards where id = ?", id).Scan(
		&c.Id, &c.Nid, &c.Did, &c.Ord, &c.Mod, &c.Usn, &c.Type, &c.Queue,
		&c.Due, &c.Ivl, &c.Factor, &c.Reps, &c.Lapses, &c.Left, &c.Odue,
		&c.Odid, &c.Flags, &c.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load card %d: %w", id, err)
	}
	return c, nil
}

// Flush writes the full row back, stamping mod and usn. Restoring a
// snapshot overwrites every column, which undo relies on.
func (c *Card) Flush(ctx context.Context, db dbx.DBTX, usn int) error {
	if c.Due >= 1<<32 {
		return fmt.Errorf("card %d has out-of-range due %d", c.Id, c.Due)
	}
	c.Mod = common.IntTime()
	c.Usn = usn
	_, err := db.ExecContext(ctx,
		"insert or replace into cards ("+cardColumns+") values (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		c.Id, c.Nid, c.Did, c.Ord, c.Mod, c.Usn, c.Type, c.Queue, c.Due,
		c.Ivl, c.Factor, c.Reps, c.Lapses, c.Left, c.Odue, c.Odid, c.Flags,
		c.Data)
	if err != nil {
		return fmt.Errorf("failed to flush card %d: %w", c.Id, err)
	}
	return nil
}

// Clone returns an independent copy, suitable as an undo snapshot.
func (c *Card) Clone() *Card {
	cc := *c
	return &cc
}
