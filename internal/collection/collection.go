package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/conf"
	"github.com/cardbox-io/cardbox/internal/dbx"
	"github.com/cardbox-io/cardbox/internal/decks"
	"github.com/cardbox-io/cardbox/internal/graves"
	"github.com/cardbox-io/cardbox/internal/logging"
	"github.com/cardbox-io/cardbox/internal/sched"
	"github.com/cardbox-io/cardbox/internal/storage"
)

// autosaveEvery is how long the collection may stay unsaved before
// Autosave commits.
const autosaveEvery = 300 * time.Second

// ConfirmFunc is consulted before an operation that forces the next
// sync to upload the full collection. Returning false aborts the
// operation.
type ConfirmFunc func(ctx context.Context) bool

// Options configure Open.
type Options struct {
	// Server stamps new and changed objects with the collection's
	// update sequence counter instead of the -1 pending marker.
	Server bool
	// Logger receives the action log. Nil discards it.
	Logger logging.Logger
	// SchemaWillChange gates schema-modifying operations. Nil means
	// always proceed.
	SchemaWillChange ConfirmFunc
}

// Collection owns one collection file and everything loaded from it.
type Collection struct {
	path   string
	server bool
	log    logging.Logger

	db     *storage.DB
	decks  *decks.Manager
	conf   *conf.Manager
	graves *graves.Keeper
	sched  sched.Scheduler

	confirmSchema ConfirmFunc

	undo     undoRecord
	lastSave time.Time

	timeboxStart time.Time
	timeboxReps  int
}

// Open loads the collection at path, creating and seeding the file if
// it does not exist yet, and takes out the initial write window.
func Open(ctx context.Context, path string, opts *Options) (*Collection, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	db, err := storage.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	c := &Collection{
		path:          path,
		server:        opts.Server,
		log:           log,
		confirmSchema: opts.SchemaWillChange,
		lastSave:      time.Now(),
	}
	c.wire(db)

	if err := c.seedIfEmpty(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := c.loadScheduler(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Begin(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info(ctx, "collection opened", "path", path, "server", opts.Server)
	return c, nil
}

// wire binds the managers to a storage handle. Used by Open and
// Reopen; the managers route every statement through db so they stay
// inside the current write window.
func (c *Collection) wire(db *storage.DB) {
	c.db = db
	c.conf = conf.NewManager(db)
	c.decks = decks.NewManager(db, c.Usn)
	c.graves = graves.NewKeeper(db, c.Usn)
}

// seedIfEmpty writes the initial col row for a freshly created file.
// Runs in its own short transaction, before the long-lived window
// opens.
func (c *Collection) seedIfEmpty(ctx context.Context) error {
	var n int
	if err := c.db.Scalar(ctx, &n, "select count(*) from col"); err != nil {
		return fmt.Errorf("failed to probe col table: %w", err)
	}
	if n > 0 {
		return nil
	}

	confJSON, err := json.Marshal(conf.Defaults())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	deck := decks.DefaultDeck()
	decksJSON, err := json.Marshal(map[string]*decks.Deck{
		strconv.FormatInt(deck.Id, 10): deck,
	})
	if err != nil {
		return fmt.Errorf("failed to encode default deck: %w", err)
	}

	now := time.Now()
	err = dbx.WithTx(ctx, c.db.Unwrap(), nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `
insert into col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
values (1, ?, ?, ?, ?, 0, 0, 0, ?, '{}', ?, ?, '{}')`,
			common.CreationStamp(now), now.UnixMilli(), now.UnixMilli(),
			common.SchemaVersion, string(confJSON), string(decksJSON),
			decks.DefaultDeckConfigJSON)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to seed collection: %w", err)
	}
	c.log.Info(ctx, "collection created", "path", c.path)
	return nil
}

// Path returns the collection file path.
func (c *Collection) Path() string { return c.path }

// Decks exposes the deck manager.
func (c *Collection) Decks() *decks.Manager { return c.decks }

// Conf exposes the collection config.
func (c *Collection) Conf() *conf.Manager { return c.conf }

// Graves exposes the tombstone keeper.
func (c *Collection) Graves() *graves.Keeper { return c.graves }

// Sched exposes the active scheduler.
func (c *Collection) Sched() sched.Scheduler { return c.sched }

func (c *Collection) ensureOpen() error {
	if c.db == nil {
		return common.ErrCollectionClosed
	}
	return nil
}

// Crt returns the creation stamp in seconds since the epoch.
func (c *Collection) Crt(ctx context.Context) (int64, error) {
	return c.colInt64(ctx, "crt")
}

// Mod returns the modification stamp in milliseconds.
func (c *Collection) Mod(ctx context.Context) (int64, error) {
	return c.colInt64(ctx, "mod")
}

// Scm returns the schema modification stamp in milliseconds.
func (c *Collection) Scm(ctx context.Context) (int64, error) {
	return c.colInt64(ctx, "scm")
}

// Ls returns the last full sync stamp in milliseconds.
func (c *Collection) Ls(ctx context.Context) (int64, error) {
	return c.colInt64(ctx, "ls")
}

func (c *Collection) colInt64(ctx context.Context, column string) (int64, error) {
	var v int64
	if err := c.db.Scalar(ctx, &v, "select "+column+" from col"); err != nil {
		return 0, fmt.Errorf("failed to read col.%s: %w", column, err)
	}
	return v, nil
}

// Usn returns the update sequence number objects are stamped with:
// the collection counter in server mode, -1 (pending) otherwise.
func (c *Collection) Usn(ctx context.Context) (int, error) {
	if !c.server {
		return -1, nil
	}
	var usn int
	if err := c.db.Scalar(ctx, &usn, "select usn from col"); err != nil {
		return 0, fmt.Errorf("failed to read col.usn: %w", err)
	}
	return usn, nil
}

// SaveOptions control SaveWith.
type SaveOptions struct {
	// Label records a named checkpoint that Undo can roll back to.
	Label string
	// Mod, when non-zero, is stored as the modification stamp instead
	// of the current time. A sync layer uses this to mirror server
	// stamps.
	Mod int64
	// NoTrx leaves the collection outside a write window after the
	// save. Maintenance statements such as vacuum need this; reopen
	// the window with Rollback or a later Save.
	NoTrx bool
}

// Save commits pending changes, if any, and keeps the write window
// open. A clean collection commits nothing.
func (c *Collection) Save(ctx context.Context) error {
	return c.SaveWith(ctx, SaveOptions{})
}

// SaveWith is Save with explicit options.
func (c *Collection) SaveWith(ctx context.Context, o SaveOptions) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	dirty, err := c.dirty(ctx)
	if err != nil {
		return err
	}
	if dirty {
		mod := o.Mod
		if mod == 0 {
			mod = common.IntTimeMS()
		}
		if _, err := c.db.ExecContext(ctx, "update col set mod = ?", mod); err != nil {
			return fmt.Errorf("failed to stamp modification time: %w", err)
		}
		if c.db.InTransaction() {
			if err := c.db.Commit(); err != nil {
				return fmt.Errorf("failed to commit: %w", err)
			}
		}
		c.db.ClearMod()
		if !o.NoTrx {
			if err := c.db.Begin(ctx); err != nil {
				return err
			}
		}
	} else if o.NoTrx && c.db.InTransaction() {
		// caller expects to end up outside a transaction
		if err := c.db.Rollback(); err != nil {
			return err
		}
	}
	c.markCheckpoint(o.Label)
	c.lastSave = time.Now()
	c.log.Debug(ctx, "saved", "label", o.Label, "committed", dirty)
	return nil
}

// dirty reports whether a commit would record anything: either the
// write sniffer fired, or col.mod moved since the window opened.
func (c *Collection) dirty(ctx context.Context) (bool, error) {
	if c.db.Mod() {
		return true, nil
	}
	if !c.db.InTransaction() {
		return false, nil
	}
	var mod int64
	if err := c.db.Scalar(ctx, &mod, "select mod from col"); err != nil {
		return false, fmt.Errorf("failed to read col.mod: %w", err)
	}
	return mod != c.db.LastBeginAt(), nil
}

// Autosave saves when the collection has been unsaved for more than
// five minutes. It reports whether a save ran.
func (c *Collection) Autosave(ctx context.Context) (bool, error) {
	if time.Since(c.lastSave) <= autosaveEvery {
		return false, nil
	}
	if err := c.Save(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Rollback discards everything since the last commit and reopens the
// write window. Caches reload from the restored state.
func (c *Collection) Rollback(ctx context.Context) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if err := c.db.Rollback(); err != nil {
		return err
	}
	c.db.ClearMod()
	c.decks.Invalidate()
	return c.db.Begin(ctx)
}

// SchemaChanged reports whether the schema was modified since the
// last full sync.
func (c *Collection) SchemaChanged(ctx context.Context) (bool, error) {
	var scm, ls int64
	err := c.db.QueryRowContext(ctx, "select scm, ls from col").Scan(&scm, &ls)
	if err != nil {
		return false, fmt.Errorf("failed to read schema stamps: %w", err)
	}
	return scm > ls, nil
}

// ModSchema marks the schema modified, forcing the next sync to
// upload the whole collection. When check is true and the schema is
// currently clean, the confirmation hook may veto the change with
// common.ErrAbortSchemaMod.
func (c *Collection) ModSchema(ctx context.Context, check bool) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	changed, err := c.SchemaChanged(ctx)
	if err != nil {
		return err
	}
	if !changed && check && c.confirmSchema != nil && !c.confirmSchema(ctx) {
		return common.ErrAbortSchemaMod
	}
	if _, err := c.db.ExecContext(ctx, "update col set scm = ?", common.IntTimeMS()); err != nil {
		return fmt.Errorf("failed to stamp schema modification: %w", err)
	}
	c.log.Info(ctx, "schema marked modified")
	return c.Save(ctx)
}

// CardCount returns the number of cards.
func (c *Collection) CardCount(ctx context.Context) (int, error) {
	var n int
	err := c.db.Scalar(ctx, &n, "select count(*) from cards")
	return n, err
}

// NoteCount returns the number of notes.
func (c *Collection) NoteCount(ctx context.Context) (int, error) {
	var n int
	err := c.db.Scalar(ctx, &n, "select count(*) from notes")
	return n, err
}

// IsEmpty reports whether the collection has no cards.
func (c *Collection) IsEmpty(ctx context.Context) (bool, error) {
	var one int
	if err := c.db.Scalar(ctx, &one, "select 1 from cards limit 1"); err != nil {
		return false, err
	}
	return one == 0, nil
}

// NextID returns the next value of the named id sequence and
// advances it. Sequences live in the collection config under
// "next" + Kind; new-card positions use kind "pos".
func (c *Collection) NextID(ctx context.Context, kind string) (int64, error) {
	if kind == "" {
		return 0, fmt.Errorf("empty id sequence name")
	}
	key := "next" + strings.ToUpper(kind[:1]) + kind[1:]
	id, err := c.conf.GetInt64(ctx, key, 1)
	if err != nil {
		return 0, err
	}
	if err := c.conf.Set(ctx, key, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

// SetUserFlag stores flag (0-7) in the low bits of the given cards'
// flags column.
func (c *Collection) SetUserFlag(ctx context.Context, flag int, ids []int64) error {
	if flag < 0 || flag > 7 {
		return fmt.Errorf("%w: %d", common.ErrInvalidFlag, flag)
	}
	if len(ids) == 0 {
		return nil
	}
	usn, err := c.Usn(ctx)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		"update cards set flags = (flags & ~?) | ?, usn = ?, mod = ? where id in "+common.IDList(ids),
		0b111, flag, usn, common.IntTime())
	if err != nil {
		return fmt.Errorf("failed to set user flag: %w", err)
	}
	return nil
}

// StartTimebox begins a study time window.
func (c *Collection) StartTimebox() {
	c.timeboxStart = time.Now()
	c.timeboxReps = c.sched.Reps()
}

// TimeboxReached reports whether the configured study limit has
// elapsed since StartTimebox, returning the limit and the number of
// reps done inside it. A zero timeLim disables timeboxing.
func (c *Collection) TimeboxReached(ctx context.Context) (limit time.Duration, reps int, reached bool, err error) {
	lim, err := c.conf.GetInt(ctx, "timeLim", 0)
	if err != nil || lim == 0 {
		return 0, 0, false, err
	}
	limit = time.Duration(lim) * time.Second
	if time.Since(c.timeboxStart) > limit {
		return limit, c.sched.Reps() - c.timeboxReps, true, nil
	}
	return 0, 0, false, nil
}

// Close saves (or discards) pending changes and releases the file.
// The collection can be brought back with Reopen.
func (c *Collection) Close(ctx context.Context, save bool) error {
	if c.db == nil {
		return nil
	}
	var err error
	if save {
		err = c.SaveWith(ctx, SaveOptions{NoTrx: true})
	} else if c.db.InTransaction() {
		err = c.db.Rollback()
	}
	if closeErr := c.db.Close(); err == nil {
		err = closeErr
	}
	c.db = nil
	c.decks.Invalidate()
	c.log.Info(ctx, "collection closed", "path", c.path, "saved", save)
	return err
}

// Reopen reconnects to the collection file after Close.
func (c *Collection) Reopen(ctx context.Context) error {
	if c.db != nil {
		return fmt.Errorf("collection is already open")
	}
	db, err := storage.Open(ctx, c.path)
	if err != nil {
		return err
	}
	c.wire(db)
	if err := c.loadScheduler(ctx); err != nil {
		_ = db.Close()
		c.db = nil
		return err
	}
	return c.db.Begin(ctx)
}
