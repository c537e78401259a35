// Package collection is the transactional facade over one
// spaced-repetition collection file.
//
// # Overview
//
// The package provides:
//  1. A write-window manager (Save, SaveWith, Autosave, Rollback) that
//     keeps the file inside one long-lived transaction and commits
//     only when something actually changed.
//  2. A two-mode undo log (MarkReview, Undo, UndoName): fine-grained
//     review undo backed by in-memory row snapshots, and coarse named
//     checkpoints backed by transaction rollback.
//  3. Scheduler generation management (SchedVer, ChangeSchedulerVer)
//     including the bulk transforms between the v1 and v2 layouts.
//  4. Schema-change gating (ModSchema, SchemaChanged) with an optional
//     confirmation hook, since a schema change forces the next sync to
//     upload the whole file.
//  5. Deletion with tombstones (RemoveCards, RemoveNotes, RemoveDeck)
//     so an external sync layer can propagate removals.
//  6. Maintenance (CheckDatabase, Optimize) and small session tools:
//     timeboxing, id sequences, user flags, counts.
//
// # Error Handling
//
// Expected conditions are sentinel errors matched with errors.Is:
// common.ErrAbortSchemaMod when the user declines a schema change,
// common.ErrUnsupportedSchedVersion for unknown generations,
// common.ErrCollectionClosed after Close. Undo with no pending state
// is a programming error and panics; gate on UndoName.
//
// # Concurrency
//
// A Collection assumes a single writer. Methods are not safe for
// concurrent use; callers serialize access or wrap the facade.
package collection
