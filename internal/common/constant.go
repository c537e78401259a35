// Package common contains shared constants, sentinel errors and small
// time helpers used across cardbox components.
package common

// SchemaVersion is the version of the collection file format. It is
// stored in the ver column of the col table and bumped only by schema
// migrations.
const SchemaVersion = 11

// DefaultDeckID is the id of the deck every collection starts with.
const DefaultDeckID = 1

// StartingFactor is the initial ease factor (per mille) assigned to
// cards reset to the new queue.
const StartingFactor = 2500

// Card queues. Negative queues are inactive; the card keeps its type.
const (
	QueueManuallyBuried  = -3
	QueueSiblingBuried   = -2
	QueueSuspended       = -1
	QueueNew             = 0
	QueueLearn           = 1
	QueueReview          = 2
	QueueDayLearnRelearn = 3
	QueuePreview         = 4
)

// Card types.
const (
	CardTypeNew        = 0
	CardTypeLearn      = 1
	CardTypeReview     = 2
	CardTypeRelearning = 3
)

// RemovalType tags a tombstone row with the kind of object it buries.
type RemovalType int

// Tombstone kinds, stored in the type column of the graves table.
const (
	RemovalCard RemovalType = 0
	RemovalNote RemovalType = 1
	RemovalDeck RemovalType = 2
)
