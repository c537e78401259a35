package sched

import (
	"github.com/cardbox-io/cardbox/internal/decks"
	"github.com/cardbox-io/cardbox/internal/storage"
)

// V1 is the original scheduler generation. Relearning reviews live in
// the learning queue with their return date parked in odue, and
// answers use a three-button ease scale.
type V1 struct {
	base
}

// NewV1 returns a v1 scheduler. Call Reset before relying on the day
// window.
func NewV1(db *storage.DB, dm *decks.Manager) *V1 {
	return &V1{base{db: db, decks: dm}}
}

// Name implements Scheduler.
func (s *V1) Name() string { return "std" }
