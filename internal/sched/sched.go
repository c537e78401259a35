// Package sched holds the two scheduler generations the collection can
// run under. The collection core drives only the narrow surface below:
// rep counting, day bookkeeping, per-deck stat updates and the bulk
// transforms that move a collection between generations. Answering
// cards is the business of a scheduling frontend built on top of this.
package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/cardbox-io/cardbox/internal/decks"
	"github.com/cardbox-io/cardbox/internal/models"
	"github.com/cardbox-io/cardbox/internal/storage"
)

// Bucket names the per-day statistic a review contributes to.
type Bucket string

const (
	BucketNew    Bucket = "new"
	BucketLearn  Bucket = "lrn"
	BucketReview Bucket = "rev"
)

// UsnFunc supplies the update sequence number stamped on bulk updates.
type UsnFunc func(ctx context.Context) (int, error)

// Scheduler is the generation-independent surface the collection uses.
type Scheduler interface {
	// Name identifies the generation: "std" for v1, "std2" for v2.
	Name() string

	// Reps counts answers recorded since the scheduler was loaded.
	Reps() int

	// AddReps adjusts the rep counter; undo passes -1.
	AddReps(delta int)

	// Reset recomputes the day window. Call after load and whenever
	// the collection state changes underneath the scheduler.
	Reset(ctx context.Context) error

	// Today is the number of days elapsed since collection creation.
	Today() int

	// DayCutoff is the epoch second at which today ends.
	DayCutoff() int64

	// CardConf resolves the scheduling flags of the card's deck.
	CardConf(ctx context.Context, card *models.Card) (decks.Conf, error)

	// UpdateStats adds delta to the bucket's today counter on the
	// card's deck and all its ancestors.
	UpdateStats(ctx context.Context, card *models.Card, bucket Bucket, delta int) error
}

// base carries the state and behavior both generations share.
type base struct {
	db    *storage.DB
	decks *decks.Manager

	reps      int
	today     int
	dayCutoff int64
}

func (b *base) Reps() int { return b.reps }

func (b *base) AddReps(delta int) { b.reps += delta }

func (b *base) Today() int { return b.today }

func (b *base) DayCutoff() int64 { return b.dayCutoff }

func (b *base) Reset(ctx context.Context) error {
	return b.updateCutoff(ctx)
}

func (b *base) updateCutoff(ctx context.Context) error {
	var crt int64
	if err := b.db.Scalar(ctx, &crt, "select crt from col"); err != nil {
		return fmt.Errorf("failed to read creation stamp: %w", err)
	}
	b.today = int((time.Now().Unix() - crt) / 86400)
	b.dayCutoff = crt + int64(b.today+1)*86400
	return nil
}

func (b *base) CardConf(ctx context.Context, card *models.Card) (decks.Conf, error) {
	return b.decks.ConfForDeck(ctx, card.Did)
}

func (b *base) UpdateStats(ctx context.Context, card *models.Card, bucket Bucket, delta int) error {
	d, err := b.decks.GetOrDefault(ctx, card.Did)
	if err != nil {
		return err
	}
	parents, err := b.decks.Parents(ctx, d.Id)
	if err != nil {
		return err
	}
	for _, g := range append([]*decks.Deck{d}, parents...) {
		switch bucket {
		case BucketNew:
			g.NewToday[1] += delta
		case BucketLearn:
			g.LrnToday[1] += delta
		case BucketReview:
			g.RevToday[1] += delta
		default:
			return fmt.Errorf("unknown stat bucket %q", bucket)
		}
		if err := b.decks.Save(ctx, g); err != nil {
			return err
		}
	}
	return nil
}
