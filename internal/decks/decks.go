// Package decks manages the deck list stored as a JSON object in the
// decks column of the col row, keyed by stringified deck id. Only the
// parts the collection core needs are modeled: per-day counters,
// filtered-deck flags and the name hierarchy.
package decks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/dbx"
)

// Deck is one entry of the deck list. The Today counters are
// [day, count] pairs; only the count half is touched here, day
// rollover is the scheduler's business.
type Deck struct {
	Id        int64  `json:"id"`
	Name      string `json:"name"`
	Mod       int64  `json:"mod"`
	Usn       int    `json:"usn"`
	Desc      string `json:"desc"`
	Dyn       int    `json:"dyn"`
	Collapsed bool   `json:"collapsed"`
	Conf      int64  `json:"conf"`
	NewToday  [2]int `json:"newToday"`
	RevToday  [2]int `json:"revToday"`
	LrnToday  [2]int `json:"lrnToday"`
	TimeToday [2]int `json:"timeToday"`
	// Filtered-deck settings. Resched controls whether reviews done in
	// the filtered deck reschedule the card in its home deck.
	Resched bool `json:"resched"`
}

// Conf is the slice of deck configuration the scheduler core needs.
type Conf struct {
	Dyn     bool
	Resched bool
}

// UsnFunc supplies the update sequence number to stamp on saves.
type UsnFunc func(ctx context.Context) (int, error)

// Manager caches the deck list and writes it through to the col row.
// Not goroutine-safe; the collection serializes access.
type Manager struct {
	db    dbx.DBTX
	usn   UsnFunc
	cache map[int64]*Deck
}

// NewManager returns a Manager bound to the given DBTX. The usn
// function is consulted on every save.
func NewManager(db dbx.DBTX, usn UsnFunc) *Manager {
	return &Manager{db: db, usn: usn}
}

// DefaultDeck returns the deck a fresh collection starts with.
func DefaultDeck() *Deck {
	return &Deck{
		Id:   common.DefaultDeckID,
		Name: "Default",
		Conf: 1,
	}
}

// DefaultDeckConfigJSON seeds the dconf column of a fresh collection.
const DefaultDeckConfigJSON = `{"1":{"id":1,"name":"Default","mod":0,"usn":0,"maxTaken":60,"autoplay":true,"timer":0,"replayq":true,` +
	`"new":{"delays":[1,10],"ints":[1,4,7],"initialFactor":2500,"perDay":20,"order":1,"bury":false},` +
	`"rev":{"perDay":200,"ease4":1.3,"ivlFct":1,"maxIvl":36500,"bury":false,"hardFactor":1.2},` +
	`"lapse":{"delays":[10],"mult":0,"minInt":1,"leechFails":8,"leechAction":1}}`

// Invalidate drops the in-memory cache, forcing a reload on next use.
// The collection calls this after rolling back a transaction.
func (m *Manager) Invalidate() {
	m.cache = nil
}

func (m *Manager) load(ctx context.Context) (map[int64]*Deck, error) {
	if m.cache != nil {
		return m.cache, nil
	}
	var raw string
	if err := m.db.QueryRowContext(ctx, "select decks from col").Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to read deck list: %w", err)
	}
	byKey := map[string]*Deck{}
	if err := json.Unmarshal([]byte(raw), &byKey); err != nil {
		return nil, fmt.Errorf("failed to decode deck list: %w", err)
	}
	m.cache = make(map[int64]*Deck, len(byKey))
	for key, d := range byKey {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse deck id %q: %w", key, err)
		}
		d.Id = id
		m.cache[id] = d
	}
	return m.cache, nil
}

func (m *Manager) flush(ctx context.Context) error {
	byKey := make(map[string]*Deck, len(m.cache))
	for id, d := range m.cache {
		byKey[strconv.FormatInt(id, 10)] = d
	}
	b, err := json.Marshal(byKey)
	if err != nil {
		return fmt.Errorf("failed to encode deck list: %w", err)
	}
	_, err = m.db.ExecContext(ctx, "update col set decks = ?, mod = ?",
		string(b), common.IntTimeMS())
	if err != nil {
		return fmt.Errorf("failed to write deck list: %w", err)
	}
	return nil
}

// Get returns the deck with the given id, or common.ErrorNotFound.
func (m *Manager) Get(ctx context.Context, id int64) (*Deck, error) {
	cache, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	d, ok := cache[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return d, nil
}

// GetOrDefault returns the deck with the given id, falling back to the
// default deck for dangling references.
func (m *Manager) GetOrDefault(ctx context.Context, id int64) (*Deck, error) {
	d, err := m.Get(ctx, id)
	if err == nil {
		return d, nil
	}
	return m.Get(ctx, common.DefaultDeckID)
}

// ByName returns the deck with the given full name, or
// common.ErrorNotFound.
func (m *Manager) ByName(ctx context.Context, name string) (*Deck, error) {
	cache, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range cache {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, common.ErrorNotFound
}

// All returns every deck sorted by name.
func (m *Manager) All(ctx context.Context) ([]*Deck, error) {
	cache, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Deck, 0, len(cache))
	for _, d := range cache {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save stamps the deck and writes the list through to the col row.
func (m *Manager) Save(ctx context.Context, d *Deck) error {
	cache, err := m.load(ctx)
	if err != nil {
		return err
	}
	usn, err := m.usn(ctx)
	if err != nil {
		return err
	}
	d.Mod = common.IntTime()
	d.Usn = usn
	cache[d.Id] = d
	return m.flush(ctx)
}

// Remove drops the deck from the list. The default deck cannot be
// removed.
func (m *Manager) Remove(ctx context.Context, id int64) error {
	if id == common.DefaultDeckID {
		return fmt.Errorf("cannot remove the default deck")
	}
	cache, err := m.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := cache[id]; !ok {
		return nil
	}
	delete(cache, id)
	return m.flush(ctx)
}

// Parents returns the existing ancestors of the deck, outermost first.
// Name components are separated by "::"; missing ancestors are
// skipped.
func (m *Manager) Parents(ctx context.Context, id int64) ([]*Deck, error) {
	d, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(d.Name, "::")
	var out []*Deck
	for i := 1; i < len(parts); i++ {
		name := strings.Join(parts[:i], "::")
		p, err := m.ByName(ctx, name)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ConfForDeck resolves the scheduling flags for a deck. Filtered decks
// carry their own resched flag; standard decks always reschedule.
func (m *Manager) ConfForDeck(ctx context.Context, id int64) (Conf, error) {
	d, err := m.GetOrDefault(ctx, id)
	if err != nil {
		return Conf{}, err
	}
	if d.Dyn != 0 {
		return Conf{Dyn: true, Resched: d.Resched}, nil
	}
	return Conf{Resched: true}, nil
}
