// Package conf manages the collection's persisted configuration: a
// JSON object stored in the conf column of the col row. Every write
// stamps col.mod, so configuration changes mark the collection
// modified without the caller doing anything extra.
package conf

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/dbx"
)

// Manager reads and writes collection configuration keys.
type Manager struct {
	db dbx.DBTX
}

// NewManager returns a Manager bound to the given DBTX.
func NewManager(db dbx.DBTX) *Manager {
	return &Manager{db: db}
}

// Defaults returns the configuration a fresh collection starts with.
func Defaults() map[string]any {
	return map[string]any{
		"activeDecks":   []int64{common.DefaultDeckID},
		"curDeck":       common.DefaultDeckID,
		"newSpread":     0,
		"collapseTime":  1200,
		"timeLim":       0,
		"estTimes":      true,
		"dueCounts":     true,
		"curModel":      nil,
		"nextPos":       1,
		"sortType":      "noteFld",
		"sortBackwards": false,
		"addToCur":      true,
		"dayLearnFirst": false,
		"schedVer":      1,
	}
}

func (m *Manager) load(ctx context.Context) (map[string]json.RawMessage, error) {
	var raw string
	if err := m.db.QueryRowContext(ctx, "select conf from col").Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cm := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(raw), &cm); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cm, nil
}

func (m *Manager) store(ctx context.Context, cm map[string]json.RawMessage) error {
	b, err := json.Marshal(cm)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = m.db.ExecContext(ctx, "update col set conf = ?, mod = ?",
		string(b), common.IntTimeMS())
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func get[T any](ctx context.Context, m *Manager, key string, def T) (T, error) {
	cm, err := m.load(ctx)
	if err != nil {
		return def, err
	}
	raw, ok := cm[key]
	if !ok {
		return def, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, fmt.Errorf("failed to decode config[%s]: %w", key, err)
	}
	return v, nil
}

// GetInt returns the integer at key, or def when the key is absent.
func (m *Manager) GetInt(ctx context.Context, key string, def int) (int, error) {
	return get(ctx, m, key, def)
}

// GetInt64 returns the 64-bit integer at key, or def when absent.
func (m *Manager) GetInt64(ctx context.Context, key string, def int64) (int64, error) {
	return get(ctx, m, key, def)
}

// GetBool returns the boolean at key, or def when absent.
func (m *Manager) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	return get(ctx, m, key, def)
}

// GetString returns the string at key, or def when absent.
func (m *Manager) GetString(ctx context.Context, key string, def string) (string, error) {
	return get(ctx, m, key, def)
}

// GetJSON decodes the value at key into dest. Missing keys return
// common.ErrorNotFound.
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	cm, err := m.load(ctx)
	if err != nil {
		return err
	}
	raw, ok := cm[key]
	if !ok {
		return common.ErrorNotFound
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode config[%s]: %w", key, err)
	}
	return nil
}

// Set stores value at key.
func (m *Manager) Set(ctx context.Context, key string, value any) error {
	cm, err := m.load(ctx)
	if err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode config[%s]: %w", key, err)
	}
	cm[key] = b
	return m.store(ctx, cm)
}

// Remove drops key. Removing an absent key is a no-op that still
// counts as a write.
func (m *Manager) Remove(ctx context.Context, key string) error {
	cm, err := m.load(ctx)
	if err != nil {
		return err
	}
	delete(cm, key)
	return m.store(ctx, cm)
}
