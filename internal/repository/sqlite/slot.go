package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/marathon-client/internal/repository"
)

// CurrentUserKey is the slot holding the serialized session identity.
const CurrentUserKey = "currentUser"

// Slot is one keyed value in the slots table.
type Slot struct {
	db  *DB
	key string
}

var _ repository.SessionSlot = (*Slot)(nil)

// Slot returns the slot stored under key.
func (db *DB) Slot(key string) *Slot {
	return &Slot{db: db, key: key}
}

// SessionSlot returns the slot for the current user's session.
func (db *DB) SessionSlot() *Slot {
	return db.Slot(CurrentUserKey)
}

func (s *Slot) Load(ctx context.Context) (string, bool, error) {
	var value string
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT value FROM slots WHERE key = ?`, s.key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: loading slot %s: %w", s.key, err)
	}
	return value, true, nil
}

// Save upserts the slot value.
func (s *Slot) Save(ctx context.Context, value string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO slots (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, s.key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: saving slot %s: %w", s.key, err)
	}
	return nil
}

// Clear removes the slot. Clearing an empty slot is not an error.
func (s *Slot) Clear(ctx context.Context) error {
	if _, err := s.db.conn.ExecContext(ctx, `DELETE FROM slots WHERE key = ?`, s.key); err != nil {
		return fmt.Errorf("sqlite: clearing slot %s: %w", s.key, err)
	}
	return nil
}
