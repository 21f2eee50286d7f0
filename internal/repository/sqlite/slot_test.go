package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSlot_LoadEmpty(t *testing.T) {
	db := newTestDB(t)

	value, ok, err := db.SessionSlot().Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestSlot_SaveLoadOverwrite(t *testing.T) {
	db := newTestDB(t)
	slot := db.SessionSlot()
	ctx := context.Background()

	require.NoError(t, slot.Save(ctx, `{"email":"a@b.c"}`))
	require.NoError(t, slot.Save(ctx, `{"email":"x@y.z"}`))

	value, ok, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"email":"x@y.z"}`, value)
}

func TestSlot_Clear(t *testing.T) {
	db := newTestDB(t)
	slot := db.SessionSlot()
	ctx := context.Background()

	require.NoError(t, slot.Clear(ctx), "clearing an empty slot")
	require.NoError(t, slot.Save(ctx, "v"))
	require.NoError(t, slot.Clear(ctx))

	_, ok, err := slot.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlot_KeysAreIndependent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Slot("a").Save(ctx, "1"))
	require.NoError(t, db.Slot("b").Save(ctx, "2"))
	require.NoError(t, db.Slot("a").Clear(ctx))

	value, ok, err := db.Slot("b").Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", value)
}

func TestNew_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.db")
	ctx := context.Background()

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.SessionSlot().Save(ctx, "persisted"))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	value, ok, err := db.SessionSlot().Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", value)
}
