package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the first n writes
type flakyStore struct {
	*MemoryStore
	failures atomic.Int32
}

func (f *flakyStore) Replace(ctx context.Context, rec Record) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("temporary failure")
	}
	return f.MemoryStore.Replace(ctx, rec)
}

func TestSynchronizer_Operations(t *testing.T) {
	manifest := map[string]interface{}{
		"id":        "a1",
		"name":      "alpha",
		"version":   "1.0",
		"server.js": "module.exports = {}",
	}

	tests := []struct {
		name    string
		seed    *Record
		op      Operation
		wantRec *Record
		wantErr error
	}{
		{
			name:    "create new record",
			op:      OpCreate,
			wantRec: &Record{ID: "a1", Enabled: true, Users: []string{}, Fields: map[string]interface{}{"name": "alpha", "version": "1.0"}},
		},
		{
			name:    "update keeps users and re-enables",
			seed:    &Record{ID: "a1", Enabled: false, Users: []string{"u1"}, Fields: map[string]interface{}{"name": "old"}},
			op:      OpUpdate,
			wantRec: &Record{ID: "a1", Enabled: true, Users: []string{"u1"}, Fields: map[string]interface{}{"name": "alpha", "version": "1.0"}},
		},
		{
			name:    "disable touches only enabled",
			seed:    &Record{ID: "a1", Enabled: true, Users: []string{"u1"}, Fields: map[string]interface{}{"name": "old"}},
			op:      OpDisable,
			wantRec: &Record{ID: "a1", Enabled: false, Users: []string{"u1"}, Fields: map[string]interface{}{"name": "old"}},
		},
		{
			name:    "enable touches only enabled",
			seed:    &Record{ID: "a1", Enabled: false, Users: []string{}, Fields: map[string]interface{}{"name": "old"}},
			op:      OpEnable,
			wantRec: &Record{ID: "a1", Enabled: true, Users: []string{}, Fields: map[string]interface{}{"name": "old"}},
		},
		{
			name: "disable unknown record is a no-op",
			op:   OpDisable,
		},
		{
			name: "delete removes the record",
			seed: &Record{ID: "a1", Enabled: true, Users: []string{}, Fields: map[string]interface{}{}},
			op:   OpDelete,
		},
		{
			name: "delete unknown record is a no-op",
			op:   OpDelete,
		},
		{
			name:    "unknown operation",
			op:      Operation("upsert"),
			wantErr: ErrUnknownOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			if tt.seed != nil {
				require.NoError(t, store.Replace(ctx, *tt.seed))
			}

			err := NewSynchronizer(store, SyncConfig{}).Sync(ctx, tt.op, "a1", manifest)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			rec, err := store.FindByID(ctx, "a1")
			if tt.wantRec == nil {
				assert.ErrorIs(t, err, ErrRecordNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, *tt.wantRec, *rec)
		})
	}
}

func TestSynchronizer_StorageFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	store.failures.Store(1)

	err := NewSynchronizer(store, SyncConfig{}).Sync(context.Background(), OpCreate, "a1", nil)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorContains(t, err, "temporary failure")
}

func TestSynchronizer_Retries(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	store.failures.Store(2)

	s := NewSynchronizer(store, SyncConfig{Retries: 3, RetryInterval: time.Millisecond})
	require.NoError(t, s.Sync(context.Background(), OpCreate, "a1", map[string]interface{}{"name": "alpha"}))

	rec, err := store.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", rec.Fields["name"])
}

func TestSynchronizer_RetriesExhausted(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	store.failures.Store(10)

	s := NewSynchronizer(store, SyncConfig{Retries: 2, RetryInterval: time.Millisecond})
	err := s.Sync(context.Background(), OpUpdate, "a1", nil)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.Equal(t, int32(7), store.failures.Load())
}

func TestSynchronizer_CanceledContext(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	store.failures.Store(100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSynchronizer(store, SyncConfig{Retries: 50, RetryInterval: time.Second})
	err := s.Sync(ctx, OpCreate, "a1", nil)
	assert.ErrorIs(t, err, ErrStorageFailure)
}
