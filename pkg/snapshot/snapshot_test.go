package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/riskmap/pkg/riskdata"
)

var columns = []string{"id", "hash", "version", "source", "records", "created_at", "raw"}

func TestFromDataset(t *testing.T) {
	raw := []byte(`{"_meta":{"version":"1.2.0","source":"analyst"},"USA":{"score":85}}`)
	ds, err := riskdata.Parse(raw, riskdata.Options{})
	require.NoError(t, err)

	s := FromDataset(ds, raw)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, ds.Hash(), s.Hash)
	assert.Equal(t, "1.2.0", s.Version)
	assert.Equal(t, "analyst", s.Source)
	assert.Equal(t, 1, s.Records)
	assert.Equal(t, raw, s.Raw)
	assert.NotEqual(t, s.ID, FromDataset(ds, raw).ID)
}

func TestSQLStore_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := NewSQLStore(db, DialectPostgres)
	snap := &Snapshot{ID: "s-1", Hash: "sha256:ab", Version: "1.0.0", Records: 3, CreatedAt: time.Now().UTC(), Raw: []byte("{}")}

	mock.ExpectExec("INSERT INTO risk_snapshots").
		WithArgs(snap.ID, snap.Hash, snap.Version, snap.Source, snap.Records, snap.CreatedAt, snap.Raw).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Put(context.Background(), snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Init(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS risk_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewSQLStore(db, DialectSQLite).Init(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, NewSQLStore(db, "oracle").Init(context.Background()))
}

func TestSQLStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := NewSQLStore(db, DialectPostgres)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM risk_snapshots WHERE id").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("s-1", "sha256:ab", nil, "analyst", 3, created, []byte("{}")))

	snap, err := store.Get(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", snap.ID)
	assert.Equal(t, "", snap.Version)
	assert.Equal(t, "analyst", snap.Source)
	assert.Equal(t, created, snap.CreatedAt)

	mock.ExpectQuery("FROM risk_snapshots WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(columns[:6]).
			AddRow("s-2", "sha256:cd", "1.1.0", "", 4, now).
			AddRow("s-1", "sha256:ab", "1.0.0", "", 3, now.Add(-time.Hour)))

	list, err := NewSQLStore(db, DialectPostgres).List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s-2", list[0].ID)
	assert.Nil(t, list[0].Raw)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Init(ctx), "init is idempotent")

	_, err = store.Latest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := &Snapshot{ID: "a", Hash: "sha256:01", Version: "1.0.0", Records: 2, CreatedAt: base, Raw: []byte(`{"USA":{}}`)}
	second := &Snapshot{ID: "b", Hash: "sha256:02", Records: 3, CreatedAt: base.Add(time.Minute)}
	require.NoError(t, store.Put(ctx, first))
	require.NoError(t, store.Put(ctx, second))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, first.Raw, got.Raw)
	assert.Equal(t, "1.0.0", got.Version)
	assert.WithinDuration(t, base, got.CreatedAt, time.Second)

	list, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)

	assert.Error(t, store.Put(ctx, first), "duplicate id")
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Init(ctx))

	_, err := m.Latest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Now().UTC()
	require.NoError(t, m.Put(ctx, &Snapshot{ID: "old", CreatedAt: base, Raw: []byte("x")}))
	require.NoError(t, m.Put(ctx, &Snapshot{ID: "new", CreatedAt: base.Add(time.Second)}))

	latest, err := m.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)

	old, err := m.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), old.Raw)

	list, err := m.List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Nil(t, list[1].Raw)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion("", "1.0.0"))
	assert.NoError(t, CheckVersion("1.0.0", ""))
	assert.NoError(t, CheckVersion("1.0.0", "1.0.0"))
	assert.NoError(t, CheckVersion("1.0.0", "v1.2.0"))
	assert.ErrorIs(t, CheckVersion("1.2.0", "1.1.9"), ErrDowngrade)
	assert.Error(t, CheckVersion("1.2.0", "not-a-version"))
}
