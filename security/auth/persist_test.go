package auth

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/guomen/common/errors"
)

func tempSnapshot(t *testing.T) *Persister {
	t.Helper()
	return NewPersister(filepath.Join(t.TempDir(), "users.db"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := NewCatalog()
	c.Add(row(t, "alice", "%", "", true, NativePasswordHash("s3cret")))
	c.Add(row(t, "bob", "10.0.0.%", "sales", false, NativePasswordHash("pw")))
	c.Add(row(t, "carol", "192.0.2.7", "", false, ""))
	c.AddDatabase("sales")
	c.AddDatabase("crm")

	p := tempSnapshot(t)
	require.NoError(t, p.Save(c))

	loaded, err := p.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	require.Equal(t, c.Len(), loaded.Len())
	require.Equal(t, c.Databases(), loaded.Databases())
	require.Equal(t, c.LocalhostMatchWildcardHost(), loaded.LocalhostMatchWildcardHost())

	for i, want := range c.Rows() {
		got := loaded.Rows()[i]
		require.Equal(t, want.User, got.User)
		require.Equal(t, want.Host, got.Host)
		require.Equal(t, want.Db, got.Db)
		require.Equal(t, want.AnyDb, got.AnyDb)
		require.Equal(t, want.Password, got.Password)
	}

	// The reloaded snapshot answers lookups identically.
	pw, ok := loaded.Lookup("bob", net.ParseIP("10.0.0.42"), "sales", "")
	require.True(t, ok)
	require.Equal(t, StripPasswordHash(NativePasswordHash("pw")), pw)
}

func TestSaveSkipsUnrepresentableRows(t *testing.T) {
	c := NewCatalog()
	c.Add(row(t, "alice", "%", "", true, ""))
	c.Add(row(t, "dave", "192.168.1._", "", true, ""))
	c.Add(row(t, "frank", "app-01.example.com", "", true, ""))

	p := tempSnapshot(t)
	require.NoError(t, p.Save(c))

	loaded, err := p.Load()
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	require.Equal(t, "alice", loaded.Rows()[0].User)
}

func TestSavePreservesAnonymousFlag(t *testing.T) {
	c := NewCatalog()
	c.Add(row(t, "", "%", "", true, ""))

	p := tempSnapshot(t)
	require.NoError(t, p.Save(c))

	loaded, err := p.Load()
	require.NoError(t, err)
	require.False(t, loaded.LocalhostMatchWildcardHost())
}

func TestLoadMissingFile(t *testing.T) {
	p := tempSnapshot(t)
	loaded, err := p.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestSaveReplacesPreviousContent(t *testing.T) {
	p := tempSnapshot(t)

	first := NewCatalog()
	first.Add(row(t, "alice", "%", "", true, ""))
	first.Add(row(t, "bob", "%", "", true, ""))
	require.NoError(t, p.Save(first))

	second := NewCatalog()
	second.Add(row(t, "zoe", "%", "", true, ""))
	require.NoError(t, p.Save(second))

	loaded, err := p.Load()
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	require.Equal(t, "zoe", loaded.Rows()[0].User)
}

func TestLoadRejectsCorruptRecord(t *testing.T) {
	c := NewCatalog()
	c.Add(row(t, "alice", "%", "", true, ""))

	p := tempSnapshot(t)
	require.NoError(t, p.Save(c))

	// Truncate the stored record behind the persister's back.
	db, err := bolt.Open(p.Path(), 0600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		cur := b.Cursor()
		k, v := cur.First()
		return b.Put(k, v[:3])
	}))
	require.NoError(t, db.Close())

	_, err = p.Load()
	require.Error(t, err)
	require.True(t, errors.ErrPersistenceIO.Is(err))
}

func TestEncodeDecodeGrantRow(t *testing.T) {
	rows := []*GrantRow{
		row(t, "alice", "%", "", false, ""),                                // no db restriction recorded
		row(t, "alice", "%", "", true, ""),                                 // global grant
		row(t, "bob", "10.0.0.%", "sales", false, NativePasswordHash("x")), // exact db
	}

	for _, want := range rows {
		got, err := decodeGrantRow(encodeGrantRow(want))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
