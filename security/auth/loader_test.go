package auth

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/guomen/backend"
	"github.com/turtacn/guomen/common/errors"
	"github.com/turtacn/guomen/config"
)

// fakeBackend serves canned grant rows the way a MySQL server would.
type fakeBackend struct {
	addr      string
	version   string
	grants    []backend.Row
	databases []string

	deny       map[string]bool // tables the service account cannot read
	failQuery  bool
	gotQueries []string
}

func (f *fakeBackend) Query(ctx context.Context, query string) ([]backend.Row, error) {
	f.gotQueries = append(f.gotQueries, query)

	if f.failQuery {
		return nil, errors.ErrQueryFailed.New(f.addr, "injected failure")
	}
	for table := range f.deny {
		if strings.Contains(query, table) && strings.Contains(query, "LIMIT 1") {
			return nil, fmt.Errorf("SELECT command denied for table '%s'", table)
		}
	}

	switch {
	case query == "SHOW DATABASES":
		var rows []backend.Row
		for _, name := range f.databases {
			rows = append(rows, backend.Row{{Str: name}})
		}
		return rows, nil
	case strings.Contains(query, "LIMIT 1"):
		return nil, nil
	default:
		return f.grants, nil
	}
}

func (f *fakeBackend) ServerVersion(ctx context.Context) (string, error) {
	if f.version == "" {
		return "8.0.32", nil
	}
	return f.version, nil
}

func (f *fakeBackend) Address() string { return f.addr }
func (f *fakeBackend) Close() error    { return nil }

func grant(user, host, db, selectPriv, password string) backend.Row {
	dbVal := backend.Value{Null: true}
	if db != "<null>" {
		dbVal = backend.Value{Str: db}
	}
	return backend.Row{
		{Str: user}, {Str: host}, dbVal, {Str: selectPriv}, {Str: password},
	}
}

func TestLoadBuildsCatalog(t *testing.T) {
	fb := &fakeBackend{
		addr: "db1:3306",
		grants: []backend.Row{
			grant("alice", "%", "<null>", "Y", NativePasswordHash("s3cret")),
			grant("bob", "10.0.0.%", "sales", "N", NativePasswordHash("pw")),
		},
		databases: []string{"sales", "crm"},
	}

	loader := NewLoader(config.AuthConfig{}, []backend.Querier{fb})
	catalog, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, catalog.Len())
	require.True(t, catalog.DatabaseExists("sales"))

	_, ok := catalog.Lookup("bob", net.ParseIP("10.0.0.42"), "sales", "")
	require.True(t, ok)
}

func TestLoadExpandsDatabaseWildcards(t *testing.T) {
	fb := &fakeBackend{
		addr: "db1:3306",
		grants: []backend.Row{
			grant("gina", "%", "test_%", "N", ""),
		},
		databases: []string{"test_a", "test_b", "prod"},
	}

	loader := NewLoader(config.AuthConfig{}, []backend.Querier{fb})
	catalog, err := loader.Load(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, catalog.Len())
	dbs := map[string]bool{}
	for _, r := range catalog.Rows() {
		dbs[r.Db] = true
	}
	require.True(t, dbs["test_a"])
	require.True(t, dbs["test_b"])
	require.False(t, dbs["prod"])
}

func TestLoadPasswordColumnByVersion(t *testing.T) {
	tests := []struct {
		version string
		column  string
	}{
		{"5.7.21-log", "authentication_string"},
		{"10.2.6-MariaDB", "password"},
		{"8.0.32", "password"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			fb := &fakeBackend{
				addr:      "db1:3306",
				version:   tt.version,
				grants:    []backend.Row{grant("alice", "%", "<null>", "Y", "")},
				databases: []string{"sales"},
			}
			loader := NewLoader(config.AuthConfig{SkipPermissionChecks: true}, []backend.Querier{fb})
			_, err := loader.Load(context.Background())
			require.NoError(t, err)

			var grantQuery string
			for _, q := range fb.gotQueries {
				if strings.Contains(q, "LEFT JOIN") {
					grantQuery = q
				}
			}
			require.Contains(t, grantQuery, "u."+tt.column)
		})
	}
}

func TestLoadFiltersRoot(t *testing.T) {
	fb := &fakeBackend{
		addr:      "db1:3306",
		grants:    []backend.Row{grant("alice", "%", "<null>", "Y", "")},
		databases: []string{"sales"},
	}

	loader := NewLoader(config.AuthConfig{SkipPermissionChecks: true}, []backend.Querier{fb})
	_, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Contains(t, strings.Join(fb.gotQueries, "\n"), "NOT IN ('root')")

	fb.gotQueries = nil
	loader = NewLoader(config.AuthConfig{SkipPermissionChecks: true, EnableRoot: true}, []backend.Querier{fb})
	_, err = loader.Load(context.Background())
	require.NoError(t, err)
	require.NotContains(t, strings.Join(fb.gotQueries, "\n"), "NOT IN ('root')")
}

func TestLoadDegradesWithoutGrantTables(t *testing.T) {
	fb := &fakeBackend{
		addr:      "db1:3306",
		grants:    []backend.Row{grant("alice", "%", "<null>", "Y", "")},
		databases: []string{"sales"},
		deny:      map[string]bool{"mysql.db": true},
	}

	loader := NewLoader(config.AuthConfig{}, []backend.Querier{fb})
	catalog, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, catalog.Len())

	// The degraded query must not touch the grant tables.
	last := fb.gotQueries[len(fb.gotQueries)-2]
	require.NotContains(t, last, "LEFT JOIN")
}

func TestLoadUserTableAccessIsFatal(t *testing.T) {
	fb := &fakeBackend{
		addr: "db1:3306",
		deny: map[string]bool{"mysql.user": true},
	}

	loader := NewLoader(config.AuthConfig{}, []backend.Querier{fb})
	_, err := loader.Load(context.Background())
	require.Error(t, err)
	require.True(t, errors.ErrNoUsersLoaded.Is(err))
}

func TestLoadSkipsMalformedHostRows(t *testing.T) {
	fb := &fakeBackend{
		addr: "db1:3306",
		grants: []backend.Row{
			grant("badhost", "10.%%.bogus%", "<null>", "Y", ""),
			grant("alice", "%", "<null>", "Y", ""),
		},
		databases: []string{"sales"},
	}

	loader := NewLoader(config.AuthConfig{SkipPermissionChecks: true}, []backend.Querier{fb})
	catalog, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, catalog.Len())
	require.Equal(t, "alice", catalog.Rows()[0].User)
}

func TestLoadStopsAtFirstServerWithUsers(t *testing.T) {
	fb1 := &fakeBackend{
		addr:      "db1:3306",
		grants:    []backend.Row{grant("alice", "%", "<null>", "Y", "")},
		databases: []string{"sales"},
	}
	fb2 := &fakeBackend{
		addr:      "db2:3306",
		grants:    []backend.Row{grant("zoe", "%", "<null>", "Y", "")},
		databases: []string{"sales"},
	}

	loader := NewLoader(config.AuthConfig{SkipPermissionChecks: true}, []backend.Querier{fb1, fb2})
	catalog, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, catalog.Len())
	require.Empty(t, fb2.gotQueries)
}

func TestLoadUnionsAllServers(t *testing.T) {
	fb1 := &fakeBackend{
		addr:      "db1:3306",
		grants:    []backend.Row{grant("alice", "%", "<null>", "Y", "")},
		databases: []string{"sales"},
	}
	fb2 := &fakeBackend{
		addr: "db2:3306",
		grants: []backend.Row{
			grant("alice", "%", "<null>", "Y", ""), // duplicate, dropped
			grant("zoe", "%", "<null>", "Y", ""),
		},
		databases: []string{"crm"},
	}

	loader := NewLoader(config.AuthConfig{SkipPermissionChecks: true, UsersFromAll: true},
		[]backend.Querier{fb1, fb2})
	catalog, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, catalog.Len())
	require.True(t, catalog.DatabaseExists("sales"))
	require.True(t, catalog.DatabaseExists("crm"))
}

func TestLoadContinuesPastFailedServer(t *testing.T) {
	bad := &fakeBackend{addr: "db1:3306", failQuery: true}
	good := &fakeBackend{
		addr:      "db2:3306",
		grants:    []backend.Row{grant("alice", "%", "<null>", "Y", "")},
		databases: []string{"sales"},
	}

	loader := NewLoader(config.AuthConfig{SkipPermissionChecks: true}, []backend.Querier{bad, good})
	catalog, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, catalog.Len())
}

func TestLoadCancelledContextDiscardsBatch(t *testing.T) {
	fb := &fakeBackend{
		addr:      "db1:3306",
		grants:    []backend.Row{grant("alice", "%", "<null>", "Y", "")},
		databases: []string{"sales"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := NewLoader(config.AuthConfig{SkipPermissionChecks: true}, []backend.Querier{fb})
	catalog, err := loader.Load(ctx)
	require.Error(t, err)
	require.Nil(t, catalog)
}

func TestLoadStripsDbEscapes(t *testing.T) {
	fb := &fakeBackend{
		addr:      "db1:3306",
		grants:    []backend.Row{grant("hank", "%", `test\_db`, "N", "")},
		databases: []string{"test_db"},
	}

	loader := NewLoader(config.AuthConfig{SkipPermissionChecks: true, StripDbEsc: true},
		[]backend.Querier{fb})
	catalog, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "test_db", catalog.Rows()[0].Db)
}

func TestLoadNoBackends(t *testing.T) {
	loader := NewLoader(config.AuthConfig{}, nil)
	_, err := loader.Load(context.Background())
	require.True(t, errors.ErrNoBackends.Is(err))
}
